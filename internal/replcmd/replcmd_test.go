package replcmd

import (
	"bytes"
	"testing"
)

func TestDispatchQuit(t *testing.T) {
	var out bytes.Buffer
	d := New(Handlers{}, &out)
	defer d.Close()
	quit, err := d.Dispatch("quit")
	if err != nil || !quit {
		t.Fatalf("expected quit, got quit=%v err=%v", quit, err)
	}
}

func TestDispatchResetCallsHandler(t *testing.T) {
	var out bytes.Buffer
	called := false
	d := New(Handlers{Reset: func() error { called = true; return nil }}, &out)
	defer d.Close()
	if _, err := d.Dispatch("reset"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !called {
		t.Fatalf("reset handler not called")
	}
}

func TestDispatchStepParsesCount(t *testing.T) {
	var out bytes.Buffer
	var got int
	d := New(Handlers{Step: func(n int) error { got = n; return nil }}, &out)
	defer d.Close()
	if _, err := d.Dispatch("step 42"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got != 42 {
		t.Fatalf("step count = %d, want 42", got)
	}
}

func TestDispatchMountRequiresTwoArgs(t *testing.T) {
	var out bytes.Buffer
	called := false
	d := New(Handlers{Mount: func(unit int, path string) error { called = true; return nil }}, &out)
	defer d.Close()
	d.Dispatch("mount 0")
	if called {
		t.Fatalf("mount handler should not run with missing args")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	d := New(Handlers{}, &out)
	defer d.Close()
	quit, err := d.Dispatch("frobnicate")
	if quit || err != nil {
		t.Fatalf("unknown command should not quit or error")
	}
	if out.Len() == 0 {
		t.Fatalf("expected feedback for unknown command")
	}
}

func TestDispatchUnsupportedHandlerReportsMessage(t *testing.T) {
	var out bytes.Buffer
	d := New(Handlers{}, &out)
	defer d.Close()
	d.Dispatch("reset")
	if out.Len() == 0 {
		t.Fatalf("expected 'not supported' feedback")
	}
}
