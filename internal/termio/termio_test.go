package termio

import (
	"net"
	"testing"
	"time"
)

type fakeSink struct {
	bytes []byte
}

func (f *fakeSink) PushKey(b byte, isFunctionKey bool) {
	f.bytes = append(f.bytes, b)
}

func TestServerRelaysBytesToSink(t *testing.T) {
	sink := &fakeSink{}
	s, err := Listen("127.0.0.1:0", sink)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(sink.bytes) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if string(sink.bytes) != "hi" {
		t.Fatalf("sink got %q, want %q", sink.bytes, "hi")
	}
}

func TestCRTWriterWritesToConn(t *testing.T) {
	sink := &fakeSink{}
	s, err := Listen("127.0.0.1:0", sink)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	w := NewCRTWriter(conn)
	if _, err := w.Write([]byte("ok")); err != nil {
		t.Fatalf("write: %v", err)
	}
}
