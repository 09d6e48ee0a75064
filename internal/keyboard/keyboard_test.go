package keyboard

import (
	"bytes"
	"testing"

	"github.com/jtbattle/wangemu-sub000/internal/sched"
)

func TestPushAndPopFIFOOrder(t *testing.T) {
	s := sched.New()
	c := New(s, nil)
	c.PushKey('a', false)
	c.PushKey('b', false)

	b, ok := c.PopByte()
	if !ok || b != 'a' {
		t.Fatalf("expected 'a' first, got %v %v", b, ok)
	}
	b, ok = c.PopByte()
	if !ok || b != 'b' {
		t.Fatalf("expected 'b' second, got %v %v", b, ok)
	}
	if _, ok := c.PopByte(); ok {
		t.Fatalf("expected empty FIFO")
	}
}

func TestFIFOOverrunDrops(t *testing.T) {
	s := sched.New()
	c := New(s, nil)
	for i := 0; i < FIFOCapacity+5; i++ {
		c.PushKey(byte(i), false)
	}
	n := 0
	for {
		if _, ok := c.PopByte(); !ok {
			break
		}
		n++
	}
	if n != FIFOCapacity {
		t.Fatalf("expected %d bytes retained, got %d", FIFOCapacity, n)
	}
}

func TestFunctionKeySetsIB5Once(t *testing.T) {
	s := sched.New()
	c := New(s, nil)
	c.PushKey('X', true)
	if !c.IB5() {
		t.Fatalf("expected IB5 set after function key")
	}
	if c.IB5() {
		t.Fatalf("IB5 should clear after being read")
	}
}

func TestOBSWritesToCRTSink(t *testing.T) {
	s := sched.New()
	var buf bytes.Buffer
	c := New(s, &buf)
	c.OBS('H')
	c.OBS('i')
	if buf.String() != "Hi" {
		t.Fatalf("CRT sink got %q, want %q", buf.String(), "Hi")
	}
}

func TestCPBFalseWhenEmpty(t *testing.T) {
	s := sched.New()
	c := New(s, nil)
	if c.CPB() {
		t.Fatalf("empty FIFO should not report busy/ready")
	}
}
