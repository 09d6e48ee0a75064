package sched

import "testing"

func TestAdvanceFiresInOrder(t *testing.T) {
	s := New()
	var order []int
	s.CreateTimer(10, func(arg int) { order = append(order, arg) }, 1)
	s.CreateTimer(5, func(arg int) { order = append(order, arg) }, 2)
	s.CreateTimer(5, func(arg int) { order = append(order, arg) }, 3)

	s.Advance(5)
	if len(order) != 2 || order[0] != 2 || order[1] != 3 {
		t.Fatalf("same-deadline insertion order not preserved: %v", order)
	}
	s.Advance(5)
	if len(order) != 3 || order[2] != 1 {
		t.Fatalf("later event did not fire: %v", order)
	}
}

func TestCancelIsSafe(t *testing.T) {
	s := New()
	fired := false
	h := s.CreateTimer(10, func(arg int) { fired = true }, 0)
	s.Cancel(h)
	s.Advance(100)
	if fired {
		t.Fatalf("cancelled timer fired")
	}
	// double-cancel and cancel-of-zero-handle must not panic
	s.Cancel(h)
	s.Cancel(Handle{})
}

func TestZeroTickRunsSynchronously(t *testing.T) {
	s := New()
	ran := false
	s.CreateTimer(0, func(arg int) { ran = true }, 0)
	if !ran {
		t.Fatalf("zero-tick timer did not run synchronously")
	}
	if s.Pending() {
		t.Fatalf("scheduler should have nothing pending")
	}
}

func TestReentrantScheduling(t *testing.T) {
	s := New()
	var order []int
	s.CreateTimer(5, func(arg int) {
		order = append(order, arg)
		s.CreateTimer(0, func(arg int) { order = append(order, arg) }, 99)
	}, 1)
	s.Advance(5)
	if len(order) != 2 || order[0] != 1 || order[1] != 99 {
		t.Fatalf("reentrant zero-tick follow-on did not run within same Advance: %v", order)
	}
}

func TestNowAccumulates(t *testing.T) {
	s := New()
	s.Advance(3)
	s.Advance(4)
	if s.Now() != 7 {
		t.Fatalf("Now() = %d, want 7", s.Now())
	}
}
