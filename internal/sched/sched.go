/*
 * wangemu-sub000 - cooperative delta-time event scheduler.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package sched implements the machine's single-threaded cooperative
// event scheduler: a delta-time ordered list of pending callbacks,
// advanced one tick at a time by the CPU run loop. One tick is 100ns;
// a micro-op takes 16 ticks.
package sched

// TicksPerMicroOp is the fixed cost, in ticks, of one micromachine step.
const TicksPerMicroOp = 16

// NsPerTick is the simulated duration of one tick.
const NsPerTick = 100

// Callback is invoked when a timer fires, receiving the arg it was
// registered with.
type Callback func(arg int)

// Handle identifies a pending timer so it can be cancelled.
type Handle struct {
	ev *event
}

type event struct {
	ticks int // ticks remaining, relative to the previous entry
	cb    Callback
	arg   int
	prev  *event
	next  *event
}

// Scheduler is an instantiable delta-time event queue. Unlike the
// teacher's package-global event list, state lives in the struct so a
// process can run more than one independent machine.
type Scheduler struct {
	head *event
	tail *event
	now  int64
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Now returns the number of ticks elapsed since the scheduler was created.
func (s *Scheduler) Now() int64 { return s.now }

// CreateTimer schedules cb to fire after the given number of ticks. A
// ticks value of 0 runs cb synchronously, immediately, matching the
// teacher's AddEvent(..., time=0) fast path. The returned Handle is
// only valid until the timer fires or is cancelled.
func (s *Scheduler) CreateTimer(ticks int, cb Callback, arg int) Handle {
	if ticks <= 0 {
		cb(arg)
		return Handle{}
	}

	ev := &event{ticks: ticks, cb: cb, arg: arg}

	cur := s.head
	if cur == nil {
		s.head = ev
		s.tail = ev
		return Handle{ev: ev}
	}

	for cur != nil {
		if ev.ticks < cur.ticks {
			cur.ticks -= ev.ticks
			ev.prev = cur.prev
			ev.next = cur
			cur.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				s.head = ev
			}
			return Handle{ev: ev}
		}
		ev.ticks -= cur.ticks
		cur = cur.next
	}

	ev.prev = s.tail
	s.tail.next = ev
	s.tail = ev
	return Handle{ev: ev}
}

// Cancel removes a pending timer. Cancelling a zero Handle, or one
// that already fired, is a no-op.
func (s *Scheduler) Cancel(h Handle) {
	ev := h.ev
	if ev == nil {
		return
	}
	if ev.prev == nil && s.head != ev {
		return // already fired or cancelled: no longer on the list
	}

	nxt := ev.next
	if nxt != nil {
		nxt.ticks += ev.ticks
		nxt.prev = ev.prev
	} else {
		s.tail = ev.prev
	}

	if ev.prev != nil {
		ev.prev.next = nxt
	} else {
		s.head = nxt
	}
	ev.prev, ev.next = nil, nil
}

// Advance moves the clock forward by n ticks, firing every timer whose
// deadline has elapsed. Callbacks that create new timers during the
// advance are supported: the list is re-read from s.head each pass, so
// a callback registering a zero-tick follow-on runs within the same
// Advance call, matching the teacher's re-entrant Advance shape.
func (s *Scheduler) Advance(n int) {
	s.now += int64(n)
	if s.head == nil {
		return
	}
	s.head.ticks -= n
	for s.head != nil && s.head.ticks <= 0 {
		ev := s.head
		s.head = ev.next
		if s.head != nil {
			s.head.prev = nil
			s.head.ticks += ev.ticks // carry any overshoot to the next entry
		} else {
			s.tail = nil
		}
		ev.next, ev.prev = nil, nil
		ev.cb(ev.arg)
	}
}

// Pending reports whether any timer is outstanding.
func (s *Scheduler) Pending() bool { return s.head != nil }
