/*
 * wangemu-sub000 - keyboard/CRT terminal card.
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

// Package keyboard implements the keyboard/CRT backplane card: a
// bounded input FIFO paced at the hardware's UART byte rate, and a
// plain io.Writer CRT sink (no rendering, per the non-goal). Grounded
// on telnet/multiplexer.go's per-connection byte queue and the
// teacher's model1052 polled-byte keyboard device pattern.
package keyboard

import (
	"io"

	"github.com/jtbattle/wangemu-sub000/internal/sched"
)

// FIFOCapacity is the maximum number of pending input bytes.
const FIFOCapacity = 64

// uartTicks is the pacing interval, in scheduler ticks, between two
// successive bytes becoming available to the card -- one 9600-baud
// UART bit time (~104us), rounded to the scheduler's 100ns tick.
const uartTicks = 1_042 // ~104us / sched.NsPerTick

// Card is the keyboard/CRT backplane card.
type Card struct {
	sched *sched.Scheduler
	out   io.Writer

	fifo    [FIFOCapacity]byte
	head    int
	tail    int
	count   int
	pacing  bool
	pending sched.Handle

	specialFunc bool // a function key is pending; reported only through IB5 (the CPU's ST3 bit1), ST1 is not touched
	selected    bool
}

// New returns a Card writing CRT output to out.
func New(s *sched.Scheduler, out io.Writer) *Card {
	return &Card{sched: s, out: out}
}

// PushKey enqueues one input byte from the host terminal. If the
// FIFO is full the byte is dropped, matching the hardware's own
// overrun behavior (it has no flow control back to the keyboard).
func (c *Card) PushKey(b byte, isFunctionKey bool) {
	if c.count >= FIFOCapacity {
		return
	}
	c.fifo[c.tail] = b
	c.tail = (c.tail + 1) % FIFOCapacity
	c.count++
	if isFunctionKey {
		c.specialFunc = true
	}
	c.armPacing()
}

func (c *Card) armPacing() {
	if c.pacing {
		return
	}
	c.pacing = true
	c.pending = c.sched.CreateTimer(uartTicks, func(arg int) {
		c.pacing = false
	}, 0)
}

// --- bus.Card implementation ---

func (c *Card) Reset() {
	c.head, c.tail, c.count = 0, 0, 0
	c.specialFunc = false
	c.pacing = false
}

func (c *Card) Select()   { c.selected = true }
func (c *Card) Deselect() { c.selected = false }

// OBS receives a byte the CPU wants echoed to the CRT.
func (c *Card) OBS(data uint8) {
	if c.out != nil {
		c.out.Write([]byte{data})
	}
}

// CBS is unused by this card; keyboard control is read-only from the
// CPU's perspective (it only polls CPB/IB5).
func (c *Card) CBS(data uint8) {}

// CPB reports whether a byte is ready and not still being paced out.
func (c *Card) CPB() bool {
	return c.count > 0 && !c.pacing
}

// IB5 carries the special-function-key flag: set by a function key
// press, cleared the next time the CPU polls it.
func (c *Card) IB5() bool {
	v := c.specialFunc
	c.specialFunc = false
	return v
}

// PopByte dequeues and returns the oldest pending input byte.
func (c *Card) PopByte() (b byte, ok bool) {
	if c.count == 0 {
		return 0, false
	}
	b = c.fifo[c.head]
	c.head = (c.head + 1) % FIFOCapacity
	c.count--
	if c.count > 0 {
		c.armPacing()
	}
	return b, true
}

// Poll implements bus.Card's IBS half: it hands the CPU the oldest
// pending keystroke once the UART pacing timer has let it through.
func (c *Card) Poll() (uint8, bool) {
	if !c.CPB() {
		return 0, false
	}
	return c.PopByte()
}

// CPUBusy observes the CPU's own busy/CPB edge; the keyboard has
// nothing to react to here, it only ever drives busy, never follows it.
func (c *Card) CPUBusy(busy bool) {}
