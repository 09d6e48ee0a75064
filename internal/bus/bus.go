/*
 * wangemu-sub000 - backplane bus and card trait.
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

// Package bus implements the Wang 2200 backplane: an 8-bit card
// address space addressed by the CPU's ABS/OBS/CBS strobes, with a
// single selected card at a time and a polled IBS/CPB busy protocol
// back to the CPU.
package bus

// NumSlots is the number of addressable card slots on the backplane.
const NumSlots = 256

// Card is the interface every backplane peripheral implements. The
// CPU drives Select/Deselect and the three output strobes; the card
// drives bus state back only through the Bus it was attached to
// (CPB/IB5), never through a back-reference to the CPU, per the
// no-pointer-cycle design rule.
type Card interface {
	// Reset returns the card to its power-on state.
	Reset()
	// Select is called when the CPU addresses this card's slot.
	Select()
	// Deselect is called when the CPU addresses a different slot.
	Deselect()
	// OBS delivers an output-strobe byte (data from CPU to card).
	OBS(data uint8)
	// CBS delivers a control-strobe byte (command from CPU to card).
	CBS(data uint8)
	// CPB reports whether the card is currently asserting busy.
	CPB() bool
	// IB5 reports the card's live-polled status-line bit, latched
	// into ST3 bit1 by the CPU on every read (never stored state).
	IB5() bool
	// Poll is the card's half of the implicit input strobe (IBS): it
	// offers the next byte the card has ready for the CPU (a pending
	// keystroke, a sector data byte, a command echo or status byte).
	// ok is false when the card has nothing ready.
	Poll() (data uint8, ok bool)
	// CPUBusy is called whenever the CPU's own busy/CPB line changes
	// state, so the selected card can react to the edge.
	CPUBusy(busy bool)
}

// Bus is the backplane itself: a flat, slot-indexed card table and
// the currently selected slot. It holds Cards by interface, not the
// CPU holds Cards by pointer-cycle -- CPU and Bus only ever see each
// other through the small interfaces each package declares for
// itself (see cpu.Bus), per design note's arena/slot-index rule.
type Bus struct {
	cards    [NumSlots]Card
	selected int // -1 == no card selected
}

// New returns an empty Bus with no card selected.
func New() *Bus {
	return &Bus{selected: -1}
}

// Attach installs a card at the given slot address, replacing
// whatever was there (including nil).
func (b *Bus) Attach(slot uint8, c Card) {
	b.cards[slot] = c
}

// Detach removes whatever card occupies slot.
func (b *Bus) Detach(slot uint8) {
	if b.selected == int(slot) {
		b.selected = -1
	}
	b.cards[slot] = nil
}

// Reset resets every attached card and deselects.
func (b *Bus) Reset() {
	b.selected = -1
	for _, c := range b.cards {
		if c != nil {
			c.Reset()
		}
	}
}

// ABS is the address-select strobe: it selects slot and deselects
// whatever card was previously selected, if different.
func (b *Bus) ABS(slot uint8) {
	if b.selected == int(slot) {
		return
	}
	if b.selected >= 0 {
		if c := b.cards[b.selected]; c != nil {
			c.Deselect()
		}
	}
	b.selected = int(slot)
	if c := b.cards[slot]; c != nil {
		c.Select()
	}
}

// OBS delivers an output-strobe byte to the selected card, if any.
func (b *Bus) OBS(data uint8) {
	if c := b.selectedCard(); c != nil {
		c.OBS(data)
	}
}

// CBS delivers a control-strobe byte to the selected card, if any.
func (b *Bus) CBS(data uint8) {
	if c := b.selectedCard(); c != nil {
		c.CBS(data)
	}
}

// CPB reports whether the selected card is asserting busy. An
// unselected slot (or an empty one) is never busy.
func (b *Bus) CPB() bool {
	if c := b.selectedCard(); c != nil {
		return c.CPB()
	}
	return false
}

// PollIB5 live-reads the selected card's IB5 status line, for the
// CPU's ST3 bit1 read-side effect.
func (b *Bus) PollIB5() bool {
	if c := b.selectedCard(); c != nil {
		return c.IB5()
	}
	return false
}

// PollIBS asks the selected card for its next queued input byte (the
// implicit input strobe), for the CPU to latch into K.
func (b *Bus) PollIBS() (data uint8, ok bool) {
	if c := b.selectedCard(); c != nil {
		return c.Poll()
	}
	return 0, false
}

// NotifyCPUBusy forwards a CPU busy/CPB edge to the selected card.
func (b *Bus) NotifyCPUBusy(busy bool) {
	if c := b.selectedCard(); c != nil {
		c.CPUBusy(busy)
	}
}

// Selected returns the currently addressed slot, or false if none.
func (b *Bus) Selected() (slot uint8, ok bool) {
	if b.selected < 0 {
		return 0, false
	}
	return uint8(b.selected), true
}

func (b *Bus) selectedCard() Card {
	if b.selected < 0 {
		return nil
	}
	return b.cards[b.selected]
}
