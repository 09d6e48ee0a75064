/*
 * wangemu-sub000 - the 2200T micromachine CPU.
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

// Package cpu implements the Wang 2200T micromachine: a nibble-wide,
// microcoded CPU interpreting words out of an internal micro.Store.
package cpu

import (
	"fmt"

	"github.com/jtbattle/wangemu-sub000/internal/micro"
)

// FaultError reports an illegal microinstruction. The run loop treats
// this as fatal, per the error taxonomy.
type FaultError struct {
	IC   uint16
	Word uint32
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("illegal microinstruction %05X at ic=%04X", e.Word, e.IC)
}

// Bus is the minimal surface the CPU needs from the backplane. It is
// declared here, not in package bus, and satisfied implicitly by
// *bus.Bus -- cpu never imports bus's Card type, avoiding a pointer
// cycle between the two packages.
type Bus interface {
	ABS(slot uint8)
	OBS(data uint8)
	CBS(data uint8)
	CPB() bool
	PollIB5() bool
	PollIBS() (data uint8, ok bool)
	NotifyCPUBusy(busy bool)
}

// icStackDepth is the number of entries in the subroutine-call ring.
const icStackDepth = 16

// ramBankSize is the size, in nibbles, of one RAM bank.
const ramBankSize = 1024 * 2 // 1KB of bytes == 2048 nibbles

// romSize is the size, in nibbles, of the boot ROM.
const romSize = 2048 * 2

// CPU holds all machine state: registers, latches, memory, the
// microstore, and the bus it is plugged into.
type CPU struct {
	Store *micro.Store
	Bus   Bus

	R [8]uint8 // general registers, low nibble significant

	C uint8 // C latch: CH = high nibble, CL = low nibble
	K uint8 // K latch, loaded from IBS: KH = high nibble, KL = low nibble
	AB uint8 // address/bus-select latch used by CIO strobes

	PC uint16 // 16-bit memory pointer (nibble address)
	IC uint16 // 14-bit microprogram counter

	icStack [icStackDepth]uint16
	icsp    int

	Aux [16]uint16

	ST1, ST2, ST3, ST4 uint8

	prevSR bool // true immediately after SR; makes the next SB a no-op

	ram  []uint8 // RAM, two nibbles packed per byte, ramBankSize*banks bytes allocated
	rom  []uint8 // ROM, two nibbles packed per byte, romSize bytes allocated
}

// New returns a CPU with banks*1KB of RAM (banks must be 4..32) and a
// 2KB ROM, wired to store and bus.
func New(store *micro.Store, b Bus, banks int) *CPU {
	c := &CPU{
		Store: store,
		Bus:   b,
		ram:   make([]uint8, ramBankSize*banks),
		rom:   make([]uint8, romSize),
	}
	return c
}

// LoadROM copies img into ROM byte for byte. Each byte holds two
// nibbles, which readNibble unpacks the same way as for RAM.
func (c *CPU) LoadROM(img []uint8) {
	n := copy(c.rom, img)
	_ = n
}

// Reset returns the CPU to its power-on state: IC, PC, stack pointer,
// and status nibbles all zero; registers retain no guarantee.
func (c *CPU) Reset() {
	c.IC = 0
	c.PC = 0
	c.icsp = 0
	c.ST1, c.ST2, c.ST3, c.ST4 = 0, 0, 0, 0
	c.prevSR = false
	for i := range c.icStack {
		c.icStack[i] = 0
	}
}

// nibbleInc applies the hardware's low-nibble-only wraparound add used
// for PC post-adjustment: only the bottom 4 bits of pc ever change.
func nibbleInc(pc uint16, inc int8) uint16 {
	return (pc & 0xFFF0) | uint16((int(pc&0x000F)+int(inc))&0x000F)
}

// decimalAdd performs a 9's-complement-style BCD nibble add with carry
// in, returning a packed (carry<<4)|value byte exactly like the
// hardware's decimal adder.
func decimalAdd(a, b, carryIn uint8) uint8 {
	sum := a + b + carryIn
	carry := uint8(0)
	if sum > 9 {
		sum -= 10
		carry = 1
	}
	return (carry << 4) | (sum & 0xF)
}

// decimalSub performs the BCD nibble subtract with borrow used by
// decimal-subtract-with-carry microinstructions.
func decimalSub(a, b, borrowIn uint8) uint8 {
	d := int(a) - int(b) - int(borrowIn)
	borrow := uint8(0)
	if d < 0 {
		d += 10
		borrow = 1
	}
	return (borrow << 4) | uint8(d&0xF)
}

// readNibble fetches one nibble of memory honoring the horizontal
// (ST3 bit3==0) / vertical (ST3 bit3==1) addressing mode: in vertical
// mode the two nibbles of a byte are accessed high-then-low rather
// than low-then-high as the raw byte index would imply.
func (c *CPU) readNibble(addr uint16) uint8 {
	lo, bank := c.resolve(addr)
	b := c.byteAt(bank, lo>>1)
	if c.vertical() {
		if lo&1 == 0 {
			return b >> 4
		}
		return b & 0xF
	}
	if lo&1 == 0 {
		return b & 0xF
	}
	return b >> 4
}

// writeNibble1 stores a literal nibble value (WRITE1).
func (c *CPU) writeNibble1(addr uint16, val uint8) {
	c.storeNibble(addr, val&0xF)
}

// writeNibble2 XORs a single flip-bit into the addressed nibble before
// storing (WRITE2): bit0 in horizontal mode, bit4-equivalent (the
// nibble's own bit0, since a nibble is only 4 bits) in vertical mode.
// The two modes differ in which physical bit of the stored byte the
// flip lands on, matching the hardware's per-mode WRITE2 wiring.
func (c *CPU) writeNibble2(addr uint16) {
	cur := c.readNibble(addr)
	flipped := cur ^ 0x1
	c.storeNibble(addr, flipped)
}

func (c *CPU) storeNibble(addr uint16, val uint8) {
	lo, bank := c.resolve(addr)
	idx := lo >> 1
	b := c.byteAt(bank, idx)
	if c.vertical() {
		if lo&1 == 0 {
			b = (b & 0x0F) | (val << 4)
		} else {
			b = (b & 0xF0) | val
		}
	} else {
		if lo&1 == 0 {
			b = (b & 0xF0) | val
		} else {
			b = (b & 0x0F) | (val << 4)
		}
	}
	c.setByteAt(bank, idx, b)
}

// resolve splits a 16-bit nibble address into an in-bank nibble offset
// and a bank selector (bank 0 == ROM, banks 1..N == RAM banks).
func (c *CPU) resolve(addr uint16) (offset uint16, bank int) {
	bankSize := uint16(ramBankSize)
	if int(addr) < romSize {
		return addr, 0
	}
	rel := addr - uint16(romSize)
	bankIdx := 1 + int(rel)/int(bankSize)
	return rel % bankSize, bankIdx
}

func (c *CPU) byteAt(bank int, idx uint16) uint8 {
	if bank == 0 {
		if int(idx) >= len(c.rom) {
			return 0
		}
		return c.rom[idx]
	}
	off := (bank-1)*ramBankSize + int(idx)
	if off < 0 || off >= len(c.ram) {
		return 0
	}
	return c.ram[off]
}

func (c *CPU) setByteAt(bank int, idx uint16, val uint8) {
	if bank == 0 {
		return // ROM is read-only
	}
	off := (bank-1)*ramBankSize + int(idx)
	if off < 0 || off >= len(c.ram) {
		return
	}
	c.ram[off] = val
}

func (c *CPU) vertical() bool { return c.ST3&0x08 != 0 }

// setST1 is the status-register setter for ST1: bit1 (CPB, "card
// busy") has a bus side effect (it is driven onto the backplane, not
// merely stored), so ST1 is never written as a bare field assignment.
// A change to bit1 is forwarded to the selected card as a busy edge.
func (c *CPU) setST1(v uint8) {
	old := c.ST1
	c.ST1 = v
	if c.Bus != nil && (old^v)&0x02 != 0 {
		c.Bus.NotifyCPUBusy(v&0x02 != 0)
	}
}

// readST3 returns the live ST3 value: bit1 is not stored state, it is
// polled from the selected card's IB5 line on every read.
func (c *CPU) readST3() uint8 {
	v := c.ST3 &^ 0x02
	if c.Bus != nil && c.Bus.PollIB5() {
		v |= 0x02
	}
	return v
}

// readSel reads the value a Decoded operand selector names.
func (c *CPU) readSel(sel micro.Selector) uint8 {
	switch {
	case sel <= micro.SelReg7:
		return c.R[sel]
	case sel == micro.SelKH:
		return c.K >> 4
	case sel == micro.SelKL:
		return c.K & 0xF
	case sel == micro.SelST1:
		return c.ST1 & 0xF
	case sel == micro.SelST2:
		return c.ST2 & 0xF
	case sel == micro.SelST3:
		return c.readST3() & 0xF
	case sel == micro.SelST4:
		return c.ST4 & 0xF
	case sel == micro.SelPC1:
		return uint8(c.PC & 0xF)
	case sel == micro.SelPC2:
		return uint8((c.PC >> 4) & 0xF)
	case sel == micro.SelPC3:
		return uint8((c.PC >> 8) & 0xF)
	case sel == micro.SelPC4:
		return uint8((c.PC >> 12) & 0xF)
	case sel == micro.SelCH:
		return c.C >> 4
	case sel == micro.SelCL:
		return c.C & 0xF
	default:
		return 0
	}
}

// writeSel stores val (low nibble significant) into the destination a
// Decoded C-selector names.
func (c *CPU) writeSel(sel micro.Selector, val uint8) {
	val &= 0xF
	switch {
	case sel <= micro.SelReg7:
		c.R[sel] = val
	case sel == micro.SelKH:
		c.K = (c.K & 0x0F) | (val << 4)
	case sel == micro.SelKL:
		c.K = (c.K & 0xF0) | val
	case sel == micro.SelST1:
		c.setST1(val)
	case sel == micro.SelST2:
		c.ST2 = val
	case sel == micro.SelST3:
		c.ST3 = val
	case sel == micro.SelST4:
		c.ST4 = val
	case sel == micro.SelPC1:
		c.PC = (c.PC & 0xFFF0) | uint16(val)
	case sel == micro.SelPC2:
		c.PC = (c.PC & 0xFF0F) | uint16(val)<<4
	case sel == micro.SelPC3:
		c.PC = (c.PC & 0xF0FF) | uint16(val)<<8
	case sel == micro.SelPC4:
		c.PC = (c.PC & 0x0FFF) | uint16(val)<<12
	case sel == micro.SelCH:
		c.C = (c.C & 0x0F) | (val << 4)
	case sel == micro.SelCL:
		c.C = (c.C & 0xF0) | val
	}
}

// pushIC pushes ic onto the 16-deep circular subroutine-return ring.
func (c *CPU) pushIC(ic uint16) {
	c.icStack[c.icsp] = ic
	c.icsp = (c.icsp + 1) % icStackDepth
}

// popIC pops the most recently pushed ic: pushIC stores and then
// advances icsp (post-increment), popIC steps icsp back first
// (pre-decrement), so the ring behaves as a LIFO stack.
func (c *CPU) popIC() uint16 {
	c.icsp = (c.icsp - 1 + icStackDepth) % icStackDepth
	return c.icStack[c.icsp]
}

// Step executes exactly one microinstruction. It never panics: an
// illegal opcode is reported as a *FaultError and IC is left pointing
// at the faulting word.
func (c *CPU) Step() error {
	word := c.Store.Raw(c.IC)
	d := c.Store.Decoded(c.IC)
	if d.Illegal {
		return &FaultError{IC: c.IC, Word: word}
	}

	nextIC := c.IC + 1

	switch d.Op {
	case micro.OpOR, micro.OpXOR, micro.OpAND, micro.OpDSC, micro.OpA, micro.OpAC, micro.OpDA, micro.OpDAC:
		c.execALU(d)

	case micro.OpORI, micro.OpXORI, micro.OpANDI, micro.OpAI, micro.OpACI, micro.OpDAI, micro.OpDACI:
		c.execALUImm(d)

	case micro.OpBER:
		a := c.applyAOperand(d)
		b := c.readSel(d.BSel)
		if a == b {
			nextIC = d.P16
		}

	case micro.OpBNR:
		a := c.applyAOperand(d)
		b := c.readSel(d.BSel)
		if a != b {
			nextIC = d.P16
		}

	case micro.OpBEQ:
		if c.readSel(d.BSel) == uint8(d.ASel)&0xF {
			nextIC = d.P16
		}

	case micro.OpBNE:
		if c.readSel(d.BSel) != uint8(d.ASel)&0xF {
			nextIC = d.P16
		}

	case micro.OpBT:
		// mask-and-compare, not a single-bit shift test: true when
		// every bit set in the mask is also set in B.
		mask := uint8(d.ASel) & 0xF
		if b := c.readSel(d.BSel); b&mask == mask {
			nextIC = d.P16
		}

	case micro.OpBF:
		mask := uint8(d.ASel) & 0xF
		if b := ^c.readSel(d.BSel); b&mask == mask {
			nextIC = d.P16
		}

	case micro.OpB:
		nextIC = d.P16

	case micro.OpSB:
		if c.prevSR {
			// the instruction immediately following an SR is a
			// no-op the first time it is reached: the hardware
			// already restored ic from the call site via SR.
			c.prevSR = false
		} else {
			c.pushIC(c.IC)
			nextIC = d.P16
		}

	case micro.OpSR:
		nextIC = c.popIC()
		c.prevSR = true

	case micro.OpCIO:
		c.execCIO(d)

	case micro.OpTPI:
		nextIC = c.PC & 0x3FFF

	case micro.OpTIP:
		c.PC = c.IC

	case micro.OpTMP:
		c.PC = uint16(len(c.ram))

	case micro.OpTP:
		c.Aux[d.P16&0xF] = c.PC

	case micro.OpTA:
		c.PC = c.Aux[d.P16&0xF]

	case micro.OpXP:
		n := d.P16 & 0xF
		c.Aux[n], c.PC = c.PC, c.Aux[n]

	default:
		return &FaultError{IC: c.IC, Word: word}
	}

	if d.Op != micro.OpSB && d.Op != micro.OpSR {
		c.prevSR = false
	}

	c.IC = nextIC & 0x3FFF
	c.pollBus()
	return nil
}

// pollBus is the implicit input strobe: every cycle, the selected
// card may have a byte ready (a pending keystroke, a sector data
// byte). When it does, the byte is latched into K and CPB is raised
// in ST1, exactly as if the CPU had just executed an input CIO.
func (c *CPU) pollBus() {
	if c.Bus == nil {
		return
	}
	if b, ok := c.Bus.PollIBS(); ok {
		c.K = b
		c.setST1(c.ST1 | 0x02)
	}
}

// applyAOperand reads the A operand named by d, applying its implied
// PC post-adjust (used by register-select fields 9-15 which alias the
// C latch and a PC bump), and returns the value for comparison/ALU use.
func (c *CPU) applyAOperand(d micro.Decoded) uint8 {
	v := c.readSel(d.ASel)
	if d.APCInc != 0 {
		c.PC = nibbleInc(c.PC, d.APCInc)
	}
	return v
}

func (c *CPU) execALU(d micro.Decoded) {
	a := c.applyAOperand(d)
	b := c.readSel(d.BSel)

	var result uint8
	switch d.Op {
	case micro.OpOR:
		result = a | b
	case micro.OpXOR:
		result = a ^ b
	case micro.OpAND:
		result = a & b
	case micro.OpA:
		result = (a + b) & 0xF
	case micro.OpAC:
		carry := c.ST1 & 0x1
		sum := a + b + carry
		c.setST1((c.ST1 &^ 0x1) | ((sum >> 4) & 0x1))
		result = sum & 0xF
	case micro.OpDA:
		packed := decimalAdd(a, b, 0)
		c.setST1((c.ST1 &^ 0x1) | (packed >> 4))
		result = packed & 0xF
	case micro.OpDAC:
		packed := decimalAdd(a, b, c.ST1&0x1)
		c.setST1((c.ST1 &^ 0x1) | (packed >> 4))
		result = packed & 0xF
	case micro.OpDSC:
		packed := decimalSub(a, b, c.ST1&0x1)
		c.setST1((c.ST1 &^ 0x1) | (packed >> 4))
		result = packed & 0xF
	}

	if d.M == micro.MRead || d.M == micro.MWrite1 || d.M == micro.MWrite2 {
		// PC holds the nibble address: MWrite1 stores the ALU result
		// there and MWrite2 goes through writeNibble2. MRead does not
		// touch memory or C here. The C destination selector is
		// written in every case.
		switch d.M {
		case micro.MWrite1:
			c.writeNibble1(c.PC, result)
		case micro.MWrite2:
			c.writeNibble2(c.PC)
		}
	}
	c.writeSel(d.CSel, result)
}

func (c *CPU) execALUImm(d micro.Decoded) {
	imm := uint8(d.ASel) & 0xF
	b := c.readSel(d.BSel)

	var result uint8
	switch d.Op {
	case micro.OpORI:
		result = imm | b
	case micro.OpXORI:
		result = imm ^ b
	case micro.OpANDI:
		result = imm & b
	case micro.OpAI:
		result = (imm + b) & 0xF
	case micro.OpACI:
		carry := c.ST1 & 0x1
		sum := imm + b + carry
		c.setST1((c.ST1 &^ 0x1) | ((sum >> 4) & 0x1))
		result = sum & 0xF
	case micro.OpDAI:
		packed := decimalAdd(imm, b, 0)
		c.setST1((c.ST1 &^ 0x1) | (packed >> 4))
		result = packed & 0xF
	case micro.OpDACI:
		packed := decimalAdd(imm, b, c.ST1&0x1)
		c.setST1((c.ST1 &^ 0x1) | (packed >> 4))
		result = packed & 0xF
	}
	c.writeSel(d.CSel, result)
}

// execCIO drives exactly one of the three backplane strobes, selected
// by the CIO sub-field (d.CIOBits, raw word bits 0x10/0x20/0x40/0x80):
// 0x4 fires ABS from AB, 0x2 fires OBS from C, 0x1 fires CBS from C.
// 0x8 loads AB from K before the strobe, per Cpu2200t.cpp's ab = k.
// CPB is then polled back into ST1 bit1.
func (c *CPU) execCIO(d micro.Decoded) {
	if c.Bus == nil {
		return
	}
	if d.CIOBits&0x8 != 0 {
		c.AB = c.K
	}
	switch {
	case d.CIOBits&0x4 != 0:
		c.Bus.ABS(c.AB)
	case d.CIOBits&0x2 != 0:
		c.Bus.OBS(c.C)
	case d.CIOBits&0x1 != 0:
		c.Bus.CBS(c.C)
	}
	if c.Bus.CPB() {
		c.setST1(c.ST1 | 0x02)
	} else {
		c.setST1(c.ST1 &^ 0x02)
	}
}
