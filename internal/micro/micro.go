/*
 * wangemu-sub000 - microcode store and decoder for the 2200T micromachine.
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

// Package micro implements the 20-bit microinstruction word and its
// predecode sidecar for the Wang 2200T micromachine.
package micro

// Size of the microstore, in 20-bit words.
const Size = 16384

// Op is the decoded operation class of a microinstruction.
type Op uint8

// Operation classes. OpIllegal is the zero value so a zeroed Decoded
// is always treated as illegal.
const (
	OpIllegal Op = iota

	// register ALU
	OpOR
	OpXOR
	OpAND
	OpDSC // decimal subtract w/ carry
	OpA   // binary add
	OpAC  // binary add w/ carry
	OpDA  // decimal add
	OpDAC // decimal add w/ carry

	// register-immediate ALU
	OpORI
	OpXORI
	OpANDI
	OpAI
	OpACI
	OpDAI
	OpDACI

	// branches
	OpBER // branch if R[a]==R[b] (A-field may also carry a PC post-adjust)
	OpBNR
	OpSB // subroutine branch
	OpB  // unconditional branch
	OpBT // branch if true bittest
	OpBF // branch if false bittest
	OpBEQ
	OpBNE

	// mini-ops
	OpCIO
	OpSR  // subroutine return
	OpTPI // PC -> IC
	OpTIP // IC -> PC
	OpTMP // memsize -> PC
	OpTP  // PC -> Aux[n]
	OpTA  // Aux[n] -> PC
	OpXP  // exchange PC, Aux[n]
)

// Selector identifies where an A or B operand comes from, or where a C
// result is stored. The numeric values follow the field encodings used
// by the hardware's A/B/C specifier nibbles.
type Selector uint8

const (
	SelReg0 Selector = iota
	SelReg1
	SelReg2
	SelReg3
	SelReg4
	SelReg5
	SelReg6
	SelReg7
	SelKH
	SelKL
	SelST1
	SelST2
	SelPC1
	SelCH
	SelCL
	SelDummy
	SelST3
	SelST4
	SelPC2
	SelPC3
	SelPC4
	SelIllegal
)

// MField describes the memory operation accompanying a microinstruction.
type MField uint8

const (
	MNone MField = iota
	MRead
	MWrite1
	MWrite2
)

// Decoded is the predecode sidecar for one microinstruction: everything
// the executor needs without re-parsing the raw 20-bit word.
type Decoded struct {
	Op      Op
	FetchA  bool
	FetchB  bool
	ASel    Selector // valid when FetchA
	APCInc  int8     // PC low-nibble post-adjust implied by ASel (0, -1, +1)
	BSel    Selector // valid when FetchB
	CSel    Selector // destination selector (valid for ALU ops)
	CXBit   bool     // true if C field used the extended (x-bit) destination table
	M       MField
	P16     uint16 // branch target or Aux displacement, per Op
	Illegal bool

	// CIOBits is the CIO sub-field (raw word bits 0x10/0x20/0x40/0x80,
	// the same bit positions as aField) selecting which single strobe
	// CIO fires: 0x1 CBS, 0x2 OBS, 0x4 ABS, 0x8 AB:=K. Valid only when
	// Op==OpCIO.
	CIOBits uint8
}

// pcAdjust mirrors the hardware's A-field post-adjust table: nibble
// addresses 8..15 select the C latch halves, some of them also bumping
// the low nibble of PC by -1 or +1 after the operand is read.
var pcAdjust = [16]int8{
	0, 0, 0, 0, 0, 0, 0, 0,
	0, -1, +1, -1, 0, -1, +1, +1,
}

// aSelector maps the 4-bit A field to an operand selector. Fields 0-7
// are plain registers; 8-15 read one nibble of the C latch (or a dummy
// zero) with an implied PC adjust from pcAdjust.
func aSelector(field uint8) Selector {
	switch {
	case field < 8:
		return Selector(field)
	case field == 8, field == 9, field == 10:
		return SelCH
	case field == 11:
		return SelDummy
	case field == 12, field == 13, field == 14:
		return SelCL
	default: // 15
		return SelDummy
	}
}

// bSelector maps the 5-bit B field (registers 0-7 appear twice, at 0-7
// and 16-23, a quirk of how the hardware multiplexed the field) to an
// operand selector.
func bSelector(field uint8) Selector {
	switch field & 0x1F {
	case 0, 1, 2, 3, 4, 5, 6, 7:
		return Selector(field)
	case 8:
		return SelKH
	case 9:
		return SelKL
	case 10:
		return SelST1
	case 11:
		return SelST2
	case 12:
		return SelPC1
	case 13, 29:
		return SelCH
	case 14, 30:
		return SelCL
	case 15, 31:
		return SelDummy
	case 16, 17, 18, 19, 20, 21, 22, 23:
		return Selector(field - 16)
	case 24:
		return SelST3
	case 25:
		return SelST4
	case 26:
		return SelPC2
	case 27:
		return SelPC3
	case 28:
		return SelPC4
	default:
		return SelDummy
	}
}

// cSelector maps the 4-bit C field plus the x-bit (bit 14 of the raw
// word) to a destination selector. Fields 13 and 14 are illegal in
// both tables.
func cSelector(field uint8, xbit bool) (sel Selector, illegal bool) {
	if field < 8 {
		return Selector(field), false
	}
	if !xbit {
		switch field {
		case 8:
			return SelKH, false
		case 9:
			return SelKL, false
		case 10:
			return SelST1, false
		case 11:
			return SelST2, false
		case 12:
			return SelPC1, false
		case 15:
			return SelDummy, false
		default:
			return SelIllegal, true
		}
	}
	switch field {
	case 8:
		return SelST3, false
	case 9:
		return SelST4, false
	case 10:
		return SelPC2, false
	case 11:
		return SelPC3, false
	case 12:
		return SelPC4, false
	case 15:
		return SelDummy, false
	default:
		return SelIllegal, true
	}
}

// branchTarget computes the page-relative branch target used by
// BER/BNR/BEQ/BNE/BT/BF: the high byte comes from the address the
// instruction is stored at, the low byte from the raw word.
func branchTarget(addr uint16, uop uint32) uint16 {
	return uint16((uint32(addr) & 0xFF00) | ((uop >> 4) & 0xF0) | (uop & 0x0F))
}

// fullTarget computes the absolute branch target used by SB and B.
func fullTarget(uop uint32) uint16 {
	return uint16((uop & 0xF00F) | ((uop << 4) & 0x0F00) | ((uop >> 4) & 0x00F0))
}

// Decode classifies a raw 20-bit microword stored at addr. It always
// returns a Decoded value: either a fully classified operation or one
// with Illegal set and Op==OpIllegal.
func Decode(addr uint16, raw uint32) Decoded {
	uop := raw & 0x000FFFFF

	opcode1 := uint8((uop >> 15) & 0x1F)
	opcode2 := uint8((uop >> 10) & 0x1F)
	mField := uint8((uop >> 8) & 0x3)
	aField := uint8((uop >> 4) & 0xF)
	cField := uint8(uop & 0xF)
	xbit := (uop>>14)&0x1 != 0

	var d Decoded

	regALU := func(op Op) {
		d.Op = op
		d.FetchA = true
		d.FetchB = true
		d.ASel = aSelector(aField)
		d.APCInc = pcAdjust[aField]
		d.BSel = bSelector(uint8((uop >> 10) & 0x1F))
		sel, illegal := cSelector(cField, xbit)
		d.CSel = sel
		d.CXBit = xbit
		d.Illegal = illegal
		d.M = MField(0)
		if mField > 1 {
			d.M = MField(mField)
		} else if mField == 1 {
			d.M = MRead
		}
	}

	regALUImm := func(op Op) {
		d.Op = op
		d.FetchA = false // A is the literal aField itself, fetched by executor
		d.FetchB = true
		d.ASel = Selector(aField) // reused as the literal value holder
		d.BSel = bSelector(uint8((uop >> 10) & 0x1F))
		sel, illegal := cSelector(cField, xbit)
		d.CSel = sel
		d.CXBit = xbit
		d.Illegal = illegal
		d.M = MField(0)
		if mField > 1 {
			d.M = MField(mField)
		} else if mField == 1 {
			d.M = MRead
		}
	}

	crackM := func(op Op, p16 uint16) {
		d.Op = op
		d.P16 = p16
		if mField > 1 {
			d.FetchA = true
			d.ASel = aSelector(aField)
			d.APCInc = pcAdjust[aField]
			if aField >= 9 && aField != 12 {
				d.Illegal = true
			}
		}
		d.M = MField(0)
		if mField > 1 {
			d.M = MField(mField)
		} else if mField == 1 {
			d.M = MRead
		}
	}

	switch {
	case opcode1 <= 0x07:
		if cField == 13 || cField == 14 {
			d.Illegal = true
		}
		regALU(Op(int(OpOR) + int(opcode1)))

	case opcode1 >= 0x08 && opcode1 <= 0x0A:
		regALUImm(Op(int(OpORI) + int(opcode1-0x08)))
	case opcode1 >= 0x0C && opcode1 <= 0x0F:
		regALUImm(Op(int(OpAI) + int(opcode1-0x0C)))

	case opcode1 == 0x0B:
		switch opcode2 {
		case 0x00: // CIO
			d.Op = OpCIO
			d.Illegal = (uop & 0x00000200) != 0
			d.CIOBits = aField
		case 0x01:
			crackM(OpSR, 0)
		case 0x05:
			crackM(OpTPI, 0)
		case 0x06:
			crackM(OpTIP, 0)
		case 0x07:
			crackM(OpTMP, 0)
		case 0x02:
			crackM(OpTP, 0)
		case 0x08:
			crackM(OpTP, 1)
		case 0x09:
			crackM(OpTP, 0xFFFF) // -1
		case 0x0A:
			crackM(OpTP, 2)
		case 0x0B:
			crackM(OpTP, 0xFFFE) // -2
		case 0x03:
			crackM(OpTA, 0)
		case 0x04:
			crackM(OpXP, 0)
		case 0x0C:
			crackM(OpXP, 1)
		case 0x0D:
			crackM(OpXP, 0xFFFF) // -1
		case 0x0E:
			crackM(OpXP, 2)
		case 0x0F:
			crackM(OpXP, 0xFFFE) // -2
		default:
			d.Illegal = true
		}

	case opcode1 == 0x10, opcode1 == 0x11:
		d.Op = OpBER
		d.FetchA = true
		d.FetchB = true
		d.ASel = aSelector(aField)
		d.APCInc = pcAdjust[aField]
		d.BSel = bSelector(uint8((uop >> 12) & 0xF))
		d.P16 = branchTarget(addr, uop)

	case opcode1 == 0x12, opcode1 == 0x13:
		d.Op = OpBNR
		d.FetchA = true
		d.FetchB = true
		d.ASel = aSelector(aField)
		d.APCInc = pcAdjust[aField]
		d.BSel = bSelector(uint8((uop >> 12) & 0xF))
		d.P16 = branchTarget(addr, uop)

	case opcode1 == 0x1C, opcode1 == 0x1D:
		d.Op = OpBEQ
		d.FetchB = true
		d.BSel = bSelector(uint8((uop >> 12) & 0xF))
		d.ASel = Selector(aField)
		d.P16 = branchTarget(addr, uop)

	case opcode1 == 0x1E, opcode1 == 0x1F:
		d.Op = OpBNE
		d.FetchB = true
		d.BSel = bSelector(uint8((uop >> 12) & 0xF))
		d.ASel = Selector(aField)
		d.P16 = branchTarget(addr, uop)

	case opcode1 == 0x18, opcode1 == 0x19:
		d.Op = OpBT
		d.FetchB = true
		d.BSel = bSelector(uint8((uop >> 12) & 0xF))
		d.ASel = Selector(aField)
		d.P16 = branchTarget(addr, uop)

	case opcode1 == 0x1A, opcode1 == 0x1B:
		d.Op = OpBF
		d.FetchB = true
		d.BSel = bSelector(uint8((uop >> 12) & 0xF))
		d.ASel = Selector(aField)
		d.P16 = branchTarget(addr, uop)

	case opcode1 == 0x14, opcode1 == 0x15:
		d.Op = OpSB
		d.P16 = fullTarget(uop)

	case opcode1 == 0x16, opcode1 == 0x17:
		d.Op = OpB
		d.P16 = fullTarget(uop)

	default:
		d.Illegal = true
	}

	if d.Illegal {
		d = Decoded{Op: OpIllegal, Illegal: true}
	}
	return d
}

// Store is the 16K x 20-bit writable microinstruction memory with its
// predecode sidecar. Writing through Write keeps both arrays in sync,
// per the single-source-of-truth requirement for diagnostic ROMs and
// BASIC operations that patch microcode at runtime.
type Store struct {
	raw     [Size]uint32
	decoded [Size]Decoded
}

// Write stores a raw microword at addr and updates its predecode entry.
func (s *Store) Write(addr uint16, word uint32) {
	s.raw[addr] = word & 0x000FFFFF
	s.decoded[addr] = Decode(addr, word)
}

// Raw returns the raw microword stored at addr.
func (s *Store) Raw(addr uint16) uint32 { return s.raw[addr] }

// Decoded returns the predecoded entry stored at addr.
func (s *Store) Decoded(addr uint16) Decoded { return s.decoded[addr] }

// LoadImage bulk-loads a microcode ROM image (one 32-bit word per
// microstore address, low 20 bits meaningful) starting at address 0.
func (s *Store) LoadImage(words []uint32) {
	for i, w := range words {
		if i >= Size {
			break
		}
		s.Write(uint16(i), w)
	}
}
