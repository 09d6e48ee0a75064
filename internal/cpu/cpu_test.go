package cpu

import (
	"testing"

	"github.com/jtbattle/wangemu-sub000/internal/micro"
)

type stubBus struct {
	busy      bool
	ib5       bool
	pollByte  uint8
	pollReady bool
	lastBusy  []bool

	absCalls, obsCalls, cbsCalls int
	lastABS, lastOBS, lastCBS    uint8
}

func (s *stubBus) ABS(slot uint8) { s.absCalls++; s.lastABS = slot }
func (s *stubBus) OBS(data uint8) { s.obsCalls++; s.lastOBS = data }
func (s *stubBus) CBS(data uint8) { s.cbsCalls++; s.lastCBS = data }
func (s *stubBus) CPB() bool      { return s.busy }
func (s *stubBus) PollIB5() bool  { return s.ib5 }
func (s *stubBus) PollIBS() (uint8, bool) {
	if !s.pollReady {
		return 0, false
	}
	s.pollReady = false
	return s.pollByte, true
}
func (s *stubBus) NotifyCPUBusy(busy bool) { s.lastBusy = append(s.lastBusy, busy) }

// orWord builds a raw microword for "R[c] = R[a] OR R[b]".
func orWord(a, b, cc uint8) uint32 {
	return uint32(0)<<15 | uint32(b)<<10 | uint32(a)<<4 | uint32(cc)
}

func TestORMicroStep(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, orWord(1, 2, 3))

	c := New(store, &stubBus{}, 4)
	c.R[1] = 0x5
	c.R[2] = 0xA

	if err := c.Step(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.R[3] != 0xF {
		t.Fatalf("R[3] = %X, want F", c.R[3])
	}
	if c.IC != 1 {
		t.Fatalf("IC = %d, want 1", c.IC)
	}
}

// aciWord builds "R[c] = R[b] + carry + imm, with carry out" (add w/ carry, opcode1=0x0D: AI+1 == ACI).
func aciWord(imm, b, cc uint8) uint32 {
	return uint32(0x0D)<<15 | uint32(b)<<10 | uint32(imm)<<4 | uint32(cc)
}

func TestCarryChain(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, aciWord(0x8, 0, 1))
	store.Write(1, aciWord(0x8, 1, 2))

	c := New(store, &stubBus{}, 4)
	c.R[0] = 0x8 // 8+8 = 16 -> carry out, 4-bit result wraps to 0

	if err := c.Step(); err != nil {
		t.Fatalf("step1: %v", err)
	}
	if c.R[1] != 0x0 {
		t.Fatalf("R[1] = %X, want 0", c.R[1])
	}
	if c.ST1&0x1 == 0 {
		t.Fatalf("expected carry set in ST1 bit0 after first add")
	}

	c.R[1] = 0x7 // 8 + 7 + carry(1) = 16 -> carry, result wraps to 0
	if err := c.Step(); err != nil {
		t.Fatalf("step2: %v", err)
	}
	if c.R[2] != 0x0 {
		t.Fatalf("R[2] = %X, want 0 (carry propagated)", c.R[2])
	}
}

func TestHorizontalMemoryWriteReadback(t *testing.T) {
	store := &micro.Store{}
	c := New(store, &stubBus{}, 4)
	// ST3 bit3 unset == horizontal mode by default.
	c.writeNibble1(romSize, 0xA) // first nibble of RAM bank 1
	if got := c.readNibble(romSize); got != 0xA {
		t.Fatalf("horizontal readback = %X, want A", got)
	}
	c.writeNibble1(romSize+1, 0x5)
	if got := c.readNibble(romSize + 1); got != 0x5 {
		t.Fatalf("horizontal readback = %X, want 5", got)
	}
	// first nibble must be untouched by the second write (same byte).
	if got := c.readNibble(romSize); got != 0xA {
		t.Fatalf("first nibble clobbered: got %X", got)
	}
}

func TestVerticalMemoryMode(t *testing.T) {
	store := &micro.Store{}
	c := New(store, &stubBus{}, 4)
	c.ST3 |= 0x08 // vertical mode
	c.writeNibble1(romSize, 0x3)
	if got := c.readNibble(romSize); got != 0x3 {
		t.Fatalf("vertical readback = %X, want 3", got)
	}
}

// sbWord/srWord build the two opcodes under test.
func sbWord(target uint16) uint32 {
	return uint32(0x14)<<15 | (uint32(target) & 0xF00F) | ((uint32(target) << 4) & 0x0F00) | ((uint32(target) >> 4) & 0x00F0)
}

func srWord() uint32 {
	return uint32(0x0B)<<15 | uint32(0x01)<<10
}

func TestSubroutineCallReturnQuirk(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, sbWord(10)) // SB to 10
	store.Write(10, srWord())  // immediately returns

	c := New(store, &stubBus{}, 4)

	if err := c.Step(); err != nil { // executes SB, ic -> 10, stack has {0}
		t.Fatalf("SB step: %v", err)
	}
	if c.IC != 10 {
		t.Fatalf("IC after SB = %d, want 10", c.IC)
	}

	if err := c.Step(); err != nil { // executes SR, ic -> 0 (the SB instruction again), prevSR set
		t.Fatalf("SR step: %v", err)
	}
	if c.IC != 0 {
		t.Fatalf("IC after SR = %d, want 0 (back at call site)", c.IC)
	}
	if !c.prevSR {
		t.Fatalf("prevSR flag should be set immediately after SR")
	}

	if err := c.Step(); err != nil { // re-executes the SB word, but as a no-op due to prevSR
		t.Fatalf("post-SR step: %v", err)
	}
	if c.IC != 1 {
		t.Fatalf("IC after post-SR no-op = %d, want 1 (advanced past the SB, not re-entered)", c.IC)
	}
	if c.prevSR {
		t.Fatalf("prevSR should be cleared after the no-op consumes it")
	}
}

func TestICStackWrapsAt16(t *testing.T) {
	store := &micro.Store{}
	c := New(store, &stubBus{}, 4)
	for i := 0; i < icStackDepth+3; i++ {
		c.pushIC(uint16(i))
	}
	// after depth+3 pushes, the oldest 3 entries were overwritten; the
	// most recent pop must return depth+2.
	got := c.popIC()
	if got != uint16(icStackDepth+2) {
		t.Fatalf("popIC = %d, want %d", got, icStackDepth+2)
	}
}

func TestIllegalOpcodeFaultsWithoutPanic(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, uint32(0x0B)<<15|uint32(0x1F)<<10) // CIO opcode2 out of range -> illegal
	c := New(store, &stubBus{}, 4)
	err := c.Step()
	if err == nil {
		t.Fatalf("expected fault error")
	}
	if _, ok := err.(*FaultError); !ok {
		t.Fatalf("expected *FaultError, got %T", err)
	}
}

// beqWord/bneWord/btWord/bfWord build branch microwords with a literal
// A-field value and a B field in the 5-bit (really 4-bit, here) encoding
// bSelector consumes -- field 10 aliases SelST1, field 11 SelST2, which
// are not valid indices into CPU.R and must be read via readSel.
func beqWord(aLit, bField, cField uint8) uint32 {
	return uint32(0x1C)<<15 | uint32(bField)<<12 | uint32(aLit)<<4 | uint32(cField)
}

func bneWord(aLit, bField, cField uint8) uint32 {
	return uint32(0x1E)<<15 | uint32(bField)<<12 | uint32(aLit)<<4 | uint32(cField)
}

func btWord(aLit, bField, cField uint8) uint32 {
	return uint32(0x18)<<15 | uint32(bField)<<12 | uint32(aLit)<<4 | uint32(cField)
}

func bfWord(aLit, bField, cField uint8) uint32 {
	return uint32(0x1A)<<15 | uint32(bField)<<12 | uint32(aLit)<<4 | uint32(cField)
}

func TestBranchEQOnStatusSelectorDoesNotPanic(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, beqWord(0x5, 10, 0)) // B field 10 -> SelST1, out of R's range
	c := New(store, &stubBus{}, 4)
	c.ST1 = 0x5
	want := store.Decoded(0).P16
	if err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.IC != want {
		t.Fatalf("IC = %d, want %d (branch taken on equal)", c.IC, want)
	}
}

func TestBranchNEOnStatusSelectorDoesNotPanic(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, bneWord(0x5, 10, 0))
	c := New(store, &stubBus{}, 4)
	c.ST1 = 0x5 // equal, so BNE must not branch
	if err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.IC != 1 {
		t.Fatalf("IC = %d, want 1 (branch not taken)", c.IC)
	}
}

func TestBitTestMaskAndCompare(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, btWord(0x6, 11, 0)) // mask 0110, B field 11 -> SelST2
	c := New(store, &stubBus{}, 4)
	c.ST2 = 0xE // 1110: bits 1 and 2 both set, mask fully satisfied
	want := store.Decoded(0).P16
	if err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.IC != want {
		t.Fatalf("BT should be taken when every masked bit is set: IC=%d want %d", c.IC, want)
	}
}

func TestBitTestNotTakenWhenMaskPartiallyClear(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, btWord(0x6, 11, 0))
	c := New(store, &stubBus{}, 4)
	c.ST2 = 0x4 // only bit 2 of the 0110 mask is set
	if err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.IC != 1 {
		t.Fatalf("BT should not be taken: IC=%d", c.IC)
	}
}

func TestBitFalseInvertsOperandBeforeComparing(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, bfWord(0x6, 11, 0)) // mask 0110
	c := New(store, &stubBus{}, 4)
	c.ST2 = 0x1 // bits 1,2 both clear -> inverted, both set -> BF taken
	want := store.Decoded(0).P16
	if err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.IC != want {
		t.Fatalf("BF should be taken: IC=%d want %d", c.IC, want)
	}
}

func dscWord(a, b, cc uint8) uint32 {
	return uint32(3)<<15 | uint32(b)<<10 | uint32(a)<<4 | uint32(cc)
}

func TestDecimalSubtractWithCarryUsesST1(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, dscWord(2, 0, 1)) // R[1] = decimalSub(R[2], R[0], ST1&1)
	c := New(store, &stubBus{}, 4)
	c.R[2] = 3
	c.R[0] = 5
	if err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.R[1] != 8 {
		t.Fatalf("R[1] = %X, want 8 (3-5 borrows, +10)", c.R[1])
	}
	if c.ST1&0x1 == 0 {
		t.Fatalf("expected borrow flag set in ST1 bit0")
	}
	if c.ST2 != 0 {
		t.Fatalf("ST2 must not be touched by DSC, got %X", c.ST2)
	}
}

func TestSetST1NotifiesBusOnlyOnCPBEdge(t *testing.T) {
	store := &micro.Store{}
	sb := &stubBus{}
	c := New(store, sb, 4)

	c.setST1(0x02) // raise CPB
	if len(sb.lastBusy) != 1 || !sb.lastBusy[0] {
		t.Fatalf("expected one busy=true notification, got %+v", sb.lastBusy)
	}

	c.setST1(0x00) // drop CPB
	if len(sb.lastBusy) != 2 || sb.lastBusy[1] {
		t.Fatalf("expected one busy=false notification, got %+v", sb.lastBusy)
	}

	c.setST1(0x01) // carry bit only, CPB unchanged
	if len(sb.lastBusy) != 2 {
		t.Fatalf("a non-CPB bit change must not notify the bus, got %+v", sb.lastBusy)
	}
}

func cioWord(bits uint8) uint32 {
	return uint32(0x0B)<<15 | uint32(bits&0xF)<<4
}

func TestCIOFiresExactlyOneStrobe(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, cioWord(0x2)) // OBS only
	sb := &stubBus{}
	c := New(store, sb, 4)
	c.C = 0x42
	if err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if sb.obsCalls != 1 || sb.lastOBS != 0x42 {
		t.Fatalf("expected exactly one OBS(0x42), got %d calls, last=%X", sb.obsCalls, sb.lastOBS)
	}
	if sb.absCalls != 0 || sb.cbsCalls != 0 {
		t.Fatalf("only OBS should have fired, got ABS=%d CBS=%d", sb.absCalls, sb.cbsCalls)
	}
}

func TestCIOLoadsABFromKBeforeStrobing(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, cioWord(0x8|0x4)) // AB:=K, then fire ABS
	sb := &stubBus{}
	c := New(store, sb, 4)
	c.K = 0x07
	if err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.AB != 0x07 {
		t.Fatalf("AB = %X, want 07", c.AB)
	}
	if sb.absCalls != 1 || sb.lastABS != 0x07 {
		t.Fatalf("expected ABS(0x07), got %d calls, last=%X", sb.absCalls, sb.lastABS)
	}
}

func TestStepPollsBusAndLatchesK(t *testing.T) {
	store := &micro.Store{}
	store.Write(0, orWord(0, 0, 0))
	sb := &stubBus{pollReady: true, pollByte: 0x9}
	c := New(store, sb, 4)
	if err := c.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if c.K != 0x9 {
		t.Fatalf("K = %X, want 9 after the implicit input strobe", c.K)
	}
	if c.ST1&0x02 == 0 {
		t.Fatalf("expected CPB bit set in ST1 once a polled byte is delivered")
	}
}
