package bus

import "testing"

type fakeCard struct {
	selected  bool
	busy      bool
	ib5       bool
	lastOBS   uint8
	lastCBS   uint8
	resets    int
	pollByte  uint8
	pollReady bool
	cpuBusy   bool
}

func (f *fakeCard) Reset()      { f.resets++ }
func (f *fakeCard) Select()     { f.selected = true }
func (f *fakeCard) Deselect()   { f.selected = false }
func (f *fakeCard) OBS(d uint8) { f.lastOBS = d }
func (f *fakeCard) CBS(d uint8) { f.lastCBS = d }
func (f *fakeCard) CPB() bool   { return f.busy }
func (f *fakeCard) IB5() bool   { return f.ib5 }
func (f *fakeCard) Poll() (uint8, bool) {
	if !f.pollReady {
		return 0, false
	}
	f.pollReady = false
	return f.pollByte, true
}
func (f *fakeCard) CPUBusy(busy bool) { f.cpuBusy = busy }

func TestSelectDeselect(t *testing.T) {
	b := New()
	a := &fakeCard{}
	c := &fakeCard{}
	b.Attach(1, a)
	b.Attach(2, c)

	b.ABS(1)
	if !a.selected {
		t.Fatalf("card a should be selected")
	}
	b.ABS(2)
	if a.selected {
		t.Fatalf("card a should be deselected")
	}
	if !c.selected {
		t.Fatalf("card c should be selected")
	}
}

func TestStrobesReachSelectedCardOnly(t *testing.T) {
	b := New()
	a := &fakeCard{}
	c := &fakeCard{}
	b.Attach(1, a)
	b.Attach(2, c)
	b.ABS(1)
	b.OBS(0x42)
	b.CBS(0x07)
	if a.lastOBS != 0x42 || a.lastCBS != 0x07 {
		t.Fatalf("selected card did not receive strobes")
	}
	if c.lastOBS != 0 || c.lastCBS != 0 {
		t.Fatalf("unselected card received strobes")
	}
}

func TestUnselectedSlotNeverBusy(t *testing.T) {
	b := New()
	if b.CPB() {
		t.Fatalf("empty bus should never report busy")
	}
}

func TestResetDeselectsAndResetsAllCards(t *testing.T) {
	b := New()
	a := &fakeCard{}
	b.Attach(5, a)
	b.ABS(5)
	b.Reset()
	if a.resets != 1 {
		t.Fatalf("card was not reset")
	}
	if _, ok := b.Selected(); ok {
		t.Fatalf("bus should have nothing selected after reset")
	}
}

func TestPollIBSReachesOnlySelectedCard(t *testing.T) {
	b := New()
	a := &fakeCard{pollReady: true, pollByte: 0x55}
	c := &fakeCard{pollReady: true, pollByte: 0xAA}
	b.Attach(1, a)
	b.Attach(2, c)
	b.ABS(2)

	data, ok := b.PollIBS()
	if !ok || data != 0xAA {
		t.Fatalf("PollIBS = %X,%v, want AA,true", data, ok)
	}
	if !a.pollReady {
		t.Fatalf("unselected card's pending byte should not have been consumed")
	}
}

func TestNotifyCPUBusyReachesSelectedCard(t *testing.T) {
	b := New()
	a := &fakeCard{}
	b.Attach(4, a)
	b.ABS(4)
	b.NotifyCPUBusy(true)
	if !a.cpuBusy {
		t.Fatalf("selected card should have observed the busy edge")
	}
}

func TestDetachDuringSelection(t *testing.T) {
	b := New()
	a := &fakeCard{}
	b.Attach(3, a)
	b.ABS(3)
	b.Detach(3)
	if _, ok := b.Selected(); ok {
		t.Fatalf("slot should be deselected after detach")
	}
	if b.CPB() {
		t.Fatalf("detached slot should never report busy")
	}
}
