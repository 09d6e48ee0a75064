package diskctrl

import (
	"path/filepath"
	"testing"

	"github.com/jtbattle/wangemu-sub000/internal/sched"
	"github.com/jtbattle/wangemu-sub000/internal/vdisk"
)

func newTestDisk(t *testing.T, protect bool) *vdisk.Vdisk {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unit0.wvd")
	v, err := vdisk.Create(path, vdisk.Type5_25, 1, 16, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	v.SetWriteProtect(protect)
	return v
}

func TestWakeupHandshakeSelectsUnit(t *testing.T) {
	s := sched.New()
	c := New(s, Auto)
	c.Mount(0, newTestDisk(t, false))

	c.CBS(0xA0) // CAX, unit 0
	c.OBS(0x00) // host id byte
	if c.st != stCommand {
		t.Fatalf("expected stCommand after wakeup, got %v", c.st)
	}
	if c.selectedUnit != 0 {
		t.Fatalf("expected unit 0 selected")
	}
}

func TestWriteRejectedWhenProtected(t *testing.T) {
	s := sched.New()
	c := New(s, Auto)
	c.Mount(0, newTestDisk(t, true))

	c.CBS(0xA0)
	c.OBS(0x00)              // host id byte
	c.OBS(byte(CmdWrite)<<5) // command byte: write, platter 0

	// feed the two sector-address bytes
	c.OBS(0x00)
	c.OBS(0x01)

	// feed 256 data bytes + LRC
	var lrc uint8
	for i := 0; i < 256; i++ {
		c.OBS(0x42)
		lrc += 0x42
	}
	c.OBS(lrc)

	if !c.CompareErr() {
		t.Fatalf("expected compare error writing to a protected disk")
	}
}

func TestLRCMismatchDetected(t *testing.T) {
	s := sched.New()
	c := New(s, Auto)
	c.Mount(0, newTestDisk(t, false))

	c.CBS(0xA0)
	c.OBS(0x00) // host id byte
	c.OBS(byte(CmdWrite) << 5)
	c.OBS(0x00)
	c.OBS(0x02)
	for i := 0; i < 256; i++ {
		c.OBS(0x01) // lrc should end up as 256 mod 256 == 0
	}
	c.OBS(0xFF) // deliberately wrong
	if !c.CompareErr() {
		t.Fatalf("expected compare error on LRC mismatch")
	}
}

func TestMotorOffTimerIdlesDrive(t *testing.T) {
	s := sched.New()
	c := New(s, Auto)
	c.Mount(0, newTestDisk(t, false))
	c.CBS(0xA0)

	if c.drives[0].state != driveSpinning && c.drives[0].state != driveIdle {
		t.Fatalf("unexpected initial drive state")
	}
	c.drives[0].state = driveSpinning
	s.Advance(motorOffTicks + 1)
	if c.drives[0].state != driveIdle {
		t.Fatalf("drive did not spin down after inactivity timeout")
	}
}

func TestReadDeliversSectorDataThenStatusViaPoll(t *testing.T) {
	s := sched.New()
	c := New(s, Auto)
	v := newTestDisk(t, false)
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	if err := v.WriteSector(0, 3, data); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	c.Mount(0, v)

	c.CBS(0xA0)
	c.OBS(0x00)               // host id byte
	c.OBS(byte(CmdRead) << 5) // command byte: read, platter 0
	c.OBS(0x00)               // sector address hi
	c.OBS(0x03)               // sector address lo

	if !c.CPB() {
		t.Fatalf("expected CPB asserted once sector data is queued")
	}

	var lrc uint8
	for i := 0; i < 256; i++ {
		b, ok := c.Poll()
		if !ok {
			t.Fatalf("expected data byte %d, got none", i)
		}
		if b != data[i] {
			t.Fatalf("byte %d = %X, want %X", i, b, data[i])
		}
		lrc += b
	}

	gotLRC, ok := c.Poll()
	if !ok || gotLRC != lrc {
		t.Fatalf("Poll LRC = %X,%v, want %X,true", gotLRC, ok, lrc)
	}

	status, ok := c.Poll()
	if !ok {
		t.Fatalf("expected a status byte after the data phase drains")
	}
	if status != 0 {
		t.Fatalf("status = %X, want 0 (no compare error)", status)
	}

	if _, ok := c.Poll(); ok {
		t.Fatalf("expected no further queued bytes after status")
	}
}

func TestCopyDuplicatesSectors(t *testing.T) {
	s := sched.New()
	c := New(s, Auto)
	path := filepath.Join(t.TempDir(), "two.wvd")
	v, err := vdisk.Create(path, vdisk.Type5_25, 2, 16, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	c.Mount(0, v)
	c.selectedUnit = 0

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	if err := v.WriteSector(0, 5, data); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	if err := c.Copy(0, 1); err != nil {
		t.Fatalf("copy: %v", err)
	}

	got := make([]byte, 256)
	if err := v.ReadSector(1, 5, got); err != nil {
		t.Fatalf("verify read: %v", err)
	}
	for i := range got {
		if got[i] != data[i] {
			t.Fatalf("copy mismatch at byte %d", i)
		}
	}
}
