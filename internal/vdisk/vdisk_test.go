package vdisk

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestCreateWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wvd")

	v, err := Create(path, Type5_25, 1, 16, "scratch")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer v.Close()

	data := bytes.Repeat([]byte{0xAB}, sectorSize)
	if err := v.WriteSector(0, 3, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	buf := make([]byte, sectorSize)
	if err := v.ReadSector(0, 3, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, data) {
		t.Fatalf("round trip mismatch")
	}
}

func TestReopenPreservesHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wvd")

	v, err := Create(path, Type2260Fixed, 2, 32, "mylabel")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	v2, err := Open(path, true)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer v2.Close()
	if v2.Label() != "mylabel" || v2.Platters() != 2 || v2.SectorsPerPlatter() != 32 {
		t.Fatalf("header not preserved: %+v", v2.hdr)
	}
}

func TestWriteProtectRejectsWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wvd")

	v, err := Create(path, Type5_25, 1, 8, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer v.Close()
	v.SetWriteProtect(true)

	data := make([]byte, sectorSize)
	if err := v.WriteSector(0, 0, data); err != ErrWriteProtected {
		t.Fatalf("expected ErrWriteProtected, got %v", err)
	}
}

func TestSectorRangeChecked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wvd")
	v, err := Create(path, Type5_25, 1, 4, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer v.Close()

	buf := make([]byte, sectorSize)
	if err := v.ReadSector(0, 99, buf); err != ErrSectorRange {
		t.Fatalf("expected ErrSectorRange, got %v", err)
	}
	if err := v.ReadSector(5, 0, buf); err != ErrSectorRange {
		t.Fatalf("expected ErrSectorRange for bad platter, got %v", err)
	}
}

func TestRegistryRejectsDoubleOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wvd")
	v, err := Create(path, Type5_25, 1, 4, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	v.Close()

	reg := NewRegistry()
	first, err := reg.Open(path, true)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	defer reg.Close(path)
	_ = first

	if _, err := reg.Open(path, true); err == nil {
		t.Fatalf("expected double-open to fail")
	}
}

func TestFormatZeroesPlatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wvd")
	v, err := Create(path, Type5_25, 1, 4, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer v.Close()

	data := bytes.Repeat([]byte{0xFF}, sectorSize)
	v.WriteSector(0, 1, data)
	if err := v.Format(0); err != nil {
		t.Fatalf("format: %v", err)
	}
	buf := make([]byte, sectorSize)
	v.ReadSector(0, 1, buf)
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("sector not zeroed after format")
		}
	}
}
