/*
 * wangemu-sub000 - virtual disk (.wvd) image store.
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

// Package vdisk implements the .wvd virtual disk image format: a
// 256-byte header followed by platters*sectorsPerPlatter 256-byte
// sectors. Grounded on the original Wvd class's create/open/save/
// readSector/writeSector/flush surface, and on the teacher's
// util/tape.Context buffered-file style (struct-held *os.File, a
// dirty flag, sentinel errors for protocol misuse).
package vdisk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	headerSize  = 256
	sectorSize  = 256
	magicValue  = 0x5732_3030 // "W200"-derived magic, big-endian in the header
	labelOffset = 16
	labelSize   = 64
)

// Sentinel errors, matching the teacher's util/tape style of plain
// package-level errors.New values rather than typed error structs.
var (
	ErrNotOpen        = errors.New("vdisk: not open")
	ErrWriteProtected = errors.New("vdisk: write protected")
	ErrBadMagic       = errors.New("vdisk: bad header magic")
	ErrSectorRange    = errors.New("vdisk: sector out of range")
	ErrAlreadyOpen    = errors.New("vdisk: path already open")
)

// DiskType enumerates the disk geometries the header's disktype byte
// can name. Values mirror the original Wvd header's disktype field.
type DiskType uint8

const (
	Type5_25 DiskType = iota
	Type8InchDD
	Type2260Fixed
	Type2270Removable
)

// header is the 256-byte on-disk metadata block.
type header struct {
	magic         uint32
	diskType      DiskType
	platters      uint8
	sectorsPerPlat uint16
	writeProtect  bool
	label         string
}

// Vdisk is one open virtual disk image: a cached header plus the
// backing file. metadataStale mirrors Wvd::reopen()'s trigger -- the
// label and write-protect setters mark the cached header stale, and
// the next Flush (or Close) rewrites it; sector I/O does not.
type Vdisk struct {
	path          string
	file          *os.File
	hdr           header
	modified      bool
	metadataStale bool
}

// Create makes a new image at path with the given geometry and zero-
// fills every sector. Grounded on Wvd::create().
func Create(path string, dt DiskType, platters int, sectorsPerPlatter uint16, label string) (*Vdisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("vdisk: create %s: %w", path, err)
	}
	v := &Vdisk{
		path: path,
		file: f,
		hdr: header{
			magic:          magicValue,
			diskType:       dt,
			platters:       uint8(platters),
			sectorsPerPlat: sectorsPerPlatter,
			label:          label,
		},
	}
	if err := v.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	total := int64(platters) * int64(sectorsPerPlatter) * sectorSize
	if err := f.Truncate(headerSize + total); err != nil {
		f.Close()
		return nil, fmt.Errorf("vdisk: allocate %s: %w", path, err)
	}
	return v, nil
}

// Open reads an existing image's header and returns a ready Vdisk.
// Grounded on Wvd::open().
func Open(path string, writable bool) (*Vdisk, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("vdisk: open %s: %w", path, err)
	}
	v := &Vdisk{path: path, file: f}
	if err := v.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return v, nil
}

// Close flushes pending metadata and releases the file handle.
func (v *Vdisk) Close() error {
	if v.file == nil {
		return nil
	}
	err := v.Flush()
	cerr := v.file.Close()
	v.file = nil
	if err != nil {
		return err
	}
	return cerr
}

// Flush rewrites the header if metadata has gone stale, and syncs the
// file. Grounded on Wvd::flush()/reopen().
func (v *Vdisk) Flush() error {
	if v.file == nil {
		return ErrNotOpen
	}
	if v.metadataStale {
		if err := v.writeHeader(); err != nil {
			return err
		}
		v.metadataStale = false
	}
	return v.file.Sync()
}

// Save writes the image to a new path, leaving the receiver's own
// backing file untouched. Grounded on Wvd::save(filename).
func (v *Vdisk) Save(newPath string) error {
	if v.file == nil {
		return ErrNotOpen
	}
	if err := v.Flush(); err != nil {
		return err
	}
	src, err := os.Open(v.path)
	if err != nil {
		return fmt.Errorf("vdisk: save reopen %s: %w", v.path, err)
	}
	defer src.Close()
	dst, err := os.OpenFile(newPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("vdisk: save create %s: %w", newPath, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("vdisk: save copy: %w", err)
	}
	return nil
}

// ReadSector reads one 256-byte sector from the given platter.
func (v *Vdisk) ReadSector(platter int, sector uint16, buf []byte) error {
	if v.file == nil {
		return ErrNotOpen
	}
	if len(buf) < sectorSize {
		return fmt.Errorf("vdisk: read buffer too small: %d", len(buf))
	}
	off, err := v.sectorOffset(platter, sector)
	if err != nil {
		return err
	}
	_, err = v.file.ReadAt(buf[:sectorSize], off)
	if err != nil {
		return fmt.Errorf("vdisk: read sector %d/%d: %w", platter, sector, err)
	}
	return nil
}

// WriteSector writes one 256-byte sector to the given platter. Fails
// with ErrWriteProtected while the image's write-protect flag is set.
func (v *Vdisk) WriteSector(platter int, sector uint16, buf []byte) error {
	if v.file == nil {
		return ErrNotOpen
	}
	if v.hdr.writeProtect {
		return ErrWriteProtected
	}
	if len(buf) < sectorSize {
		return fmt.Errorf("vdisk: write buffer too small: %d", len(buf))
	}
	off, err := v.sectorOffset(platter, sector)
	if err != nil {
		return err
	}
	if _, err := v.file.WriteAt(buf[:sectorSize], off); err != nil {
		return fmt.Errorf("vdisk: write sector %d/%d: %w", platter, sector, err)
	}
	v.modified = true
	return nil
}

// Format zero-fills every sector of one platter. Grounded on
// Wvd::format(platter).
func (v *Vdisk) Format(platter int) error {
	if v.hdr.writeProtect {
		return ErrWriteProtected
	}
	zero := make([]byte, sectorSize)
	for s := uint16(0); s < v.hdr.sectorsPerPlat; s++ {
		if err := v.WriteSector(platter, s, zero); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vdisk) sectorOffset(platter int, sector uint16) (int64, error) {
	if sector >= v.hdr.sectorsPerPlat || platter < 0 || platter >= int(v.hdr.platters) {
		return 0, ErrSectorRange
	}
	perPlatter := int64(v.hdr.sectorsPerPlat) * sectorSize
	return headerSize + int64(platter)*perPlatter + int64(sector)*sectorSize, nil
}

// --- getters/setters; the label and write-protect setters mark metadata stale ---

func (v *Vdisk) Modified() bool       { return v.modified }
func (v *Vdisk) Path() string         { return v.path }
func (v *Vdisk) DiskType() DiskType   { return v.hdr.diskType }
func (v *Vdisk) Platters() int        { return int(v.hdr.platters) }
func (v *Vdisk) SectorsPerPlatter() uint16 { return v.hdr.sectorsPerPlat }
func (v *Vdisk) WriteProtect() bool   { return v.hdr.writeProtect }
func (v *Vdisk) Label() string        { return v.hdr.label }

func (v *Vdisk) SetWriteProtect(on bool) {
	v.hdr.writeProtect = on
	v.metadataStale = true
}

func (v *Vdisk) SetLabel(label string) {
	v.hdr.label = label
	v.metadataStale = true
}

func (v *Vdisk) writeHeader() error {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], v.hdr.magic)
	buf[4] = uint8(v.hdr.diskType)
	buf[5] = v.hdr.platters
	binary.BigEndian.PutUint16(buf[6:8], v.hdr.sectorsPerPlat)
	if v.hdr.writeProtect {
		buf[8] = 1
	}
	lbl := v.hdr.label
	if len(lbl) > labelSize-1 {
		lbl = lbl[:labelSize-1]
	}
	copy(buf[labelOffset:labelOffset+len(lbl)], lbl)
	if _, err := v.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("vdisk: write header: %w", err)
	}
	return nil
}

func (v *Vdisk) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := v.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("vdisk: read header: %w", err)
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != magicValue {
		return ErrBadMagic
	}
	end := labelOffset
	for end < labelOffset+labelSize && buf[end] != 0 {
		end++
	}
	v.hdr = header{
		magic:          magic,
		diskType:       DiskType(buf[4]),
		platters:       buf[5],
		sectorsPerPlat: binary.BigEndian.Uint16(buf[6:8]),
		writeProtect:   buf[8] != 0,
		label:          string(buf[labelOffset:end]),
	}
	return nil
}
