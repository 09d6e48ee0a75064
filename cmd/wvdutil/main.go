/*
 * wangemu-sub000 - standalone .wvd image creation/inspection tool.
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

// wvdutil creates, inspects, and formats .wvd virtual disk images
// outside of a running machine. Grounded on the feature set of
// original_source/src/UiDiskFactory.cpp and Wvd.h, minus any dialog
// surface (a non-goal carried from the distilled spec).
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pborman/getopt/v2"

	"github.com/jtbattle/wangemu-sub000/internal/diskctrl"
	"github.com/jtbattle/wangemu-sub000/internal/vdisk"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	os.Args = append(os.Args[:1], os.Args[2:]...)

	switch cmd {
	case "create":
		runCreate()
	case "info":
		runInfo()
	case "format":
		runFormat()
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: wvdutil <create|info|format> [options] <path>")
}

func runCreate() {
	optType := getopt.StringLong("type", 't', "5.25", "disk type: 5.25, 8dd, 2260, 2270")
	optPlatters := getopt.IntLong("platters", 'p', 1, "number of platters")
	optSectors := getopt.IntLong("sectors", 's', 0, "sectors per platter (0 = use type default)")
	optLabel := getopt.StringLong("label", 'n', "", "volume label")
	getopt.Parse()
	args := getopt.Args()
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}

	dt, geom, err := resolveType(*optType)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wvdutil:", err)
		os.Exit(1)
	}
	sectors := *optSectors
	if sectors == 0 {
		sectors = geom.SectorsPerTrack * geom.TracksPerPlatter
	}

	v, err := vdisk.Create(args[0], dt, *optPlatters, uint16(sectors), *optLabel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wvdutil:", err)
		os.Exit(1)
	}
	defer v.Close()
	fmt.Printf("created %s: %d platter(s), %d sectors/platter\n", args[0], *optPlatters, sectors)
}

func runInfo() {
	getopt.Parse()
	args := getopt.Args()
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}
	v, err := vdisk.Open(args[0], false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wvdutil:", err)
		os.Exit(1)
	}
	defer v.Close()
	fmt.Printf("path:     %s\n", v.Path())
	fmt.Printf("type:     %d\n", v.DiskType())
	fmt.Printf("platters: %d\n", v.Platters())
	fmt.Printf("sectors:  %d\n", v.SectorsPerPlatter())
	fmt.Printf("protect:  %v\n", v.WriteProtect())
	fmt.Printf("label:    %s\n", v.Label())
}

func runFormat() {
	optPlatter := getopt.IntLong("platter", 'p', 0, "platter to format")
	getopt.Parse()
	args := getopt.Args()
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}
	v, err := vdisk.Open(args[0], true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wvdutil:", err)
		os.Exit(1)
	}
	defer v.Close()
	if err := v.Format(*optPlatter); err != nil {
		fmt.Fprintln(os.Stderr, "wvdutil:", err)
		os.Exit(1)
	}
	fmt.Printf("formatted platter %d of %s\n", *optPlatter, args[0])
}

func resolveType(s string) (vdisk.DiskType, diskctrl.Geometry, error) {
	var dt vdisk.DiskType
	switch s {
	case "5.25":
		dt = vdisk.Type5_25
	case "8dd":
		dt = vdisk.Type8InchDD
	case "2260":
		dt = vdisk.Type2260Fixed
	case "2270":
		dt = vdisk.Type2270Removable
	default:
		return 0, diskctrl.Geometry{}, fmt.Errorf("unknown disk type %q", s)
	}
	return dt, diskctrl.Geometries[dt], nil
}

// parseUint parses decimal or 0x-prefixed hex. No wvdutil option
// calls it; the numeric options are parsed by getopt as decimal.
func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}
