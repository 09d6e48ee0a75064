/*
 * wangemu-sub000 - system description loader.
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

// Package config implements a small line-oriented system-description
// loader: one directive per line, a name followed by whitespace-
// separated values ("name value ..."); a "name=value" form is not
// accepted.
// Grounded on config/configparser.go's Option/FirstOption parsing
// shape, scoped down to this system's much smaller configuration
// surface (no viper/cobra/yaml).
package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CardSlot names one occupied backplane slot.
type CardSlot struct {
	Slot int
	Kind string // "disk", "keyboard", ...
	Unit int    // drive/unit number within Kind, where applicable
	Path string // disk image path, for Kind=="disk"
}

// System is the parsed system description.
type System struct {
	RAMBanks int // number of 1KB RAM banks, 4..32
	Cards    []CardSlot
}

// Load reads a system description from r. Lines beginning with '#'
// and blank lines are ignored. Recognized directives:
//
//	ram <banks>
//	card <slot> <kind> [unit] [path]
func Load(r io.Reader) (*System, error) {
	sys := &System{RAMBanks: 4}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch strings.ToLower(fields[0]) {
		case "ram":
			if len(fields) != 2 {
				return nil, fmt.Errorf("config: line %d: ram requires 1 argument", lineNo)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil || n < 4 || n > 32 {
				return nil, fmt.Errorf("config: line %d: invalid ram bank count %q", lineNo, fields[1])
			}
			sys.RAMBanks = n

		case "card":
			if len(fields) < 3 {
				return nil, fmt.Errorf("config: line %d: card requires at least 2 arguments", lineNo)
			}
			slot, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("config: line %d: invalid slot %q", lineNo, fields[1])
			}
			cs := CardSlot{Slot: slot, Kind: strings.ToLower(fields[2])}
			if len(fields) >= 4 {
				if u, err := strconv.Atoi(fields[3]); err == nil {
					cs.Unit = u
				} else {
					cs.Path = fields[3]
				}
			}
			if len(fields) >= 5 {
				cs.Path = fields[4]
			}
			sys.Cards = append(sys.Cards, cs)

		default:
			return nil, fmt.Errorf("config: line %d: unknown directive %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return sys, nil
}
