/*
 * wangemu-sub000 - command-line entry point.
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

package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/pborman/getopt/v2"

	"github.com/jtbattle/wangemu-sub000/internal/config"
	"github.com/jtbattle/wangemu-sub000/internal/cpu"
	"github.com/jtbattle/wangemu-sub000/internal/replcmd"
	"github.com/jtbattle/wangemu-sub000/internal/system"
	"github.com/jtbattle/wangemu-sub000/internal/tracelog"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "system description file")
	optROM := getopt.StringLong("rom", 'r', "", "microcode ROM image")
	optLogFile := getopt.StringLong("log", 'l', "", "trace log file")
	optDebug := getopt.BoolLong("debug", 'd', "echo trace log to stderr")
	optHelp := getopt.BoolLong("help", 'h', "display help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		return
	}
	if *optConfig == "" {
		fmt.Fprintln(os.Stderr, "w2200: -config is required")
		os.Exit(1)
	}

	logFile := os.Stderr
	if *optLogFile != "" {
		f, err := os.OpenFile(*optLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "w2200: open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logFile = f
	}
	tr := tracelog.New(logFile, os.Stderr, optDebug)
	slog.SetDefault(tr.Logger)

	cf, err := os.Open(*optConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "w2200: open config: %v\n", err)
		os.Exit(1)
	}
	sys, err := config.Load(cf)
	cf.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "w2200: load config: %v\n", err)
		os.Exit(1)
	}

	var rom []uint32
	if *optROM != "" {
		rom, err = loadROMImage(*optROM)
		if err != nil {
			fmt.Fprintf(os.Stderr, "w2200: load rom: %v\n", err)
			os.Exit(1)
		}
	}

	m, err := system.New(sys, rom, os.Stdout, tr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "w2200: construct system: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	disp := replcmd.New(replcmd.Handlers{
		Reset: func() error { m.Reset(); return nil },
		Step: func(n int) error {
			err := m.Run(n)
			if fe, ok := err.(*cpu.FaultError); ok {
				return fe
			}
			return err
		},
	}, os.Stdout)
	defer disp.Close()

	for {
		quit, err := disp.RunOnce("w2200> ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "w2200: %v\n", err)
		}
		if quit {
			break
		}
	}
}

// loadROMImage reads a flat big-endian uint32-per-word microcode ROM
// image from path.
func loadROMImage(path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("rom image length %d is not a multiple of 4", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(data[i*4:])
	}
	return words, nil
}
