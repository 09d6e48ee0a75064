/*
 * wangemu-sub000 - REPL command dispatcher.
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

// Package replcmd implements the operator console's command
// dispatcher: reset/step/trace/mount/eject/quit, read over a
// peterh/liner-backed line editor. Grounded on the teacher's
// command/parser + command/reader split (reader owns the liner
// session, parser owns verb dispatch).
package replcmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// Handlers is the set of callbacks the dispatcher invokes for each
// recognized verb. Any nil entry makes that verb report "not
// supported" instead of panicking.
type Handlers struct {
	Reset func() error
	Step  func(n int) error
	Trace func(on bool) error
	Mount func(unit int, path string) error
	Eject func(unit int) error
}

// Dispatcher reads lines from a liner.State and routes them to Handlers.
type Dispatcher struct {
	line *liner.State
	h    Handlers
	out  io.Writer
}

// New returns a Dispatcher that writes command feedback to out.
func New(h Handlers, out io.Writer) *Dispatcher {
	return &Dispatcher{line: liner.NewLiner(), h: h, out: out}
}

// Close releases the underlying liner session.
func (d *Dispatcher) Close() error {
	return d.line.Close()
}

// RunOnce reads one command line and dispatches it. It returns
// quit==true when the user issued "quit" or "exit", or when the line
// editor's prompt returns any error (io.EOF included).
func (d *Dispatcher) RunOnce(prompt string) (quit bool, err error) {
	line, lerr := d.line.Prompt(prompt)
	if lerr != nil {
		return true, nil
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	d.line.AppendHistory(line)
	return d.Dispatch(line)
}

// Dispatch parses and executes a single command line.
func (d *Dispatcher) Dispatch(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "quit", "exit":
		return true, nil

	case "reset":
		return false, d.call(d.h.Reset == nil, func() error { return d.h.Reset() })

	case "step":
		n := 1
		if len(args) > 0 {
			fmt.Sscanf(args[0], "%d", &n)
		}
		return false, d.call(d.h.Step == nil, func() error { return d.h.Step(n) })

	case "trace":
		on := len(args) == 0 || args[0] != "off"
		return false, d.call(d.h.Trace == nil, func() error { return d.h.Trace(on) })

	case "mount":
		if len(args) != 2 {
			fmt.Fprintln(d.out, "usage: mount <unit> <path>")
			return false, nil
		}
		var unit int
		fmt.Sscanf(args[0], "%d", &unit)
		return false, d.call(d.h.Mount == nil, func() error { return d.h.Mount(unit, args[1]) })

	case "eject":
		if len(args) != 1 {
			fmt.Fprintln(d.out, "usage: eject <unit>")
			return false, nil
		}
		var unit int
		fmt.Sscanf(args[0], "%d", &unit)
		return false, d.call(d.h.Eject == nil, func() error { return d.h.Eject(unit) })

	default:
		fmt.Fprintf(d.out, "unknown command: %s\n", verb)
		return false, nil
	}
}

func (d *Dispatcher) call(unsupported bool, f func() error) error {
	if unsupported {
		fmt.Fprintln(d.out, "command not supported")
		return nil
	}
	if err := f(); err != nil {
		fmt.Fprintf(d.out, "error: %v\n", err)
	}
	return nil
}
