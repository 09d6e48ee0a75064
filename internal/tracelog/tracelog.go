/*
 * wangemu-sub000 - trace/log handler.
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

// Package tracelog wraps log/slog the way the teacher's util/logger
// package does: a Handler that timestamps, tags level, writes to a
// file, and can tee to stderr while a debug flag is set, constructed
// once and threaded down through the system instead of a package
// global.
package tracelog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Handler adapts slog.Handler to the emulator's trace sink: every
// record is timestamped and written to File, and additionally to
// Stderr while Debug reports true.
type Handler struct {
	mu     sync.Mutex
	file   io.Writer
	stderr io.Writer
	debug  *bool
	attrs  []slog.Attr
}

// NewHandler returns a Handler writing to file, additionally echoing
// to stderr whenever *debug is true. debug may be nil, meaning never
// echo.
func NewHandler(file io.Writer, stderr io.Writer, debug *bool) *Handler {
	return &Handler{file: file, stderr: stderr, debug: debug}
}

func (h *Handler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	line := fmt.Sprintf("%s [%s] %s", r.Time.Format(time.RFC3339Nano), r.Level, r.Message)
	for _, a := range h.attrs {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})
	line += "\n"

	if h.file != nil {
		io.WriteString(h.file, line)
	}
	if h.stderr != nil && h.debug != nil && *h.debug {
		io.WriteString(h.stderr, line)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := &Handler{file: h.file, stderr: h.stderr, debug: h.debug}
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return n
}

func (h *Handler) WithGroup(name string) slog.Handler {
	// Groups are not modeled; the emulator's log lines are flat.
	return h
}

// Trace is the config struct threaded through subsystems in place of
// a global logger, per the design note against global mutable state.
type Trace struct {
	Logger     *slog.Logger
	CPU        bool
	Disk       bool
	Bus        bool
	Microcode  bool
}

// New builds a Trace around a Handler writing to file.
func New(file io.Writer, stderr io.Writer, debug *bool) *Trace {
	h := NewHandler(file, stderr, debug)
	return &Trace{Logger: slog.New(h)}
}
