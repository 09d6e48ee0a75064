/*
 * wangemu-sub000 - top-level system wiring.
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

// Package system wires a Scheduler, CPU, Bus, keyboard card, and disk
// controllers into one runnable machine. Grounded on S370/main.go and
// emu/core/core.go's construct-then-run-loop shape.
package system

import (
	"fmt"
	"io"

	"github.com/jtbattle/wangemu-sub000/internal/bus"
	"github.com/jtbattle/wangemu-sub000/internal/config"
	"github.com/jtbattle/wangemu-sub000/internal/cpu"
	"github.com/jtbattle/wangemu-sub000/internal/diskctrl"
	"github.com/jtbattle/wangemu-sub000/internal/keyboard"
	"github.com/jtbattle/wangemu-sub000/internal/micro"
	"github.com/jtbattle/wangemu-sub000/internal/sched"
	"github.com/jtbattle/wangemu-sub000/internal/tracelog"
	"github.com/jtbattle/wangemu-sub000/internal/vdisk"
)

// System owns every subsystem of one running machine.
type System struct {
	Sched    *sched.Scheduler
	Store    *micro.Store
	CPU      *cpu.CPU
	Bus      *bus.Bus
	Keyboard *keyboard.Card
	Disks    map[int]*diskctrl.Controller
	Registry *vdisk.Registry
	Trace    *tracelog.Trace
}

// New constructs a System from a parsed config.System and a microcode
// ROM image, wiring every card onto the bus by its configured slot.
func New(sys *config.System, romImage []uint32, crtOut io.Writer, tr *tracelog.Trace) (*System, error) {
	store := &micro.Store{}
	store.LoadImage(romImage)

	b := bus.New()
	s := sched.New()
	c := cpu.New(store, b, sys.RAMBanks)

	kbd := keyboard.New(s, crtOut)
	disks := make(map[int]*diskctrl.Controller)
	reg := vdisk.NewRegistry()

	for _, slot := range sys.Cards {
		switch slot.Kind {
		case "keyboard":
			b.Attach(uint8(slot.Slot), kbd)

		case "disk":
			ctrl, ok := disks[slot.Slot]
			if !ok {
				ctrl = diskctrl.New(s, diskctrl.Auto)
				disks[slot.Slot] = ctrl
				b.Attach(uint8(slot.Slot), ctrl)
			}
			if slot.Path != "" {
				v, err := reg.Open(slot.Path, true)
				if err != nil {
					return nil, fmt.Errorf("system: mount %s: %w", slot.Path, err)
				}
				ctrl.Mount(slot.Unit, v)
			}

		default:
			return nil, fmt.Errorf("system: unknown card kind %q at slot %d", slot.Kind, slot.Slot)
		}
	}

	return &System{
		Sched: s, Store: store, CPU: c, Bus: b,
		Keyboard: kbd, Disks: disks, Registry: reg, Trace: tr,
	}, nil
}

// Reset returns every subsystem to its power-on state.
func (sys *System) Reset() {
	sys.Bus.Reset()
	sys.CPU.Reset()
}

// Step advances the CPU by one micro-op and the scheduler by the
// matching number of ticks, matching the teacher's run-loop shape of
// pairing one device of work with one unit of simulated time. Returns
// the CPU's fault error, if any, unwrapped so callers can type-switch
// on *cpu.FaultError.
func (sys *System) Step() error {
	if err := sys.CPU.Step(); err != nil {
		return err
	}
	sys.Sched.Advance(sched.TicksPerMicroOp)
	return nil
}

// Run executes up to n micro-ops, stopping early on the first error.
func (sys *System) Run(n int) error {
	for i := 0; i < n; i++ {
		if err := sys.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every mounted disk image.
func (sys *System) Close() error {
	return sys.Registry.CloseAll()
}
