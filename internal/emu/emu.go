// Package emu assembles Bus/CPU/Scheduler into the runnable DMG machine
// that cmd/gbemu and internal/ui drive.
package emu

import (
	"fmt"

	"github.com/ashn-dot-dev/gbcore/internal/bus"
	"github.com/ashn-dot-dev/gbcore/internal/cart"
	"github.com/ashn-dot-dev/gbcore/internal/cpu"
	"github.com/ashn-dot-dev/gbcore/internal/scheduler"
)

// Buttons is the joypad state for one input poll.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.Right {
		m |= bus.JoypRight
	}
	if b.Left {
		m |= bus.JoypLeft
	}
	if b.Up {
		m |= bus.JoypUp
	}
	if b.Down {
		m |= bus.JoypDown
	}
	if b.A {
		m |= bus.JoypA
	}
	if b.B {
		m |= bus.JoypB
	}
	if b.Select {
		m |= bus.JoypSelectBtn
	}
	if b.Start {
		m |= bus.JoypStart
	}
	return m
}

// shadeRGBA is the classic 4-shade DMG grayscale palette, lightest first.
var shadeRGBA = [4][4]byte{
	{0xE0, 0xF8, 0xD0, 0xFF},
	{0x88, 0xC0, 0x70, 0xFF},
	{0x34, 0x68, 0x56, 0xFF},
	{0x08, 0x18, 0x20, 0xFF},
}

// Machine wires the whole emulation task together: bus, CPU, and the
// scheduler that paces them to a frame clock.
type Machine struct {
	cfg Config

	bus   *bus.Bus
	cpu   *cpu.CPU
	sched *scheduler.Scheduler

	header *cart.Header
	fb     []byte // RGBA 160x144x4, rebuilt from the PPU's palette-mapped shade frame
}

// New constructs a Machine with the given configuration. Call LoadCartridge
// before stepping frames.
func New(cfg Config) *Machine {
	m := &Machine{cfg: cfg, fb: make([]byte, 160*144*4)}
	return m
}

// LoadCartridge parses the ROM header, builds the cartridge/bus/CPU, and
// optionally maps a boot ROM image at 0x0000-0x00FF. If boot is empty, the
// CPU starts from the documented post-boot register state instead.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	if len(rom) > 0x10000 {
		rom = rom[:0x10000]
	}
	header, err := cart.ParseHeader(rom)
	if err != nil {
		return fmt.Errorf("parsing cartridge header: %w", err)
	}
	m.header = header

	c := cart.NewCartridge(rom)
	b := bus.NewWithCartridge(c)
	cp := cpu.New(b)

	if len(boot) >= 0x100 {
		b.SetBootROM(boot)
	} else {
		cp.ResetNoBoot()
	}

	m.bus = b
	m.cpu = cp
	m.sched = scheduler.New(cp, b, m.cfg.LimitFPS)
	return nil
}

// Header returns the parsed cartridge header, or nil before LoadCartridge.
func (m *Machine) Header() *cart.Header { return m.header }

// StepFrame advances the emulation exactly one frame and refreshes the RGBA
// framebuffer from whatever the PPU rasterized.
func (m *Machine) StepFrame() {
	if m.sched == nil {
		return
	}
	m.sched.RunFrame()
	if frame, ok := m.bus.PPU().TakeFrame(); ok {
		m.renderRGBA(frame)
	}
}

func (m *Machine) renderRGBA(frame [160 * 144]byte) {
	for i, shade := range frame {
		rgba := shadeRGBA[shade&0x03]
		copy(m.fb[i*4:i*4+4], rgba[:])
	}
}

// Framebuffer returns the current RGBA 160x144 frame for presentation.
func (m *Machine) Framebuffer() []byte { return m.fb }

// SetButtons forwards the polled joypad state to the bus.
func (m *Machine) SetButtons(b Buttons) {
	if m.bus != nil {
		m.bus.SetJoypadState(b.mask())
	}
}

// CPU exposes the underlying CPU for tools (tracing, debug dumps).
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// Bus exposes the underlying bus for tools (serial sink wiring, etc).
func (m *Machine) Bus() *bus.Bus { return m.bus }
