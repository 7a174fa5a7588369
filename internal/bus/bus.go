// Package bus wires the CPU-visible 64 KiB address space to the cartridge,
// WRAM, HRAM, PPU, timer, and the joypad/serial IO registers.
package bus

import (
	"io"
	"os"

	"github.com/ashn-dot-dev/gbcore/internal/cart"
	"github.com/ashn-dot-dev/gbcore/internal/ppu"
	"github.com/ashn-dot-dev/gbcore/internal/timer"
)

// Interrupt request bits for IF/IE (0xFF0F/0xFFFF), in priority order.
const (
	IntVBlank = 1 << 0
	IntSTAT   = 1 << 1
	IntTimer  = 1 << 2
	IntSerial = 1 << 3
	IntJoypad = 1 << 4
)

// Bus implements the full DMG memory map: cartridge ROM/RAM, VRAM/OAM (via
// PPU), WRAM with its echo mirror, HRAM, and the IO register block.
type Bus struct {
	cart cart.Cartridge

	wram [0x2000]byte // 0xC000–0xDFFF; echoed at 0xE000–0xFDFF
	hram [0x7F]byte   // 0xFF80–0xFFFE

	ppu   *ppu.PPU
	timer *timer.Timer

	ie    byte // 0xFFFF
	ifReg byte // 0xFF0F, lower 5 bits used

	joypSelect byte // bits 5-4 as last written to 0xFF00
	joypad     byte // Joyp* bitmask, bit set = pressed
	joypLower4 byte // last computed active-low nibble, for edge detection

	sb byte      // FF01 serial data
	sc byte      // FF02 serial control
	sw io.Writer // optional sink for bytes sent over serial

	dma byte // FF46 latch

	bootROM     []byte
	bootEnabled bool

	debugTimer bool
}

// New constructs a Bus with a ROM-only cartridge built from rom.
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.NewCartridge(rom))
}

// NewWithCartridge wires a provided cartridge implementation.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c}
	b.ppu = ppu.New(func(bit int) { b.requestInterrupt(1 << bit) })
	b.timer = timer.New(func() { b.requestInterrupt(IntTimer) })
	if os.Getenv("GB_DEBUG_TIMER") != "" {
		b.debugTimer = true
	}
	return b
}

// PPU returns the internal PPU for rendering/frame access.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// Cart returns the underlying cartridge.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// requestInterrupt ORs bit into IF. Used by PPU/Timer/joypad/serial callbacks.
func (b *Bus) requestInterrupt(bit byte) { b.ifReg |= bit }

// PendingInterrupts returns IE & IF & 0x1F, the set of interrupts both
// requested and enabled.
func (b *Bus) PendingInterrupts() byte { return b.ie & b.ifReg & 0x1F }

// AckInterrupt clears bit in IF, acknowledging dispatch.
func (b *Bus) AckInterrupt(bit byte) { b.ifReg &^= bit }

// NotePC is called by the CPU with the PC of the instruction about to be
// fetched. The boot overlay detaches the first time a fetch observes
// PC >= 0x0100, independent of any write to 0xFF50.
func (b *Bus) NotePC(pc uint16) {
	if b.bootEnabled && pc >= 0x0100 {
		b.bootEnabled = false
	}
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		return b.wram[mirror-0xC000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF // unusable region
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFF00:
		return b.readJoyp()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr >= 0xFF04 && addr <= 0xFF07:
		return b.timer.Read(addr)
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr >= 0xFF40 && addr <= 0xFF4B && addr != 0xFF46:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma
	case addr == 0xFF50:
		return 0xFF
	case addr == 0xFFFF:
		return b.ie
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		b.wram[mirror-0xC000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// unusable region, writes ignored
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFF00:
		b.joypSelect = value & 0x30
		b.updateJoypadIRQ()
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.requestInterrupt(IntSerial)
			b.sc &^= 0x80
		}
	case addr >= 0xFF04 && addr <= 0xFF07:
		b.timer.Write(addr, value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr >= 0xFF40 && addr <= 0xFF4B && addr != 0xFF46:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.dma = value
		b.runOAMDMA(value)
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
	case addr == 0xFFFF:
		b.ie = value
	}
}

// runOAMDMA performs the 160-byte OAM transfer from src*0x100 as a single
// burst: the real hardware spreads this over 160 M-cycles during which the
// CPU can only access HRAM, but nothing in this core reads CPU state mid-DMA,
// so the burst completes instantaneously from the caller's point of view.
func (b *Bus) runOAMDMA(src byte) {
	base := uint16(src) << 8
	for i := 0; i < 0xA0; i++ {
		v := b.dmaSourceByte(base + uint16(i))
		b.ppu.DMAWrite(i, v)
	}
}

// dmaSourceByte reads a DMA source byte directly, bypassing the PPU
// CPU-visibility blackout (OAM DMA always sees the true byte).
func (b *Bus) dmaSourceByte(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.Read(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0x2000-0xC000]
	default:
		return 0xFF
	}
}

func (b *Bus) readJoyp() byte {
	res := byte(0xC0 | (b.joypSelect & 0x30) | 0x0F)
	if b.joypSelect&0x10 == 0 {
		if b.joypad&JoypRight != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			res &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 {
		if b.joypad&JoypA != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			res &^= 0x08
		}
	}
	return res
}

// Joypad button bitmasks for SetJoypadState; set bits mean "pressed".
const (
	JoypRight     = 1 << 0
	JoypLeft      = 1 << 1
	JoypUp        = 1 << 2
	JoypDown      = 1 << 3
	JoypA         = 1 << 4
	JoypB         = 1 << 5
	JoypSelectBtn = 1 << 6
	JoypStart     = 1 << 7
)

// SetJoypadState updates the pressed-button mask and raises the joypad
// interrupt on any newly-selected, newly-pressed button (falling edge on
// the active-low nibble).
func (b *Bus) SetJoypadState(mask byte) {
	b.joypad = mask
	b.updateJoypadIRQ()
}

func (b *Bus) updateJoypadIRQ() {
	newLower := byte(0x0F)
	if b.joypSelect&0x10 == 0 {
		if b.joypad&JoypRight != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			newLower &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 {
		if b.joypad&JoypA != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			newLower &^= 0x08
		}
	}
	falling := b.joypLower4 &^ newLower
	if falling != 0 {
		b.requestInterrupt(IntJoypad)
	}
	b.joypLower4 = newLower
}

// SetSerialWriter sets a sink that receives bytes written over the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// SetBootROM loads a 256-byte DMG boot ROM, mapped at 0x0000-0x00FF until a
// non-zero write to 0xFF50 or the first fetch at PC >= 0x0100 (NotePC)
// disengages it.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// Tick advances the PPU and timer by tCycles T-cycles. The scheduler calls
// this once per instruction with the T-cycle cost of that instruction (4x
// its M-cycle cost).
func (b *Bus) Tick(tCycles int) {
	if tCycles <= 0 {
		return
	}
	b.timer.Step(tCycles)
	b.ppu.Step(tCycles)
}
