package ppu

import "sync"

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT).
type InterruptRequester func(bit int)

// Mode is one of the four PPU scanline modes.
const (
	ModeHBlank byte = 0
	ModeVBlank byte = 1
	ModeOAM    byte = 2
	ModeXfer   byte = 3

	dotsOAM    = 80
	dotsXfer   = 172
	dotsPerLn  = 456
	lastScanLn = 153
)

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, mode timing, and the
// scanline rasterizer that produces the 160x144 framebuffer.
//
// It exposes CPU-facing Read/Write for VRAM/OAM and PPU IO registers.
type PPU struct {
	// memory
	vram [0x2000]byte // 0x8000–0x9FFF
	oam  [0xA0]byte   // 0xFE00–0xFE9F

	// regs
	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence flag bit2, enables bits3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	dma  byte // FF46 (latch only; the burst is performed by the Bus)
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot int // dots within current line [0..455]

	req InterruptRequester

	// fbMu guards fb/bgColor/frameReady, the state shared with the
	// presentation task (§5 of the spec). Everything else on PPU is
	// exclusive to the emulation task.
	fbMu       sync.Mutex
	fb         [160 * 144]byte // color indices 0..3, post-palette
	bgColor    [160 * 144]byte // pre-palette BG color numbers, for sprite priority
	frameReady bool
}

func New(req InterruptRequester) *PPU { return &PPU{req: req} }

// CPURead returns bytes for VRAM, OAM, and PPU IO registers. Returns 0xFF for others.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		// VRAM is inaccessible to CPU during mode 3 (return 0xFF)
		if p.mode() == ModeXfer {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		// OAM is inaccessible during modes 2 and 3
		m := p.mode()
		if m == ModeOAM || m == ModeXfer {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		// On DMG, bit7 reads as 1; bit6..3 are enables; bit2 coincidence; bit1..0 mode
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF46:
		return p.dma
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO regs.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode() == ModeXfer {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.mode()
		if m == ModeOAM || m == ModeXfer {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		p.writeLCDC(value)
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		// LY is read-only; writes are ignored (spec §7 silent/recovered).
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF46:
		p.dma = value // the 160-byte burst is performed by the Bus
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// DMAWrite stores a byte directly into OAM, bypassing the CPU-visibility
// blackout CPUWrite enforces during modes 2/3: OAM DMA is a PPU-internal
// burst, not a CPU bus cycle.
func (p *PPU) DMAWrite(offset int, value byte) {
	if offset >= 0 && offset < len(p.oam) {
		p.oam[offset] = value
	}
}

func (p *PPU) writeLCDC(value byte) {
	prevOn := p.lcdc&0x80 != 0
	p.lcdc = value
	nowOn := p.lcdc&0x80 != 0
	switch {
	case prevOn && !nowOn:
		// Turning LCD off: LY/mode/dot accumulator reset (spec §4.3 disable behavior).
		p.ly = 0
		p.dot = 0
		p.setMode(ModeOAM)
		p.stat &^= 1 << 2
	case !prevOn && nowOn:
		p.ly = 0
		p.dot = 0
		p.setMode(ModeOAM)
		p.updateLYC()
	}
}

func (p *PPU) mode() byte { return p.stat & 0x03 }

// Step advances PPU state by tCycles T-cycles. No stepping occurs while the
// LCD is disabled.
func (p *PPU) Step(tCycles int) {
	if p.lcdc&0x80 == 0 {
		return
	}
	for i := 0; i < tCycles; i++ {
		p.tick()
	}
}

// Tick is an alias of Step kept for tests and tools; Step is the
// driver-facing entry point.
func (p *PPU) Tick(tCycles int) { p.Step(tCycles) }

func (p *PPU) tick() {
	if p.lcdc&0x80 == 0 {
		return
	}
	p.dot++

	if p.ly < 144 {
		switch {
		case p.dot == dotsOAM:
			p.setMode(ModeXfer)
		case p.dot == dotsOAM+dotsXfer:
			p.renderScanline(p.ly)
			p.setMode(ModeHBlank)
		}
	}

	if p.dot >= dotsPerLn {
		p.dot = 0
		p.ly++
		switch {
		case p.ly == 144:
			p.setMode(ModeVBlank)
			p.commitFrame()
			if p.req != nil {
				p.req(0) // VBlank IF
			}
			if p.stat&(1<<4) != 0 && p.req != nil {
				p.req(1) // STAT VBlank source
			}
		case p.ly > lastScanLn:
			p.ly = 0
			p.setMode(ModeOAM)
		case p.ly < 144:
			p.setMode(ModeOAM)
		}
		p.updateLYC()
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.mode()
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	if p.req == nil {
		return
	}
	switch mode {
	case ModeHBlank:
		if p.stat&(1<<3) != 0 {
			p.req(1)
		}
	case ModeOAM:
		if p.stat&(1<<5) != 0 {
			p.req(1)
		}
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if p.stat&(1<<6) != 0 && p.req != nil {
			p.req(1)
		}
	} else {
		p.stat &^= 1 << 2
	}
}

// commitFrame marks the just-rasterized frame as ready for the presentation
// task, under the mutex §5 requires for the shared framebuffer/flag pair.
func (p *PPU) commitFrame() {
	p.fbMu.Lock()
	p.frameReady = true
	p.fbMu.Unlock()
}

// TakeFrame returns a copy of the framebuffer and clears the frame-ready
// flag iff a frame was ready. Safe to call from the presentation task
// concurrently with the emulation task.
func (p *PPU) TakeFrame() (frame [160 * 144]byte, ok bool) {
	p.fbMu.Lock()
	defer p.fbMu.Unlock()
	if !p.frameReady {
		return frame, false
	}
	frame = p.fb
	p.frameReady = false
	return frame, true
}

// Expose palettes and scroll for the renderer and for tests/tools.
func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }
func (p *PPU) LY() byte   { return p.ly }
func (p *PPU) Mode() byte { return p.mode() }

// Read implements VRAMReader for the fetcher, unconditionally (the
// rasterizer itself runs during mode 3 and must see VRAM regardless of the
// CPU-visibility blackout CPURead enforces).
func (p *PPU) Read(addr uint16) byte { return p.vram[addr-0x8000] }
