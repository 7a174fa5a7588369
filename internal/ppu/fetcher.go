package ppu

// BG/window tile fetch helpers, shared by scanline.go's per-line rasterizer.
// bgFetcher/fifo model one tile-row fetch at a time for the fetcher-level
// unit tests below; RenderBGScanlineUsingFetcher/RenderWindowScanlineUsingFetcher
// are the whole-line entry points scanline.go actually calls.

// VRAMReader provides read-only access for the fetcher or scanline helpers.
// It abstracts how VRAM bytes are fetched (tests vs. live PPU).
type VRAMReader interface {
	Read(addr uint16) byte
}

// fifo is a simple ring buffer for 2-bit color indices (0..3).
type fifo struct {
	buf  [32]byte // room for several tiles
	head int
	tail int
	size int
}

func (q *fifo) Clear()   { q.head, q.tail, q.size = 0, 0, 0 }
func (q *fifo) Len() int { return q.size }
func (q *fifo) Push(ci byte) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[q.tail] = ci & 0x03
	q.tail = (q.tail + 1) % len(q.buf)
	q.size++
	return true
}
func (q *fifo) Pop() (byte, bool) {
	if q.size == 0 {
		return 0, false
	}
	v := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v, true
}

// bgFetcher pulls one tile row (8 pixels) into the FIFO.
type bgFetcher struct {
	mem           VRAMReader
	fifo          *fifo
	mapBase       uint16 // 0x9800 or 0x9C00
	tileData8000  bool   // true: 0x8000 addressing; false: 0x8800 signed
	tileIndexAddr uint16 // tile index address within map
	fineY         byte   // 0..7 within tile
}

func newBGFetcher(mem VRAMReader, f *fifo) *bgFetcher { return &bgFetcher{mem: mem, fifo: f} }

// Configure sets tilemap and addressing mode for the next fetch.
func (fch *bgFetcher) Configure(mapBase uint16, tileData8000 bool, tileIndexAddr uint16, fineY byte) {
	fch.mapBase = mapBase
	fch.tileData8000 = tileData8000
	fch.tileIndexAddr = tileIndexAddr
	fch.fineY = fineY & 7
}

// Fetch pushes 8 pixels (color indices) for the current tile row to the FIFO.
func (fch *bgFetcher) Fetch() {
	tileNum := fch.mem.Read(fch.tileIndexAddr)
	var base uint16
	if fch.tileData8000 {
		base = 0x8000 + uint16(tileNum)*16 + uint16(fch.fineY)*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fch.fineY)*2
	}
	lo := fch.mem.Read(base)
	hi := fch.mem.Read(base + 1)
	for px := 0; px < 8; px++ {
		bit := 7 - byte(px)
		ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
		_ = fch.fifo.Push(ci)
	}
}

// tilePixel returns the 2-bit color number for (tileRow, tileCol) within
// mapBase, at (fineX, fineY) within that tile.
func tilePixel(mem VRAMReader, mapBase uint16, tileData8000 bool, tileRow, tileCol int, fineX, fineY byte) byte {
	tileIndexAddr := mapBase + uint16(tileRow)*32 + uint16(tileCol)
	tileNum := mem.Read(tileIndexAddr)
	var base uint16
	if tileData8000 {
		base = 0x8000 + uint16(tileNum)*16 + uint16(fineY)*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + uint16(fineY)*2
	}
	lo := mem.Read(base)
	hi := mem.Read(base + 1)
	bit := 7 - fineX
	return ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
}

// RenderBGScanlineUsingFetcher rasterizes one BG scanline's 160 color
// numbers, sampling the scrolled/wrapped 256x256 BG map at mapBase.
func RenderBGScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, scx, scy, ly byte) [160]byte {
	var out [160]byte
	bgY := ly + scy
	tileRow := int(bgY / 8)
	fineY := bgY % 8
	for x := 0; x < 160; x++ {
		bgX := byte(x) + scx
		tileCol := int(bgX / 8)
		fineX := bgX % 8
		out[x] = tilePixel(mem, mapBase, tileData8000, tileRow, tileCol, fineX, fineY)
	}
	return out
}

// RenderWindowScanlineUsingFetcher rasterizes one window scanline's color
// numbers into a 160-wide buffer, starting at screen column wxStart
// (WX-7, which may be negative); columns left of wxStart are left zero and
// the caller only copies from max(0, wxStart) onward.
func RenderWindowScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, wxStart int, winLine byte) [160]byte {
	var out [160]byte
	tileRow := int(winLine / 8)
	fineY := winLine % 8
	start := wxStart
	if start < 0 {
		start = 0
	}
	for x := start; x < 160; x++ {
		winX := byte(x - wxStart)
		tileCol := int(winX / 8)
		fineX := winX % 8
		out[x] = tilePixel(mem, mapBase, tileData8000, tileRow, tileCol, fineX, fineY)
	}
	return out
}
