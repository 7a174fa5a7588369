package ppu

// renderScanline rasterizes scanline ly into p.fb (post-palette shades) and
// p.bgColor (pre-palette BG/window color numbers, needed for sprite
// priority). It runs once per line, at the Xfer->HBlank transition.
func (p *PPU) renderScanline(ly byte) {
	if ly >= 144 {
		return
	}
	p.fbMu.Lock()
	defer p.fbMu.Unlock()

	var bgci [160]byte
	if p.lcdc&0x01 != 0 {
		bgci = p.renderBGLine(ly)
		if p.windowVisible(ly) {
			p.renderWindowLine(ly, &bgci)
		}
	}

	row := int(ly) * 160
	for x := 0; x < 160; x++ {
		ci := bgci[x]
		p.bgColor[row+x] = ci
		p.fb[row+x] = paletteShade(p.bgp, ci)
	}

	if p.lcdc&0x02 != 0 {
		p.renderSpriteLine(ly, bgci)
	}
}

func (p *PPU) bgMapBase() uint16 {
	if p.lcdc&0x08 != 0 {
		return 0x9C00
	}
	return 0x9800
}

func (p *PPU) bgTileData8000() bool { return p.lcdc&0x10 != 0 }

func (p *PPU) renderBGLine(ly byte) [160]byte {
	return RenderBGScanlineUsingFetcher(p, p.bgMapBase(), p.bgTileData8000(), p.scx, p.scy, ly)
}

func (p *PPU) windowMapBase() uint16 {
	if p.lcdc&0x40 != 0 {
		return 0x9C00
	}
	return 0x9800
}

// windowVisible reports whether the window layer contributes to line ly:
// window display enabled (LCDC bit5), and ly has reached WY.
func (p *PPU) windowVisible(ly byte) bool {
	return p.lcdc&0x20 != 0 && ly >= p.wy && int(p.wx) <= 166
}

func (p *PPU) renderWindowLine(ly byte, bgci *[160]byte) {
	wxStart := int(p.wx) - 7
	winLine := ly - p.wy
	win := RenderWindowScanlineUsingFetcher(p, p.windowMapBase(), p.bgTileData8000(), wxStart, winLine)
	start := wxStart
	if start < 0 {
		start = 0
	}
	for x := start; x < 160; x++ {
		bgci[x] = win[x]
	}
}

// renderSpriteLine composes visible OAM sprites for line ly directly into
// p.fb, honoring BG-priority (attribute bit7) against the pre-palette
// bgci color numbers captured just above.
func (p *PPU) renderSpriteLine(ly byte, bgci [160]byte) {
	sprites := p.scanOAM(ly)
	if len(sprites) == 0 {
		return
	}
	tall := p.lcdc&0x04 != 0
	height := 8
	if tall {
		height = 16
	}

	row := int(ly) * 160
	var written [160]bool
	for _, s := range spritePriorityOrder(sprites) {
		spriteRow := int(ly) - s.Y
		if spriteRow < 0 || spriteRow >= height {
			continue
		}
		if s.Attr&0x40 != 0 {
			spriteRow = height - 1 - spriteRow
		}

		tile := s.Tile
		if height == 16 {
			tile &^= 0x01
			if spriteRow >= 8 {
				tile |= 0x01
				spriteRow -= 8
			}
		}

		base := 0x8000 + uint16(tile)*16 + uint16(spriteRow)*2
		lo := p.Read(base)
		hi := p.Read(base + 1)
		pal := p.spritePalette((s.Attr >> 4) & 0x01)
		xFlip := s.Attr&0x20 != 0
		behindBG := s.Attr&0x80 != 0

		for col := 0; col < 8; col++ {
			x := s.X + col
			if x < 0 || x >= 160 || written[x] {
				continue
			}
			bit := byte(7 - col)
			if xFlip {
				bit = byte(col)
			}
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if ci == 0 {
				continue
			}
			written[x] = true
			if behindBG && bgci[x] != 0 {
				continue
			}
			p.fb[row+x] = paletteShade(pal, ci)
		}
	}
}
