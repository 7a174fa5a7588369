package ppu

import "testing"

func TestRenderSpriteLine_PriorityAndTransparency(t *testing.T) {
	p := New(func(int) {})
	p.obp0 = 0xE4 // identity shade mapping: 11 10 01 00 -> shades 0,1,2,3

	// Tile 0: a single opaque leftmost pixel (bit7 set, hi clear -> ci=1).
	p.vram[0] = 0x80
	p.vram[1] = 0x00

	// OAM entry 0: X=18 (screen X=10), Y=21 (screen Y=5), tile 0, no attrs.
	p.oam[0], p.oam[1], p.oam[2], p.oam[3] = 21, 18, 0, 0

	var bgci [160]byte
	p.renderSpriteLine(5, bgci)
	if p.fb[5*160+10] == 0 {
		t.Fatalf("expected sprite pixel at x=10")
	}

	// With BG-priority (bit7) set and the BG pixel non-transparent, the
	// sprite must be hidden.
	p.oam[3] = 1 << 7
	bgci[10] = 1
	for i := range p.fb {
		p.fb[i] = 0
	}
	p.renderSpriteLine(5, bgci)
	if p.fb[5*160+10] != 0 {
		t.Fatalf("expected sprite pixel to be hidden behind BG")
	}
}

func TestRenderSpriteLine_XAndOAMIndexTieBreak(t *testing.T) {
	p := New(func(int) {})
	p.obp0 = 0xE4 // distinct shades per ci so fb records which sprite won
	p.obp1 = 0x1B // ci=1 -> shade 2 under OBP1, vs shade 1 under OBP0

	// Tile 0 opaque in its leftmost column only, so each sprite contributes
	// exactly one pixel, at its own X.
	p.vram[0] = 0x80
	p.vram[1] = 0x00

	// Same screen X=20 for both (OAM X=28), Y=0. OAM slot 3 uses OBP0, OAM
	// slot 5 uses OBP1 (attr bit4), so the winning shade tells us which one
	// the composer picked.
	p.oam[4*3+0], p.oam[4*3+1], p.oam[4*3+2], p.oam[4*3+3] = 16, 28, 0, 0x00
	p.oam[4*5+0], p.oam[4*5+1], p.oam[4*5+2], p.oam[4*5+3] = 16, 28, 0, 0x10

	sprites := p.scanOAM(0)
	if len(sprites) != 2 {
		t.Fatalf("expected 2 sprites scanned, got %d", len(sprites))
	}
	ordered := spritePriorityOrder(sprites)
	if ordered[0].OAMIndex != 3 {
		t.Fatalf("expected the lower-OAM-index sprite first on an X tie, got OAMIndex=%d", ordered[0].OAMIndex)
	}

	var bgci [160]byte
	p.renderSpriteLine(0, bgci)
	if got, want := p.fb[20], paletteShade(p.obp0, 1); got != want {
		t.Fatalf("expected the lower-OAM-index sprite (OBP0) to win x=20, got shade %d want %d", got, want)
	}
}
