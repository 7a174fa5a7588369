package emu

import "testing"

func TestMachine_LoadCartridgeAndStepFrame(t *testing.T) {
	rom := make([]byte, 0x8000)
	copy(rom, []byte{0xC3, 0x00, 0x01}) // JP 0x0100, infinite-loops harmlessly on NOPs
	rom[0x0104] = 0 // logo bytes left zero; header parsing tolerates a mismatch

	m := New(Config{})
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge failed: %v", err)
	}
	if m.Header() == nil {
		t.Fatalf("expected a parsed header")
	}

	m.StepFrame()
	fb := m.Framebuffer()
	if len(fb) != 160*144*4 {
		t.Fatalf("framebuffer size got %d want %d", len(fb), 160*144*4)
	}
}

func TestMachine_SetButtonsForwardsToBus(t *testing.T) {
	rom := make([]byte, 0x8000)
	m := New(Config{})
	if err := m.LoadCartridge(rom, nil); err != nil {
		t.Fatalf("LoadCartridge failed: %v", err)
	}
	m.SetButtons(Buttons{A: true, Right: true})
	got := m.Bus().Read(0xFF00) // default selection: both groups selected
	if got&0x01 != 0 {
		t.Fatalf("expected joypad state to reach the bus")
	}
}
