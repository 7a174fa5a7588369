package cart

// Cartridge defines the minimal interface the Bus needs for ROM/RAM access.
// Addresses are CPU addresses. MBC bank switching is out of scope for this
// core (see DESIGN.md); the interface is kept narrow so a banked
// implementation could be added later without touching the Bus.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000–0x7FFF) and external RAM (0xA000–0xBFFF).
	Read(addr uint16) byte
	// Write handles external RAM writes (0xA000–0xBFFF); ROM writes are ignored.
	Write(addr uint16, value byte)
}

// NewCartridge always builds a plain 32 KiB ROM-only cartridge, regardless of
// what the header claims. Larger ROMs are truncated to 64 KiB by the caller
// (see emu.Machine.LoadCartridge) before reaching here.
func NewCartridge(rom []byte) Cartridge {
	return NewROMOnly(rom)
}
