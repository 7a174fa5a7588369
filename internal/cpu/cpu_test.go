package cpu

import (
	"testing"

	"github.com/ashn-dot-dev/gbcore/internal/bus"
)

func newCPUWithROM(code []byte) *CPU {
	rom := make([]byte, 0x8000)
	copy(rom, code)
	b := bus.New(rom)
	return New(b)
}

func TestCPU_NopAndPC(t *testing.T) {
	c := newCPUWithROM([]byte{0x00}) // NOP
	if mcyc := c.Step(); mcyc != 1 {
		t.Fatalf("NOP M-cycles got %d want 1", mcyc)
	}
	if c.PC != 1 {
		t.Fatalf("PC after NOP got %#04x want 0x0001", c.PC)
	}
}

func TestCPU_LD_A_d8_And_XOR_A(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x12, 0xAF}) // LD A,0x12; XOR A
	c.Step()
	if c.A != 0x12 {
		t.Fatalf("A after LD got %02x want 12", c.A)
	}
	c.Step()
	if c.A != 0x00 {
		t.Fatalf("A after XOR got %02x want 00", c.A)
	}
	if c.F&flagZ == 0 {
		t.Fatalf("Z flag not set after XOR A")
	}
	if c.F&0x0F != 0 {
		t.Fatalf("low nibble of F must stay 0, got %02x", c.F)
	}
}

func TestCPU_ADD_SetsAllFlags(t *testing.T) {
	// Scenario: ADD with half-carry and full carry.
	c := newCPUWithROM([]byte{0x3E, 0x0F, 0x06, 0x01, 0x80}) // LD A,0F; LD B,01; ADD A,B
	c.Step()
	c.Step()
	c.Step()
	if c.A != 0x10 {
		t.Fatalf("A got %02x want 10", c.A)
	}
	if c.F&flagH == 0 {
		t.Fatalf("expected half-carry set")
	}
	if c.F&flagN != 0 {
		t.Fatalf("N must be clear after ADD")
	}
	if c.F&flagZ != 0 {
		t.Fatalf("Z must be clear, A=0x10")
	}

	c2 := newCPUWithROM([]byte{0x3E, 0xFF, 0x06, 0x01, 0x80})
	c2.Step()
	c2.Step()
	c2.Step()
	if c2.A != 0x00 || c2.F&flagZ == 0 || c2.F&flagC == 0 {
		t.Fatalf("overflow ADD got A=%02x F=%02x, want A=00 Z+C set", c2.A, c2.F)
	}
}

func TestCPU_INC_HalfCarryAndZero(t *testing.T) {
	c := newCPUWithROM([]byte{0x04, 0x04}) // INC B twice
	c.B = 0x0F
	c.F = flagC
	c.Step()
	if c.B != 0x10 {
		t.Fatalf("INC B result got %02x want 10", c.B)
	}
	if c.F&flagH == 0 {
		t.Fatalf("INC B should set H flag")
	}
	if c.F&flagC == 0 {
		t.Fatalf("INC B should preserve C flag")
	}
	c.B = 0xFF
	c.Step()
	if c.B != 0x00 || c.F&flagZ == 0 {
		t.Fatalf("INC B to 0 should set Z flag, B=%02x, F=%02x", c.B, c.F)
	}
}

func TestCPU_DEC_HalfCarryBorrow(t *testing.T) {
	c := newCPUWithROM([]byte{0x05}) // DEC B
	c.B = 0x00
	c.Step()
	if c.B != 0xFF {
		t.Fatalf("DEC B got %02x want FF", c.B)
	}
	if c.F&flagH == 0 {
		t.Fatalf("DEC B from 0x00 should set H (borrow from bit 4)")
	}
	if c.F&flagN == 0 {
		t.Fatalf("DEC must set N")
	}
}

func TestCPU_LD_a16_A_and_LD_A_a16(t *testing.T) {
	prog := []byte{0x3E, 0x77, 0xEA, 0x00, 0xC0, 0x3E, 0x00, 0xFA, 0x00, 0xC0}
	c := newCPUWithROM(prog)
	c.Step()
	c.Step()
	if a := c.bus.Read(0xC000); a != 0x77 {
		t.Fatalf("WRAM at C000 got %02x want 77", a)
	}
	c.Step()
	c.Step()
	if c.A != 0x77 {
		t.Fatalf("A after LD A,(C000) got %02x want 77", c.A)
	}
}

func TestCPU_JR_ConditionalTimingTakenAndNotTaken(t *testing.T) {
	// JR NZ,+2 when Z set (not taken, 2 M-cycles) vs Z clear (taken, 3 M-cycles).
	rom := make([]byte, 0x8000)
	rom[0] = 0x20
	rom[1] = 0x02
	b := bus.New(rom)
	c := New(b)
	c.F = flagZ // Z set -> NZ not taken
	if mcyc := c.Step(); mcyc != 2 {
		t.Fatalf("JR NZ not-taken M-cycles got %d want 2", mcyc)
	}
	if c.PC != 2 {
		t.Fatalf("PC after not-taken JR got %#04x want 0x0002", c.PC)
	}

	b2 := bus.New(rom)
	c2 := New(b2)
	c2.F = 0 // Z clear -> NZ taken
	if mcyc := c2.Step(); mcyc != 3 {
		t.Fatalf("JR NZ taken M-cycles got %d want 3", mcyc)
	}
	if c2.PC != 4 { // 2 (after operand) + 2 (offset)
		t.Fatalf("PC after taken JR got %#04x want 0x0004", c2.PC)
	}
}

func TestCPU_JP_and_JR(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xC3
	rom[0x0001] = 0x10
	rom[0x0002] = 0x00
	rom[0x0010] = 0x18
	rom[0x0011] = 0xFE
	b := bus.New(rom)
	c := New(b)
	mcyc := c.Step()
	if mcyc != 4 || c.PC != 0x0010 {
		t.Fatalf("JP M-cycles=%d PC=%#04x want M-cycles=4 PC=0x0010", mcyc, c.PC)
	}
	pcBefore := c.PC
	c.Step()
	if c.PC != pcBefore {
		t.Fatalf("JR -2 PC got %#04x want %#04x", c.PC, pcBefore)
	}
}

func TestCPU_CALL_RET_RoundTrip(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xCD
	rom[0x0001] = 0x05
	rom[0x0002] = 0x00
	rom[0x0005] = 0xC9 // RET
	b := bus.New(rom)
	c := New(b)
	if mcyc := c.Step(); mcyc != 6 || c.PC != 0x0005 {
		t.Fatalf("CALL M-cycles=%d PC=%04x want 6 / 0005", mcyc, c.PC)
	}
	if mcyc := c.Step(); mcyc != 4 || c.PC != 0x0003 {
		t.Fatalf("RET did not return to 0003; PC=%04x mcyc=%d", c.PC, mcyc)
	}
}

func TestCPU_PUSH_POP_AF_MasksLowNibble(t *testing.T) {
	c := newCPUWithROM([]byte{0xF5, 0xF1}) // PUSH AF; POP AF
	c.A = 0x12
	c.F = 0xFF // low nibble must be masked away on POP
	c.Step()
	c.F = 0
	c.Step()
	if c.F != 0xF0 {
		t.Fatalf("POP AF should mask low nibble to 0, got F=%02x", c.F)
	}
}

func TestCPU_HALT_WakesOnPendingInterruptWithoutIME(t *testing.T) {
	c := newCPUWithROM([]byte{0x76, 0x00}) // HALT; NOP
	c.IME = false
	c.Step() // enters HALT
	if !c.halted {
		t.Fatalf("expected CPU to be halted")
	}
	c.bus.Write(0xFFFF, bus.IntTimer)
	c.bus.Write(0xFF0F, bus.IntTimer) // request pending without IME
	c.Step()
	if c.halted {
		t.Fatalf("HALT should wake on pending&enabled interrupt even without IME")
	}
}

func TestCPU_EI_IsDelayedByOneInstruction(t *testing.T) {
	c := newCPUWithROM([]byte{0xFB, 0x00, 0x00}) // EI; NOP; NOP
	c.Step()                                     // EI
	if c.IME {
		t.Fatalf("IME must not be set immediately after EI")
	}
	c.Step() // NOP following EI
	if !c.IME {
		t.Fatalf("IME must be set after the instruction following EI")
	}
}

func TestCPU_CB_BIT_SetsZFromResultNotRegister(t *testing.T) {
	c := newCPUWithROM([]byte{0xCB, 0x40}) // BIT 0,B
	c.B = 0x00
	c.F = 0
	if mcyc := c.Step(); mcyc != 2 {
		t.Fatalf("BIT 0,B M-cycles got %d want 2", mcyc)
	}
	if c.F&flagZ == 0 {
		t.Fatalf("expected Z set when tested bit is 0")
	}
	if c.F&flagH == 0 {
		t.Fatalf("BIT must always set H")
	}
}

func TestCPU_RLCA_AlwaysClearsZ(t *testing.T) {
	c := newCPUWithROM([]byte{0x07}) // RLCA
	c.A = 0x00
	c.Step()
	if c.F&flagZ != 0 {
		t.Fatalf("RLCA must always clear Z even when result is 0")
	}
}

func TestCPU_CB_RLC_SetsZFromResult(t *testing.T) {
	c := newCPUWithROM([]byte{0xCB, 0x00}) // RLC B
	c.B = 0x00
	c.Step()
	if c.F&flagZ == 0 {
		t.Fatalf("CB RLC must set Z from the result, unlike RLCA")
	}
}
