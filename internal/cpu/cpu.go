// Package cpu implements the Sharp LR35902 instruction set: the full base
// and CB-prefixed opcode tables, flag arithmetic, control transfers, and
// interrupt dispatch. Step returns M-cycles (1 M-cycle = 4 T-cycles); the
// caller (internal/scheduler) converts to T-cycles to drive the PPU/timer.
package cpu

import (
	"fmt"

	"github.com/ashn-dot-dev/gbcore/internal/bit"
	"github.com/ashn-dot-dev/gbcore/internal/bus"
)

// Flag bit positions within F (low nibble of F is always 0).
const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

// Interrupt vectors, in priority order.
var intVector = [5]uint16{0x40, 0x48, 0x50, 0x58, 0x60}
var intBit = [5]byte{bus.IntVBlank, bus.IntSTAT, bus.IntTimer, bus.IntSerial, bus.IntJoypad}

// CPU holds the SM83 register file and drives instruction execution.
type CPU struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	SP uint16
	PC uint16

	IME          bool
	imeScheduled bool
	eiPending    bool
	halted       bool
	stopped      bool

	bus *bus.Bus
}

// New creates a CPU wired to b, with PC at 0 (boot-ROM entry point).
func New(b *bus.Bus) *CPU { return &CPU{bus: b, SP: 0xFFFE, PC: 0x0000} }

func (c *CPU) SetPC(pc uint16)  { c.PC = pc }
func (c *CPU) Bus() *bus.Bus    { return c.bus }
func (c *CPU) Halted() bool     { return c.halted }
func (c *CPU) IMEEnabled() bool { return c.IME }

// ResetNoBoot sets registers to the documented DMG post-boot state, for
// running a cartridge without a boot ROM image.
func (c *CPU) ResetNoBoot() {
	c.A, c.F = 0x01, 0xB0
	c.B, c.C = 0x00, 0x13
	c.D, c.E = 0x00, 0xD8
	c.H, c.L = 0x01, 0x4D
	c.SP = 0xFFFE
	c.IME = false
	c.halted = false
	c.imeScheduled = false
	c.eiPending = false
}

func (c *CPU) setZNHC(z, n, h, cy bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if cy {
		f |= flagC
	}
	c.F = f
}

func (c *CPU) flag(mask byte) bool { return c.F&mask != 0 }

// --- 8-bit ALU ---

func (c *CPU) add8(a, b byte) (res byte, z, n, h, cy bool) {
	r := uint16(a) + uint16(b)
	res = byte(r)
	return res, res == 0, false, ((a & 0x0F) + (b & 0x0F)) > 0x0F, r > 0xFF
}

func (c *CPU) adc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := uint16(a) + uint16(b) + uint16(ci)
	res = byte(r)
	return res, res == 0, false, ((a & 0x0F) + (b & 0x0F) + ci) > 0x0F, r > 0xFF
}

func (c *CPU) sub8(a, b byte) (res byte, z, n, h, cy bool) {
	r := int16(a) - int16(b)
	res = byte(r)
	return res, res == 0, true, (a & 0x0F) < (b & 0x0F), int16(a) < int16(b)
}

func (c *CPU) sbc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := int16(a) - int16(b) - int16(ci)
	res = byte(r)
	return res, res == 0, true, (a & 0x0F) < ((b & 0x0F) + ci), int16(a) < int16(b)+int16(ci)
}

func and8(a, b byte) (res byte, z, n, h, cy bool) { res = a & b; return res, res == 0, false, true, false }
func xor8(a, b byte) (res byte, z, n, h, cy bool) { res = a ^ b; return res, res == 0, false, false, false }
func or8(a, b byte) (res byte, z, n, h, cy bool)  { res = a | b; return res, res == 0, false, false, false }

func (c *CPU) cp8(a, b byte) (z, n, h, cy bool) {
	_, z, n, h, cy = c.sub8(a, b)
	return
}

// --- memory access ---

func (c *CPU) read8(addr uint16) byte     { return c.bus.Read(addr) }
func (c *CPU) write8(addr uint16, v byte) { c.bus.Write(addr, v) }

func (c *CPU) fetch8() byte {
	c.bus.NotePC(c.PC)
	b := c.read8(c.PC)
	c.PC++
	return b
}

func (c *CPU) fetch16() uint16 {
	lo := c.fetch8()
	hi := c.fetch8()
	return bit.Combine(hi, lo)
}

func (c *CPU) read16(addr uint16) uint16 {
	lo := c.read8(addr)
	hi := c.read8(addr + 1)
	return bit.Combine(hi, lo)
}

func (c *CPU) write16(addr uint16, v uint16) {
	c.write8(addr, bit.Low(v))
	c.write8(addr+1, bit.High(v))
}

// --- register pairs ---

func (c *CPU) getAF() uint16  { return bit.Combine(c.A, c.F&0xF0) }
func (c *CPU) setAF(v uint16) { c.A = bit.High(v); c.F = bit.Low(v) & 0xF0 }
func (c *CPU) getBC() uint16  { return bit.Combine(c.B, c.C) }
func (c *CPU) setBC(v uint16) { c.B = bit.High(v); c.C = bit.Low(v) }
func (c *CPU) getDE() uint16  { return bit.Combine(c.D, c.E) }
func (c *CPU) setDE(v uint16) { c.D = bit.High(v); c.E = bit.Low(v) }
func (c *CPU) getHL() uint16  { return bit.Combine(c.H, c.L) }
func (c *CPU) setHL(v uint16) { c.H = bit.High(v); c.L = bit.Low(v) }

func (c *CPU) push16(v uint16) {
	c.SP -= 2
	c.write16(c.SP, v)
}

func (c *CPU) pop16() uint16 {
	v := c.read16(c.SP)
	c.SP += 2
	return v
}

// reg8 indexes the B,C,D,E,H,L,(HL),A ordering used throughout the base and
// CB-prefixed opcode tables.
func (c *CPU) reg8(idx byte) byte {
	switch idx {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.read8(c.getHL())
	default:
		return c.A
	}
}

func (c *CPU) setReg8(idx byte, v byte) {
	switch idx {
	case 0:
		c.B = v
	case 1:
		c.C = v
	case 2:
		c.D = v
	case 3:
		c.E = v
	case 4:
		c.H = v
	case 5:
		c.L = v
	case 6:
		c.write8(c.getHL(), v)
	default:
		c.A = v
	}
}

// addHL16 implements ADD HL,rr flag behavior (Z preserved, N=0).
func (c *CPU) addHL16(rhs uint16) {
	hl := c.getHL()
	r := uint32(hl) + uint32(rhs)
	h := (hl&0x0FFF)+(rhs&0x0FFF) > 0x0FFF
	c.setHL(uint16(r))
	c.setZNHC(c.flag(flagZ), false, h, r > 0xFFFF)
}

// spPlusR8 computes SP+signed8 and the H/C flags per the documented
// LD HL,SP+r8 / ADD SP,r8 behavior (carries computed on the low byte).
func spPlusR8(sp uint16, off int8) (res uint16, h, cy bool) {
	res = uint16(int32(sp) + int32(off))
	low := byte(sp & 0xFF)
	h = (low&0x0F)+(byte(off)&0x0F) > 0x0F
	cy = uint16(low)+uint16(byte(off)) > 0xFF
	return
}

// Step executes one instruction, servicing a pending interrupt first if
// IME is set, and returns the M-cycle cost.
//
// EI's one-instruction delay is modeled with two flags: imeScheduled is set
// by the EI opcode and promoted to eiPending by the deferred
// advanceEISchedule at the end of that same Step; eiPending is promoted to
// IME at the end of the *next* Step — so the instruction immediately
// following EI always runs with the old IME value, and IME is set once it
// completes.
func (c *CPU) Step() int {
	defer c.advanceEISchedule()

	if cyc, serviced := c.serviceInterruptIfAny(); serviced {
		return cyc
	}

	if c.halted {
		return 1
	}

	op := c.fetch8()
	return c.execute(op)
}

func (c *CPU) advanceEISchedule() {
	if c.eiPending {
		c.IME = true
		c.eiPending = false
	}
	if c.imeScheduled {
		c.eiPending = true
		c.imeScheduled = false
	}
}

// serviceInterruptIfAny handles dispatch and the HALT-wake rule: a pending,
// enabled interrupt wakes HALT even when IME is false (and is not serviced
// in that case); dispatch proper only happens when IME is true.
func (c *CPU) serviceInterruptIfAny() (cycles int, serviced bool) {
	pending := c.bus.PendingInterrupts()
	if pending != 0 && c.halted {
		c.halted = false
	}
	if !c.IME || pending == 0 {
		return 0, false
	}
	for i, bit := range intBit {
		if pending&bit != 0 {
			c.bus.AckInterrupt(bit)
			c.IME = false
			c.halted = false
			c.push16(c.PC)
			c.PC = intVector[i]
			return 5, true
		}
	}
	return 0, false
}

// execute dispatches a fetched base opcode and returns its M-cycle cost.
func (c *CPU) execute(op byte) int {
	switch {
	case op == 0x76:
		c.halted = true
		return 1
	case op >= 0x40 && op <= 0x7F:
		d := (op >> 3) & 7
		s := op & 7
		c.setReg8(d, c.reg8(s))
		if d == 6 || s == 6 {
			return 2
		}
		return 1
	case op >= 0x80 && op <= 0xBF:
		return c.execALUReg(op)
	}

	switch op {
	case 0x00: // NOP
		return 1
	case 0x10: // STOP
		c.fetch8() // STOP is followed by an ignored byte
		c.stopped = true
		return 1

	// LD r,d8
	case 0x06:
		c.B = c.fetch8()
		return 2
	case 0x0E:
		c.C = c.fetch8()
		return 2
	case 0x16:
		c.D = c.fetch8()
		return 2
	case 0x1E:
		c.E = c.fetch8()
		return 2
	case 0x26:
		c.H = c.fetch8()
		return 2
	case 0x2E:
		c.L = c.fetch8()
		return 2
	case 0x36:
		c.write8(c.getHL(), c.fetch8())
		return 3
	case 0x3E:
		c.A = c.fetch8()
		return 2

	// 16-bit loads
	case 0x01:
		c.setBC(c.fetch16())
		return 3
	case 0x11:
		c.setDE(c.fetch16())
		return 3
	case 0x21:
		c.setHL(c.fetch16())
		return 3
	case 0x31:
		c.SP = c.fetch16()
		return 3
	case 0x08:
		addr := c.fetch16()
		c.write16(addr, c.SP)
		return 5

	case 0x02:
		c.write8(c.getBC(), c.A)
		return 2
	case 0x12:
		c.write8(c.getDE(), c.A)
		return 2
	case 0x0A:
		c.A = c.read8(c.getBC())
		return 2
	case 0x1A:
		c.A = c.read8(c.getDE())
		return 2

	case 0x22:
		hl := c.getHL()
		c.write8(hl, c.A)
		c.setHL(hl + 1)
		return 2
	case 0x2A:
		hl := c.getHL()
		c.A = c.read8(hl)
		c.setHL(hl + 1)
		return 2
	case 0x32:
		hl := c.getHL()
		c.write8(hl, c.A)
		c.setHL(hl - 1)
		return 2
	case 0x3A:
		hl := c.getHL()
		c.A = c.read8(hl)
		c.setHL(hl - 1)
		return 2

	case 0xE0:
		n := uint16(c.fetch8())
		c.write8(0xFF00+n, c.A)
		return 3
	case 0xF0:
		n := uint16(c.fetch8())
		c.A = c.read8(0xFF00 + n)
		return 3
	case 0xE2:
		c.write8(0xFF00+uint16(c.C), c.A)
		return 2
	case 0xF2:
		c.A = c.read8(0xFF00 + uint16(c.C))
		return 2
	case 0xEA:
		addr := c.fetch16()
		c.write8(addr, c.A)
		return 4
	case 0xFA:
		addr := c.fetch16()
		c.A = c.read8(addr)
		return 4

	// rotate-A and flag-control
	case 0x07: // RLCA
		cy := (c.A >> 7) & 1
		c.A = c.A<<1 | cy
		c.setZNHC(false, false, false, cy == 1)
		return 1
	case 0x0F: // RRCA
		cy := c.A & 1
		c.A = c.A>>1 | cy<<7
		c.setZNHC(false, false, false, cy == 1)
		return 1
	case 0x17: // RLA
		cy := (c.A >> 7) & 1
		var cin byte
		if c.flag(flagC) {
			cin = 1
		}
		c.A = c.A<<1 | cin
		c.setZNHC(false, false, false, cy == 1)
		return 1
	case 0x1F: // RRA
		cy := c.A & 1
		var cin byte
		if c.flag(flagC) {
			cin = 1
		}
		c.A = c.A>>1 | cin<<7
		c.setZNHC(false, false, false, cy == 1)
		return 1
	case 0x27: // DAA
		c.daa()
		return 1
	case 0x2F: // CPL
		c.A = ^c.A
		c.F = (c.F & (flagZ | flagC)) | flagN | flagH
		return 1
	case 0x37: // SCF
		c.F = (c.F & flagZ) | flagC
		return 1
	case 0x3F: // CCF
		newC := !c.flag(flagC)
		c.F = c.F & flagZ
		if newC {
			c.F |= flagC
		}
		return 1

	// 8-bit INC/DEC
	case 0x04:
		c.B = c.inc8(c.B)
		return 1
	case 0x0C:
		c.C = c.inc8(c.C)
		return 1
	case 0x14:
		c.D = c.inc8(c.D)
		return 1
	case 0x1C:
		c.E = c.inc8(c.E)
		return 1
	case 0x24:
		c.H = c.inc8(c.H)
		return 1
	case 0x2C:
		c.L = c.inc8(c.L)
		return 1
	case 0x3C:
		c.A = c.inc8(c.A)
		return 1
	case 0x34:
		addr := c.getHL()
		c.write8(addr, c.inc8(c.read8(addr)))
		return 3
	case 0x05:
		c.B = c.dec8(c.B)
		return 1
	case 0x0D:
		c.C = c.dec8(c.C)
		return 1
	case 0x15:
		c.D = c.dec8(c.D)
		return 1
	case 0x1D:
		c.E = c.dec8(c.E)
		return 1
	case 0x25:
		c.H = c.dec8(c.H)
		return 1
	case 0x2D:
		c.L = c.dec8(c.L)
		return 1
	case 0x3D:
		c.A = c.dec8(c.A)
		return 1
	case 0x35:
		addr := c.getHL()
		c.write8(addr, c.dec8(c.read8(addr)))
		return 3

	// ALU d8
	case 0xC6:
		c.aluAssign(c.add8(c.A, c.fetch8()))
		return 2
	case 0xCE:
		c.aluAssign(c.adc8(c.A, c.fetch8(), c.flag(flagC)))
		return 2
	case 0xD6:
		c.aluAssign(c.sub8(c.A, c.fetch8()))
		return 2
	case 0xDE:
		c.aluAssign(c.sbc8(c.A, c.fetch8(), c.flag(flagC)))
		return 2
	case 0xE6:
		c.aluAssign(and8(c.A, c.fetch8()))
		return 2
	case 0xEE:
		c.aluAssign(xor8(c.A, c.fetch8()))
		return 2
	case 0xF6:
		c.aluAssign(or8(c.A, c.fetch8()))
		return 2
	case 0xFE:
		z, n, h, cy := c.cp8(c.A, c.fetch8())
		c.setZNHC(z, n, h, cy)
		return 2

	// control transfers
	case 0xC3:
		c.PC = c.fetch16()
		return 4
	case 0xE9:
		c.PC = c.getHL()
		return 1
	case 0x18:
		off := int8(c.fetch8())
		c.PC = uint16(int32(c.PC) + int32(off))
		return 3
	case 0x20, 0x28, 0x30, 0x38:
		off := int8(c.fetch8())
		if c.condTaken(op) {
			c.PC = uint16(int32(c.PC) + int32(off))
			return 3
		}
		return 2

	case 0xCD:
		addr := c.fetch16()
		c.push16(c.PC)
		c.PC = addr
		return 6
	case 0xC9:
		c.PC = c.pop16()
		return 4
	case 0xD9:
		c.PC = c.pop16()
		c.IME = true
		return 4

	case 0xC7, 0xCF, 0xD7, 0xDF, 0xE7, 0xEF, 0xF7, 0xFF:
		c.push16(c.PC)
		c.PC = uint16(op &^ 0xC7)
		return 4

	case 0xC2, 0xCA, 0xD2, 0xDA:
		addr := c.fetch16()
		if c.condTaken(op) {
			c.PC = addr
			return 4
		}
		return 3
	case 0xC4, 0xCC, 0xD4, 0xDC:
		addr := c.fetch16()
		if c.condTaken(op) {
			c.push16(c.PC)
			c.PC = addr
			return 6
		}
		return 3
	case 0xC0, 0xC8, 0xD0, 0xD8:
		if c.condTaken(op) {
			c.PC = c.pop16()
			return 5
		}
		return 2

	// 16-bit INC/DEC/ADD
	case 0x03:
		c.setBC(c.getBC() + 1)
		return 2
	case 0x13:
		c.setDE(c.getDE() + 1)
		return 2
	case 0x23:
		c.setHL(c.getHL() + 1)
		return 2
	case 0x33:
		c.SP++
		return 2
	case 0x0B:
		c.setBC(c.getBC() - 1)
		return 2
	case 0x1B:
		c.setDE(c.getDE() - 1)
		return 2
	case 0x2B:
		c.setHL(c.getHL() - 1)
		return 2
	case 0x3B:
		c.SP--
		return 2
	case 0x09:
		c.addHL16(c.getBC())
		return 2
	case 0x19:
		c.addHL16(c.getDE())
		return 2
	case 0x29:
		c.addHL16(c.getHL())
		return 2
	case 0x39:
		c.addHL16(c.SP)
		return 2

	// stack/SP
	case 0xF8:
		off := int8(c.fetch8())
		res, h, cy := spPlusR8(c.SP, off)
		c.setHL(res)
		c.setZNHC(false, false, h, cy)
		return 3
	case 0xF9:
		c.SP = c.getHL()
		return 2
	case 0xE8:
		off := int8(c.fetch8())
		res, h, cy := spPlusR8(c.SP, off)
		c.SP = res
		c.setZNHC(false, false, h, cy)
		return 4

	case 0xF3:
		c.IME = false
		c.imeScheduled = false
		c.eiPending = false
		return 1
	case 0xFB:
		c.imeScheduled = true
		return 1

	case 0xF5:
		c.push16(c.getAF())
		return 4
	case 0xC5:
		c.push16(c.getBC())
		return 4
	case 0xD5:
		c.push16(c.getDE())
		return 4
	case 0xE5:
		c.push16(c.getHL())
		return 4
	case 0xF1:
		c.setAF(c.pop16())
		return 3
	case 0xC1:
		c.setBC(c.pop16())
		return 3
	case 0xD1:
		c.setDE(c.pop16())
		return 3
	case 0xE1:
		c.setHL(c.pop16())
		return 3

	case 0xCB:
		return c.executeCB(c.fetch8())

	default:
		// unassigned opcode (D3, DB, DD, E3, E4, EB, EC, ED, F4, FC, FD)
		panic(fmt.Sprintf("cpu: undefined opcode %02X at PC=%04X", op, c.PC-1))
	}
}

// execALUReg handles 0x80-0xBF: ADD/ADC/SUB/SBC/AND/XOR/OR/CP A,r8.
func (c *CPU) execALUReg(op byte) int {
	s := op & 7
	src := c.reg8(s)
	group := (op >> 3) & 7
	switch group {
	case 0:
		c.aluAssign(c.add8(c.A, src))
	case 1:
		c.aluAssign(c.adc8(c.A, src, c.flag(flagC)))
	case 2:
		c.aluAssign(c.sub8(c.A, src))
	case 3:
		c.aluAssign(c.sbc8(c.A, src, c.flag(flagC)))
	case 4:
		c.aluAssign(and8(c.A, src))
	case 5:
		c.aluAssign(xor8(c.A, src))
	case 6:
		c.aluAssign(or8(c.A, src))
	case 7:
		z, n, h, cy := c.cp8(c.A, src)
		c.setZNHC(z, n, h, cy)
	}
	if s == 6 {
		return 2
	}
	return 1
}

func (c *CPU) aluAssign(res byte, z, n, h, cy bool) {
	c.A = res
	c.setZNHC(z, n, h, cy)
}

func (c *CPU) inc8(v byte) byte {
	old := v
	v++
	c.setZNHC(v == 0, false, old&0x0F == 0x0F, c.flag(flagC))
	return v
}

func (c *CPU) dec8(v byte) byte {
	old := v
	v--
	c.setZNHC(v == 0, true, old&0x0F == 0x00, c.flag(flagC))
	return v
}

// condTaken evaluates the cc field of JR/JP/CALL/RET conditional opcodes.
func (c *CPU) condTaken(op byte) bool {
	switch (op >> 3) & 3 {
	case 0:
		return !c.flag(flagZ)
	case 1:
		return c.flag(flagZ)
	case 2:
		return !c.flag(flagC)
	default:
		return c.flag(flagC)
	}
}

func (c *CPU) daa() {
	a := c.A
	cf := c.flag(flagC)
	if !c.flag(flagN) {
		if cf || a > 0x99 {
			a += 0x60
			cf = true
		}
		if c.flag(flagH) || (a&0x0F) > 9 {
			a += 0x06
		}
	} else {
		if cf {
			a -= 0x60
		}
		if c.flag(flagH) {
			a -= 0x06
		}
	}
	c.A = a
	c.setZNHC(c.A == 0, c.flag(flagN), false, cf)
}

// executeCB dispatches a CB-prefixed opcode and returns its M-cycle cost
// (2 for register operands, 4 for (HL), except BIT (HL) which is 3).
func (c *CPU) executeCB(cb byte) int {
	reg := cb & 7
	group := (cb >> 6) & 3
	y := (cb >> 3) & 7

	baseCycles := 2
	if reg == 6 {
		baseCycles = 4
	}

	switch group {
	case 0: // rotate/shift/swap
		v := c.reg8(reg)
		v = c.shiftOp(y, v)
		c.setReg8(reg, v)
		return baseCycles
	case 1: // BIT y,r
		v := c.reg8(reg)
		z := v&(1<<y) == 0
		c.F = (c.F & flagC) | flagH
		if z {
			c.F |= flagZ
		}
		if reg == 6 {
			return 3
		}
		return baseCycles
	case 2: // RES y,r
		v := c.reg8(reg)
		c.setReg8(reg, v&^(1<<y))
		return baseCycles
	default: // SET y,r
		v := c.reg8(reg)
		c.setReg8(reg, v|(1<<y))
		return baseCycles
	}
}

// shiftOp applies one of RLC/RRC/RL/RR/SLA/SRA/SWAP/SRL (selected by y) to v,
// sets flags, and returns the result. All of these zero-flag-from-result,
// unlike the A-only RLCA/RRCA/RLA/RRA which always clear Z.
func (c *CPU) shiftOp(y byte, v byte) byte {
	var cy byte
	switch y {
	case 0: // RLC
		cy = (v >> 7) & 1
		v = v<<1 | cy
	case 1: // RRC
		cy = v & 1
		v = v>>1 | cy<<7
	case 2: // RL
		cy = (v >> 7) & 1
		var cin byte
		if c.flag(flagC) {
			cin = 1
		}
		v = v<<1 | cin
	case 3: // RR
		cy = v & 1
		var cin byte
		if c.flag(flagC) {
			cin = 1
		}
		v = v>>1 | cin<<7
	case 4: // SLA
		cy = (v >> 7) & 1
		v <<= 1
	case 5: // SRA
		cy = v & 1
		v = v>>1 | v&0x80
	case 6: // SWAP
		v = v<<4 | v>>4
		c.setZNHC(v == 0, false, false, false)
		return v
	default: // SRL
		cy = v & 1
		v >>= 1
	}
	c.setZNHC(v == 0, false, false, cy == 1)
	return v
}
