// Package scheduler drives the CPU/Bus pair one instruction at a time and
// paces whole frames to wall-clock time, so the emulation task in internal/emu
// can run on its own goroutine independent of the presentation task.
package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/ashn-dot-dev/gbcore/internal/bus"
	"github.com/ashn-dot-dev/gbcore/internal/cpu"
)

// MCyclesPerFrame is 70224 T-cycles / 4, the DMG frame length.
const MCyclesPerFrame = 17556

// FrameDuration is the wall-clock length of one frame at ~59.7275 Hz.
const FrameDuration = 16742706 * time.Nanosecond

// Scheduler runs the fetch-execute-step loop and paces frames to real time.
type Scheduler struct {
	cpu *cpu.CPU
	bus *bus.Bus

	stopping atomic.Bool
	paced    bool
}

// New returns a Scheduler driving c/b. pace enables wall-clock frame
// throttling (disable for headless/batch runs).
func New(c *cpu.CPU, b *bus.Bus, pace bool) *Scheduler {
	return &Scheduler{cpu: c, bus: b, paced: pace}
}

// Stop requests the Run loop to return after its current frame.
func (s *Scheduler) Stop() { s.stopping.Store(true) }

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool { return s.stopping.Load() }

// RunFrame executes exactly one frame's worth of M-cycles (MCyclesPerFrame),
// stepping the CPU instruction by instruction and advancing the Bus/PPU/Timer
// by each instruction's T-cycle cost.
func (s *Scheduler) RunFrame() {
	budget := MCyclesPerFrame
	for budget > 0 {
		mcyc := s.cpu.Step()
		if mcyc <= 0 {
			mcyc = 1
		}
		s.bus.Tick(mcyc * 4)
		budget -= mcyc
	}
}

// Run drives frames continuously until Stop is called, pacing each to
// FrameDuration of wall-clock time when paced is set. frameDone, if non-nil,
// is invoked after every completed frame (e.g. to publish a framebuffer).
func (s *Scheduler) Run(frameDone func()) {
	for !s.Stopped() {
		start := time.Now()
		s.RunFrame()
		if frameDone != nil {
			frameDone()
		}
		if s.paced {
			elapsed := time.Since(start)
			if elapsed < FrameDuration {
				time.Sleep(FrameDuration - elapsed)
			}
		}
	}
}
