package scheduler

import (
	"testing"

	"github.com/ashn-dot-dev/gbcore/internal/bus"
	"github.com/ashn-dot-dev/gbcore/internal/cpu"
)

func TestScheduler_RunFrameAdvancesLY(t *testing.T) {
	rom := make([]byte, 0x8000)
	b := bus.New(rom)
	b.Write(0xFF40, 0x80) // LCD on
	c := cpu.New(b)
	c.ResetNoBoot()
	s := New(c, b, false)

	s.RunFrame()
	if _, ok := b.PPU().TakeFrame(); !ok {
		t.Fatalf("expected a frame to be ready after one scheduler frame")
	}
}

func TestScheduler_StopEndsRunLoop(t *testing.T) {
	rom := make([]byte, 0x8000)
	b := bus.New(rom)
	c := cpu.New(b)
	c.ResetNoBoot()
	s := New(c, b, false)

	frames := 0
	done := make(chan struct{})
	go func() {
		s.Run(func() {
			frames++
			if frames == 3 {
				s.Stop()
			}
		})
		close(done)
	}()
	<-done
	if frames < 3 {
		t.Fatalf("expected at least 3 frames to run before stopping, got %d", frames)
	}
}
