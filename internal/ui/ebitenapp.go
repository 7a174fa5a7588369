// Package ui hosts the Ebitengine presentation task: it polls input, steps
// the emulation one frame per Ebitengine tick, and blits the resulting
// framebuffer. Emulation runs on Ebitengine's update goroutine, not on a
// goroutine of its own, so its frame rate is Ebitengine's tick rate.
package ui

import (
	"fmt"

	"github.com/ashn-dot-dev/gbcore/internal/emu"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

const (
	screenW = 160
	screenH = 144
)

// App implements ebiten.Game, wiring window input to the Machine's joypad
// and the Machine's framebuffer to the window surface.
type App struct {
	cfg Config
	m   *emu.Machine
	tex *ebiten.Image
}

// NewApp builds the presentation task around an already-loaded Machine.
func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(screenW*cfg.Scale, screenH*cfg.Scale)
	return &App{cfg: cfg, m: m, tex: ebiten.NewImage(screenW, screenH)}
}

// Update polls keyboard state into joypad buttons and steps one emulation
// frame via Machine.StepFrame, which does not sleep; wall-clock pacing comes
// only from ebiten calling Update once per tick.
func (a *App) Update() error {
	a.m.SetButtons(emu.Buttons{
		Up:     ebiten.IsKeyPressed(ebiten.KeyArrowUp),
		Down:   ebiten.IsKeyPressed(ebiten.KeyArrowDown),
		Left:   ebiten.IsKeyPressed(ebiten.KeyArrowLeft),
		Right:  ebiten.IsKeyPressed(ebiten.KeyArrowRight),
		A:      ebiten.IsKeyPressed(ebiten.KeyZ),
		B:      ebiten.IsKeyPressed(ebiten.KeyX),
		Start:  ebiten.IsKeyPressed(ebiten.KeyEnter),
		Select: ebiten.IsKeyPressed(ebiten.KeyShiftRight) || ebiten.IsKeyPressed(ebiten.KeyShiftLeft),
	})
	a.m.StepFrame()

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return fmt.Errorf("quit requested")
	}
	return nil
}

// Draw blits the machine's RGBA framebuffer into the window, scaled by
// cfg.Scale.
func (a *App) Draw(screen *ebiten.Image) {
	a.tex.WritePixels(a.m.Framebuffer())
	opts := &ebiten.DrawImageOptions{}
	opts.GeoM.Scale(float64(a.cfg.Scale), float64(a.cfg.Scale))
	screen.DrawImage(a.tex, opts)
}

// Layout reports the fixed logical screen size; ebiten handles the window
// scale factor via Draw's GeoM.
func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenW * a.cfg.Scale, screenH * a.cfg.Scale
}
