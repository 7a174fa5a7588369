package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace    bool // stored only; Machine does not read it and produces no instruction trace
	LimitFPS bool // passed to the scheduler's pacing flag, which only Scheduler.Run uses; StepFrame is never throttled
}
