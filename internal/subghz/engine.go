package subghz

import (
	"sync"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/config"
	"github.com/mitchross/intercept-sub000/internal/interr"
)

// Engine owns the single active sub-mode over the one HackRF the
// process talks to. HackRF is deliberately not registered in
// internal/devreg (spec.md §4.2 Scope) — this engine is its own,
// simpler device registry of exactly one device.
//
// Two locks, for two different jobs: opMu serialises the start/stop
// sequence itself (only one transition may be in flight), while modeMu
// guards the cheap `mode` read used by status queries and by
// hackrfDetector's activeMode callback, which must never block behind
// a start/stop in progress.
type Engine struct {
	cfg      *config.SubGHzConfig
	bus      *bus.Bus
	detector *hackrfDetector

	opMu sync.Mutex

	modeMu sync.RWMutex
	mode   Mode

	rx       *rxSession
	decode   *decodeSession
	tx       *txSession
	sweep    *sweepSession
	captures *captureLibrary
}

// New constructs an idle Engine backed by cfg and publishing onto b.
func New(cfg *config.SubGHzConfig, b *bus.Bus) *Engine {
	e := &Engine{cfg: cfg, bus: b, mode: ModeIdle}
	e.detector = newHackrfDetector(e.currentMode)
	e.captures = newCaptureLibrary(cfg.CapturesDir)
	return e
}

func (e *Engine) currentMode() Mode {
	e.modeMu.RLock()
	defer e.modeMu.RUnlock()
	return e.mode
}

func (e *Engine) setMode(m Mode) {
	e.modeMu.Lock()
	e.mode = m
	e.modeMu.Unlock()
}

// Mode reports the engine's current sub-mode.
func (e *Engine) Mode() Mode { return e.currentMode() }

// DetectHackRF reports whether a HackRF is attached, per hackrfDetector's
// 2s-idle / always-fresh-otherwise cache policy.
func (e *Engine) DetectHackRF() (present bool, serial string) {
	return e.detector.Detect()
}

// beginTransition takes opMu, requires the engine to currently be idle,
// and sets the mode to target before the caller spawns anything. It
// publishes no event; callers publish "started" once the spawn succeeds.
func (e *Engine) beginTransition(target Mode) error {
	e.opMu.Lock()
	if e.currentMode() != ModeIdle {
		e.opMu.Unlock()
		return interr.New(interr.KindDeviceBusy, "subghz engine is not idle: "+string(e.currentMode()))
	}
	e.setMode(target)
	return nil
}

// abortTransition rolls back a failed start back to idle and releases
// opMu. It must be called exactly once per successful beginTransition
// that does not go on to call finishTransition.
func (e *Engine) abortTransition() {
	e.setMode(ModeIdle)
	e.opMu.Unlock()
}

// finishTransition releases opMu once a sub-mode has fully started;
// the sub-mode stays active (not idle) until its own Stop calls
// returnToIdle.
func (e *Engine) finishTransition() {
	e.opMu.Unlock()
}

// returnToIdle is called by a sub-mode's Stop once its process and
// reader goroutines have fully wound down.
func (e *Engine) returnToIdle() {
	e.opMu.Lock()
	e.setMode(ModeIdle)
	e.opMu.Unlock()
}

func (e *Engine) publishStatus(status string, extra map[string]any) {
	data := map[string]any{"status": status, "sub_mode": string(e.currentMode())}
	for k, v := range extra {
		data[k] = v
	}
	e.bus.Publish("subghz", bus.Event{Type: bus.EventStatus, Payload: data})
}
