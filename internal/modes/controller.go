// Package modes implements the shared Mode Controller shape (spec.md
// §4.4) and the controllers built on it: POCSAG/FLEX, ACARS, VDL2, AIS,
// DSC, RTLAMR, DMR, Meshtastic, Weather-Sat. Every controller claims an
// SDR device (or, for Meshtastic, a serial port) before spawning its
// child tool(s), parses output into typed bus events, and publishes
// status transitions. Grounded on decoder_spawner.go's reader-goroutine
// and line-classification shape, generalised from a single jt9/wsprd
// decoder to an arbitrary external-tool pipeline.
package modes

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/devreg"
	"github.com/mitchross/intercept-sub000/internal/interr"
	"github.com/mitchross/intercept-sub000/internal/procsup"
)

// StartParams is the uniform start payload named by spec.md §6.1's
// POST /<mode>/start contract.
type StartParams struct {
	Device      int            `json:"device"`
	Gain        int            `json:"gain"`
	PPM         int            `json:"ppm"`
	Frequency   float64        `json:"frequency,omitempty"`
	Frequencies []float64      `json:"frequencies,omitempty"`
	SDRType     string         `json:"sdr_type,omitempty"`
	Extra       map[string]any `json:"-"`
}

// Counters tracks per-controller throughput for the status endpoint.
type Counters struct {
	EventsParsed int64 `json:"events_parsed"`
	RawLines     int64 `json:"raw_lines"`
	ParseErrors  int64 `json:"parse_errors"`
}

// Status is the shape of GET /<mode>/status.
type Status struct {
	Running         bool       `json:"running"`
	Counters        Counters   `json:"counters"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
}

// LineParser turns one decoder output line into a typed event. ok is
// false for an unrecognised line, which becomes a raw event instead.
type LineParser func(line string) (eventType bus.EventType, payload map[string]any, ok bool)

// Validator checks StartParams before any device claim or spawn,
// returning an *interr.Error (KindValidation) on failure.
type Validator func(p StartParams) error

// CommandBuilder resolves StartParams into the pipeline of external
// commands to run, in spawn order (spec.md §4.4 step 3). A
// single-element pipeline is the common case; POCSAG runs its two tools
// as one shell stage.
type CommandBuilder func(p StartParams) ([]Stage, error)

// Stage is one child process in a controller's pipeline.
type Stage struct {
	Argv  []string
	Style procsup.IOStyle
}

// Controller is the shared shape every mode (other than SubGHz and
// Meshtastic, which have their own engines) is built from.
type Controller struct {
	Name           string
	Registry       *devreg.Registry
	Bus            *bus.Bus
	ParseLine      LineParser
	BuildCommand   CommandBuilder
	Validate       Validator
	TerminateGrace time.Duration

	mu              sync.Mutex
	running         bool
	deviceIndex     int
	hasDevice       bool
	pipeline        *pipeline
	counters        Counters
	lastMessageTime time.Time
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// New builds a Controller named name, claiming devices from registry
// and publishing to bus, with TerminateGrace set to 3s.
func New(name string, registry *devreg.Registry, b *bus.Bus, build CommandBuilder, parse LineParser, validate Validator) *Controller {
	return &Controller{
		Name:           name,
		Registry:       registry,
		Bus:            b,
		BuildCommand:   build,
		ParseLine:      parse,
		Validate:       validate,
		TerminateGrace: 3 * time.Second,
	}
}

// Start validates params, claims a device, spawns the pipeline, and
// begins reading its output (spec.md §4.4 steps 1-4).
func (c *Controller) Start(params StartParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return interr.New(interr.KindValidation, fmt.Sprintf("%s is already running", c.Name))
	}
	if c.Validate != nil {
		if err := c.Validate(params); err != nil {
			return err
		}
	}

	if c.Registry != nil {
		if err := c.Registry.Claim(params.Device, c.Name); err != nil {
			return interr.Wrap(interr.KindDeviceBusy, err.Error(), err)
		}
	}
	release := func() {
		if c.Registry != nil {
			c.Registry.Release(params.Device)
		}
	}

	stages, err := c.BuildCommand(params)
	if err != nil {
		release()
		return interr.Wrap(interr.KindValidation, "failed to build command", err)
	}

	pl, err := spawnPipeline(stages)
	if err != nil {
		release()
		return interr.Wrap(interr.KindSpawnFailure, fmt.Sprintf("failed to spawn %s pipeline", c.Name), err)
	}

	c.pipeline = pl
	c.deviceIndex = params.Device
	c.hasDevice = true
	c.running = true
	c.counters = Counters{}
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.readLoop(pl)

	c.Bus.Publish(c.Name, bus.Event{Type: bus.EventStatus, Payload: map[string]any{"status": "started"}})
	return nil
}

// Stop terminates the pipeline (reverse spawn order), releases the
// device, and publishes status: stopped once all readers exit.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	close(c.stopCh)
	pl := c.pipeline
	c.mu.Unlock()

	pl.terminate(c.TerminateGrace)
	c.wg.Wait()

	c.mu.Lock()
	c.running = false
	if c.hasDevice && c.Registry != nil {
		c.Registry.Release(c.deviceIndex)
	}
	c.hasDevice = false
	c.pipeline = nil
	c.mu.Unlock()

	c.Bus.Publish(c.Name, bus.Event{Type: bus.EventStatus, Payload: map[string]any{"status": "stopped"}})
	return nil
}

// Status returns the current running state and counters.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{Running: c.running, Counters: c.counters}
	if !c.lastMessageTime.IsZero() {
		t := c.lastMessageTime
		st.LastMessageTime = &t
	}
	return st
}

// readLoop drains the pipeline's final stage line-by-line, publishing a
// typed event per parsed line and a raw event otherwise. On pipeline
// exit (error or EOF) it forces the controller back to idle.
func (c *Controller) readLoop(pl *pipeline) {
	defer c.wg.Done()

	src := pl.output()
	for {
		line, ok := src.NextLine()
		if !ok {
			break
		}
		if line == "" {
			continue
		}
		c.handleLine(line)
	}

	if isDeviceDisconnect(lastStderr(pl)) {
		c.Bus.Publish(c.Name, bus.Event{Type: bus.EventError, Payload: map[string]any{
			"error_type": string(interr.KindDeviceDisconnect),
			"message":    "device disconnected",
		}})
	}

	c.mu.Lock()
	wasRunning := c.running
	c.mu.Unlock()
	if wasRunning {
		go c.Stop()
	}
}

func (c *Controller) handleLine(line string) {
	eventType, payload, ok := c.ParseLine(line)
	c.mu.Lock()
	c.lastMessageTime = time.Now()
	if ok {
		c.counters.EventsParsed++
	} else {
		c.counters.RawLines++
	}
	c.mu.Unlock()

	if !ok {
		c.Bus.Publish(c.Name, bus.Event{Type: bus.EventRaw, Payload: map[string]any{"line": line}})
		return
	}
	c.Bus.Publish(c.Name, bus.Event{Type: eventType, Payload: payload})
}

func isDeviceDisconnect(stderrTail string) bool {
	lower := strings.ToLower(stderrTail)
	return strings.Contains(lower, "no such device") || strings.Contains(lower, "disconnected")
}
