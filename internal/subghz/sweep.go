package subghz

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/procsup"
)

// SweepParams starts a wideband power sweep.
type SweepParams struct {
	StartHz uint64
	EndHz   uint64
	BinHz   int
}

type sweepSession struct {
	engine *Engine
	params SweepParams

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// StartSweep claims the HackRF for a hackrf_sweep scan.
func (e *Engine) StartSweep(p SweepParams) error {
	if err := e.beginTransition(ModeSweep); err != nil {
		return err
	}

	s := &sweepSession{engine: e, params: p, stopCh: make(chan struct{})}
	e.sweep = s

	s.wg.Add(1)
	go s.supervise()

	e.finishTransition()
	e.publishStatus("started", map[string]any{"start_hz": p.StartHz, "end_hz": p.EndHz, "bin_hz": p.BinHz})
	return nil
}

// StopSweep stops the active sweep and returns to idle.
func (e *Engine) StopSweep() error {
	s := e.sweep
	if s == nil {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	e.sweep = nil
	e.returnToIdle()
	e.publishStatus("stopped", nil)
	return nil
}

// supervise mirrors decodeSession's restart-on-drop loop but with
// fewer diagnostics, per spec.md §4.5.4.
func (s *sweepSession) supervise() {
	defer s.wg.Done()
	cfg := s.engine.cfg
	attempts := 0

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.runOnce()

		select {
		case <-s.stopCh:
			return
		default:
		}

		attempts++
		if attempts >= cfg.MaxRestarts {
			s.engine.bus.Publish("subghz", bus.Event{Type: bus.EventError, Payload: map[string]any{"error": "sweep exceeded max restarts", "sub_mode": "sweep"}})
			return
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(time.Duration(cfg.RestartDelayMs) * time.Millisecond):
		}
	}
}

func (s *sweepSession) runOnce() {
	argv := []string{
		"hackrf_sweep",
		"-f", fmt.Sprintf("%d:%d", s.params.StartHz/1_000_000, s.params.EndHz/1_000_000),
		"-w", fmt.Sprintf("%d", s.params.BinHz),
	}
	handle, err := procsup.SpawnPipe(argv)
	if err != nil {
		return
	}
	defer procsup.SafeTerminate(handle, time.Second)

	done := make(chan struct{})
	go func() {
		handle.Wait()
		close(done)
	}()

	sc := bufio.NewScanner(handle.Stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case <-s.stopCh:
			return
		case <-done:
			return
		default:
		}
		if points, ok := parseSweepLine(sc.Text()); ok {
			s.engine.bus.Publish("subghz", bus.Event{Type: bus.EventSweep, Payload: map[string]any{"points": points}})
		}
	}
	<-done
}

type sweepPoint struct {
	FreqHz float64 `json:"freq_hz"`
	DB     float64 `json:"db"`
}

// parseSweepLine parses one hackrf_sweep CSV line:
// date,time,hz_low,hz_high,bin_hz_width,num_samples,dB,dB,...
func parseSweepLine(line string) ([]sweepPoint, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 7 {
		return nil, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	hzLow, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil, false
	}
	binHz, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return nil, false
	}

	dbFields := fields[6:]
	points := make([]sweepPoint, 0, len(dbFields))
	for i, f := range dbFields {
		db, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		points = append(points, sweepPoint{FreqHz: hzLow + float64(i)*binHz, DB: db})
	}
	if len(points) == 0 {
		return nil, false
	}
	return points, true
}
