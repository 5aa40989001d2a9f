package subghz

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/procsup"
)

const (
	rxChunkBytes   = 256 * 1024
	rxPollInterval = 20 * time.Millisecond
)

// RXParams starts a raw receive capture.
type RXParams struct {
	FrequencyHz float64
	SampleRate  int
	LNAGain     int
	VGAGain     int
	Label       string
	Trigger     *TriggerParams
}

// TriggerParams arms the smart-trigger auto-stop/auto-trim behaviour
// (spec.md §4.5.1 "Smart trigger").
type TriggerParams struct {
	PreRollSeconds  float64
	PostRollSeconds float64
}

type rxSession struct {
	engine *Engine
	handle *procsup.Handle

	filePath    string
	frequencyHz float64
	sampleRate  int
	startedAt   time.Time

	segmenter *burstSegmenter

	mu           sync.Mutex
	bursts       []Burst
	firstBurst   *float64
	lastBurstEnd *float64

	trigger  *TriggerParams
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// StartRX claims the HackRF for RX and begins streaming to a new
// capture file under the captures directory.
func (e *Engine) StartRX(p RXParams) error {
	if err := e.beginTransition(ModeRX); err != nil {
		return err
	}

	sampleRate := p.SampleRate
	if sampleRate <= 0 {
		sampleRate = 2_000_000
	}

	id := newCaptureID()
	filePath := filepath.Join(e.cfg.CapturesDir, id+".iq")

	argv := []string{
		"hackrf_transfer",
		"-r", filePath,
		"-f", fmt.Sprintf("%d", int64(p.FrequencyHz)),
		"-s", fmt.Sprintf("%d", sampleRate),
		"-l", fmt.Sprintf("%d", p.LNAGain),
		"-g", fmt.Sprintf("%d", p.VGAGain),
	}

	handle, err := procsup.SpawnPipe(argv)
	if err != nil {
		e.abortTransition()
		return err
	}

	rx := &rxSession{
		engine:      e,
		handle:      handle,
		filePath:    filePath,
		frequencyHz: p.FrequencyHz,
		sampleRate:  sampleRate,
		startedAt:   time.Now(),
		segmenter:   newBurstSegmenter(sampleRate),
		trigger:     p.Trigger,
		stopCh:      make(chan struct{}),
	}
	e.rx = rx

	rx.wg.Add(1)
	go rx.readLoop()

	e.finishTransition()
	e.publishStatus("started", map[string]any{"capture_id": id, "frequency_hz": p.FrequencyHz})
	return nil
}

// StopRX stops the active RX capture, finalises its sidecar, and
// returns the engine to idle.
func (e *Engine) StopRX() error {
	rx := e.rx
	if rx == nil {
		return nil
	}
	rx.stop()
	e.rx = nil
	e.returnToIdle()
	e.publishStatus("stopped", nil)
	return nil
}

func (rx *rxSession) stop() {
	rx.stopOnce.Do(func() { close(rx.stopCh) })
	_ = procsup.SafeTerminate(rx.handle, 2*time.Second)
	rx.wg.Wait()
	rx.finalize()
}

// readLoop tails the growing IQ file without blocking hackrf_transfer's
// write side: os.Open for read, track an offset, Read what is new, and
// poll when caught up (spec.md §4.5.1 "side channel").
func (rx *rxSession) readLoop() {
	defer rx.wg.Done()

	var f *os.File
	for f == nil {
		select {
		case <-rx.stopCh:
			return
		default:
		}
		var err error
		f, err = os.Open(rx.filePath)
		if err != nil {
			time.Sleep(rxPollInterval)
		}
	}
	defer f.Close()

	buf := make([]byte, rxChunkBytes)
	var offsetSeconds float64
	idleSince := time.Time{}

	for {
		select {
		case <-rx.stopCh:
			return
		default:
		}

		n, err := f.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			rx.process(chunk, &offsetSeconds)
			idleSince = time.Time{}
		}
		if err != nil {
			if rx.trigger != nil && !idleSince.IsZero() &&
				time.Since(idleSince).Seconds() > rx.trigger.PostRollSeconds {
				go rx.engine.StopRX()
				return
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
			}
			time.Sleep(rxPollInterval)
		}
	}
}

func (rx *rxSession) process(chunk []byte, offsetSeconds *float64) {
	sample := analyze(chunk)
	rx.engine.bus.Publish("subghz", bus.Event{Type: bus.EventRXLevel, Payload: map[string]any{"level_score": sample.LevelScore}})
	rx.engine.bus.Publish("subghz", bus.Event{Type: bus.EventWaveform, Payload: map[string]any{"envelope": sample.Envelope}})
	rx.engine.bus.Publish("subghz", bus.Event{Type: bus.EventSpectrum, Payload: map[string]any{"spectrum": sample.SpectrumDB}})

	for _, b := range rx.segmenter.feed(chunk) {
		b.StartSeconds += *offsetSeconds
		b.EndSeconds += *offsetSeconds

		rx.mu.Lock()
		rx.bursts = append(rx.bursts, b)
		if rx.firstBurst == nil {
			rx.firstBurst = new(float64)
			*rx.firstBurst = b.StartSeconds
		}
		rx.lastBurstEnd = new(float64)
		*rx.lastBurstEnd = b.EndSeconds
		rx.mu.Unlock()

		rx.engine.bus.Publish("subghz", bus.Event{Type: bus.EventBurst, Payload: map[string]any{
			"start_seconds":    b.StartSeconds,
			"end_seconds":      b.EndSeconds,
			"duration_seconds": b.DurationSeconds,
			"peak_level":       b.PeakLevel,
			"fingerprint":      b.Fingerprint,
			"modulation_hint":  string(b.Modulation),
			"confidence":       b.ModulationScore,
		}})
	}

	*offsetSeconds += float64(len(chunk)/2) / float64(rx.sampleRate)
}

// finalize writes the capture's JSON sidecar: dominant fingerprint,
// composed auto-label, and (if a smart trigger was armed) a trim of
// the IQ file to [first_burst-pre_roll, last_burst+post_roll].
func (rx *rxSession) finalize() {
	rx.mu.Lock()
	bursts := append([]Burst(nil), rx.bursts...)
	first, last := rx.firstBurst, rx.lastBurstEnd
	rx.mu.Unlock()

	stopped := time.Now()
	capture := &Capture{
		ID:              captureIDFromPath(rx.filePath),
		FilePath:        rx.filePath,
		FrequencyHz:     rx.frequencyHz,
		SampleRate:      rx.sampleRate,
		StartedAt:       rx.startedAt,
		StoppedAt:       &stopped,
		DurationSeconds: stopped.Sub(rx.startedAt).Seconds(),
		Bursts:          bursts,
	}

	if rx.trigger != nil && first != nil && last != nil {
		trimStart := *first - rx.trigger.PreRollSeconds
		if trimStart < 0 {
			trimStart = 0
		}
		trimDuration := (*last + rx.trigger.PostRollSeconds) - trimStart
		if trimmed, err := trimIQFile(capture, trimStart, trimDuration); err == nil {
			capture = trimmed
		}
	}

	applyDerivedFields(capture)
	_ = rx.engine.captures.save(capture)
}
