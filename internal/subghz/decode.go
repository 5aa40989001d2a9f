package subghz

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/procsup"
)

// weatherProtocolIDs are the rtl_433 protocol numbers the "weather"
// decode profile restricts to, versus letting every registered
// rtl_433 decoder run ("all"). Taken from rtl_433's common
// weather-station/TPMS protocol table.
var weatherProtocolIDs = []int{
	1, 12, 19, 20, 29, 40, 55, 68, 73, 76, 113, 133, 150, 153,
}

var decoderSignalKeywords = []string{"detected", "decoded", "pulse", "OOK", "FSK"}

// DecodeParams starts a HackRF → rtl_433 decode pipeline.
type DecodeParams struct {
	FrequencyHz float64
	SampleRate  int
	Profile     string // "weather" or "all"
}

type decodeSession struct {
	engine *Engine

	frequencyHz float64
	sampleRate  int
	profile     string

	queue     *iqQueue
	segmenter *burstSegmenter

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	quickRestarts []time.Time
}

// StartDecode claims the HackRF for a Decode pipeline.
func (e *Engine) StartDecode(p DecodeParams) error {
	if err := e.beginTransition(ModeDecode); err != nil {
		return err
	}

	sampleRate := p.SampleRate
	if sampleRate <= 0 {
		sampleRate = 2_000_000
	}
	profile := p.Profile
	if profile == "" {
		profile = "all"
	}

	d := &decodeSession{
		engine:      e,
		frequencyHz: p.FrequencyHz,
		sampleRate:  sampleRate,
		profile:     profile,
		queue:       newIQQueue(512),
		segmenter:   newBurstSegmenter(sampleRate),
		stopCh:      make(chan struct{}),
	}
	e.decode = d

	d.wg.Add(1)
	go d.supervise()

	e.finishTransition()
	e.publishStatus("started", map[string]any{"frequency_hz": p.FrequencyHz, "profile": profile})
	return nil
}

// StopDecode stops the active Decode pipeline and returns to idle.
func (e *Engine) StopDecode() error {
	d := e.decode
	if d == nil {
		return nil
	}
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	e.decode = nil
	e.returnToIdle()
	e.publishStatus("stopped", nil)
	return nil
}

// supervise owns the restart-on-USB-drop policy (spec.md §4.5.2): up to
// MaxRestarts attempts with RestartDelayMs between them, escalating to a
// fatal error if MaxQuickRestarts occur within QuickRestartWindowSec.
func (d *decodeSession) supervise() {
	defer d.wg.Done()

	cfg := d.engine.cfg
	attempts := 0

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		if err := d.runOnce(); err != nil {
			d.engine.bus.Publish("subghz", bus.Event{Type: bus.EventError, Payload: map[string]any{"error": err.Error(), "sub_mode": "decode"}})
		}

		select {
		case <-d.stopCh:
			return
		default:
		}

		attempts++
		now := time.Now()
		d.quickRestarts = append(d.quickRestarts, now)
		d.quickRestarts = pruneOlderThan(d.quickRestarts, now.Add(-time.Duration(cfg.QuickRestartWindowSec)*time.Second))

		if len(d.quickRestarts) >= cfg.MaxQuickRestarts {
			d.engine.bus.Publish("subghz", bus.Event{Type: bus.EventError, Payload: map[string]any{
				"error": "decode pipeline unstable: too many restarts in window", "sub_mode": "decode",
			}})
			return
		}
		if attempts >= cfg.MaxRestarts {
			d.engine.bus.Publish("subghz", bus.Event{Type: bus.EventError, Payload: map[string]any{
				"error": "decode pipeline exceeded max restarts", "sub_mode": "decode",
			}})
			return
		}

		select {
		case <-d.stopCh:
			return
		case <-time.After(time.Duration(cfg.RestartDelayMs) * time.Millisecond):
		}
	}
}

func pruneOlderThan(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// runOnce spawns one hackrf_transfer/rtl_433 pair and runs until either
// exits or stopCh closes.
func (d *decodeSession) runOnce() error {
	hackrfArgv := []string{
		"hackrf_transfer", "-r", "-",
		"-f", fmt.Sprintf("%d", int64(d.frequencyHz)),
		"-s", fmt.Sprintf("%d", d.sampleRate),
	}
	hackrf, err := procsup.SpawnPipe(hackrfArgv)
	if err != nil {
		return err
	}
	defer procsup.SafeTerminate(hackrf, time.Second)

	rtl433Argv := []string{"rtl_433", "-r", "cs8:-", "-F", "json"}
	rtl433Argv = append(rtl433Argv, decodeProfileArgs(d.profile)...)
	rtl433, err := procsup.SpawnPipeWithStdin(rtl433Argv)
	if err != nil {
		return err
	}
	defer procsup.SafeTerminate(rtl433, time.Second)

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() { hackrf.Wait(); stop() }()
	go func() { rtl433.Wait(); stop() }()
	go d.pumpHackrfToQueue(hackrf, done)
	go d.drainQueueToRTL433(rtl433, done)
	go d.readDecodedJSON(rtl433, done)
	go d.readDecoderStderr(rtl433, done)

	select {
	case <-d.stopCh:
		return nil
	case <-done:
		return fmt.Errorf("decode pipeline child exited")
	}
}

func (d *decodeSession) pumpHackrfToQueue(hackrf *procsup.Handle, done chan struct{}) {
	buf := make([]byte, rxChunkBytes)
	var offsetSeconds float64
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := hackrf.Stdout.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			sample := analyze(chunk)
			d.engine.bus.Publish("subghz", bus.Event{Type: bus.EventRXLevel, Payload: map[string]any{"level_score": sample.LevelScore}})
			d.engine.bus.Publish("subghz", bus.Event{Type: bus.EventWaveform, Payload: map[string]any{"envelope": sample.Envelope}})
			d.engine.bus.Publish("subghz", bus.Event{Type: bus.EventSpectrum, Payload: map[string]any{"spectrum": sample.SpectrumDB}})

			for _, b := range d.segmenter.feed(chunk) {
				b.StartSeconds += offsetSeconds
				b.EndSeconds += offsetSeconds
				d.engine.bus.Publish("subghz", bus.Event{Type: bus.EventBurst, Payload: map[string]any{
					"start_seconds":    b.StartSeconds,
					"end_seconds":      b.EndSeconds,
					"duration_seconds": b.DurationSeconds,
					"peak_level":       b.PeakLevel,
					"fingerprint":      b.Fingerprint,
					"modulation_hint":  string(b.Modulation),
					"confidence":       b.ModulationScore,
				}})
			}
			offsetSeconds += float64(n/2) / float64(d.sampleRate)

			d.queue.Push(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (d *decodeSession) drainQueueToRTL433(rtl433 *procsup.Handle, done chan struct{}) {
	defer rtl433.Stdin.Close()

	for {
		select {
		case <-done:
			return
		default:
		}
		chunk, ok := d.queue.PopWithTimeout(200 * time.Millisecond)
		if !ok {
			continue
		}
		if _, err := rtl433.Stdin.Write(chunk); err != nil {
			return
		}
	}
}

func (d *decodeSession) readDecodedJSON(rtl433 *procsup.Handle, done chan struct{}) {
	sc := bufio.NewScanner(rtl433.Stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case <-done:
			return
		default:
		}
		var payload map[string]any
		if err := json.Unmarshal(sc.Bytes(), &payload); err != nil {
			continue
		}
		d.engine.bus.Publish("subghz", bus.Event{Type: bus.EventInfo, Payload: payload})
	}
}

func (d *decodeSession) readDecoderStderr(rtl433 *procsup.Handle, done chan struct{}) {
	sc := bufio.NewScanner(rtl433.Stderr)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case <-done:
			return
		default:
		}
		line := sc.Text()
		if containsAnyKeyword(line, decoderSignalKeywords) {
			d.engine.bus.Publish("subghz", bus.Event{Type: bus.EventInfo, Payload: map[string]any{"decode_raw": line}})
		}
	}
}

func containsAnyKeyword(line string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(line, k) {
			return true
		}
	}
	return false
}

func decodeProfileArgs(profile string) []string {
	if profile != "weather" {
		return nil
	}
	args := make([]string, 0, len(weatherProtocolIDs)*2)
	for _, id := range weatherProtocolIDs {
		args = append(args, "-R", strconv.Itoa(id))
	}
	return args
}
