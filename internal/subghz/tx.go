package subghz

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/config"
	"github.com/mitchross/intercept-sub000/internal/interr"
	"github.com/mitchross/intercept-sub000/internal/procsup"
	"github.com/mitchross/intercept-sub000/internal/toolsdetect"
)

// TXParams starts a replay transmit of a stored capture.
type TXParams struct {
	CaptureID       string
	StartSeconds    *float64
	DurationSeconds *float64
	Gain            int
	MaxDurationSec  int
}

type txSession struct {
	engine   *Engine
	handle   *procsup.Handle
	watchdog *time.Timer
	tempFile string
	stopOnce sync.Once
	done     chan struct{}
}

// StartTX runs the five-step safety gate (spec.md §4.5.3) before
// spawning hackrf_transfer in transmit mode. Any failed step aborts
// with no process spawned and no mode change.
func (e *Engine) StartTX(p TXParams) error {
	// Step 1: active mode must be idle. Checked without a transition
	// first so steps 2-5 can fail cheaply before anything is claimed.
	if e.currentMode() != ModeIdle {
		return interr.New(interr.KindDeviceBusy, "subghz engine is not idle")
	}

	// Step 2: hackrf_transfer installed and hackrf_info detects a device.
	capb := toolsdetect.Detect("hackrf_transfer", "")
	if !capb.Available {
		return interr.New(interr.KindToolMissing, "hackrf_transfer not found")
	}
	if present, _ := e.DetectHackRF(); !present {
		return interr.New(interr.KindToolMissing, "hackrf_info did not detect a device")
	}

	// Step 3: capture must exist on disk with a valid sidecar.
	capture, err := e.captures.get(p.CaptureID)
	if err != nil {
		return interr.Wrap(interr.KindValidation, "capture not found", err)
	}
	if _, statErr := os.Stat(capture.FilePath); statErr != nil {
		return interr.New(interr.KindValidation, "capture IQ file missing on disk")
	}

	// Step 4: sidecar frequency must lie within an allowed ISM band.
	bandName, ok := e.cfg.InBand(uint64(capture.FrequencyHz))
	if !ok {
		return interr.New(interr.KindValidation, fmt.Sprintf(
			"frequency %.0fHz is outside every configured TX-allowed band: permitted ranges are %s",
			capture.FrequencyHz, formatAllowedBands(e.cfg.TXAllowedBands)))
	}

	// Step 5: clamp gain and max_duration.
	gain := clampInt(p.Gain, e.cfg.TXVGAGainMin, e.cfg.TXVGAGainMax)
	maxDuration := p.MaxDurationSec
	if maxDuration <= 0 {
		maxDuration = e.cfg.TXMaxDurationSec
	}
	maxDuration = clampInt(maxDuration, 1, e.cfg.TXMaxDurationSec)

	if err := e.beginTransition(ModeTX); err != nil {
		return err
	}

	txFile := capture.FilePath
	tempFile := ""
	if p.StartSeconds != nil || p.DurationSeconds != nil {
		start, duration := 0.0, capture.DurationSeconds
		if p.StartSeconds != nil {
			start = *p.StartSeconds
		}
		if p.DurationSeconds != nil {
			duration = *p.DurationSeconds
		}
		segmentPath, err := extractTXSegment(capture, start, duration)
		if err != nil {
			e.abortTransition()
			return err
		}
		txFile = segmentPath
		tempFile = segmentPath
	}

	argv := []string{
		"hackrf_transfer", "-t", txFile,
		"-f", fmt.Sprintf("%d", int64(capture.FrequencyHz)),
		"-s", fmt.Sprintf("%d", capture.SampleRate),
		"-x", fmt.Sprintf("%d", gain),
	}
	handle, err := procsup.SpawnPipe(argv)
	if err != nil {
		if tempFile != "" {
			os.Remove(tempFile)
		}
		e.abortTransition()
		return err
	}

	tx := &txSession{engine: e, handle: handle, tempFile: tempFile, done: make(chan struct{})}
	tx.watchdog = time.AfterFunc(time.Duration(maxDuration)*time.Second, func() {
		_ = procsup.SafeTerminate(handle, 2*time.Second)
	})
	e.tx = tx

	go tx.waitForCompletion()

	e.finishTransition()
	e.publishStatus("started", map[string]any{"capture_id": p.CaptureID, "band": bandName, "gain": gain, "max_duration_sec": maxDuration})
	return nil
}

func (tx *txSession) waitForCompletion() {
	_ = tx.handle.Wait()
	tx.watchdog.Stop()
	if tx.tempFile != "" {
		os.Remove(tx.tempFile)
	}
	close(tx.done)
	tx.engine.tx = nil
	tx.engine.returnToIdle()
	tx.engine.bus.Publish("subghz", bus.Event{Type: bus.EventTXStatus, Payload: map[string]any{"status": "completed"}})
}

// StopTX terminates an in-progress TX early; completion via the
// watchdog or natural exit is handled by waitForCompletion regardless.
func (e *Engine) StopTX() error {
	tx := e.tx
	if tx == nil {
		return nil
	}
	tx.stopOnce.Do(func() {
		_ = procsup.SafeTerminate(tx.handle, 2*time.Second)
	})
	return nil
}

func formatAllowedBands(bands []config.Band) string {
	if len(bands) == 0 {
		return "(none configured)"
	}
	parts := make([]string, len(bands))
	for i, b := range bands {
		parts[i] = fmt.Sprintf("%s [%d-%dHz]", b.Name, b.MinHz, b.MaxHz)
	}
	return strings.Join(parts, ", ")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// extractTXSegment copies [start, start+duration) of capture's IQ file into
// a new temp file, even-byte aligned (spec.md §4.5.3 "Segment TX").
// The caller is responsible for deleting the returned path on every
// exit path.
func extractTXSegment(capture *Capture, startSeconds, durationSeconds float64) (string, error) {
	bytesPerSecond := float64(capture.SampleRate) * 2
	startByte := alignEven(int64(startSeconds * bytesPerSecond))
	endByte := alignEven(int64((startSeconds + durationSeconds) * bytesPerSecond))
	if endByte <= startByte {
		return "", interr.New(interr.KindValidation, "tx segment window is empty")
	}

	in, err := os.Open(capture.FilePath)
	if err != nil {
		return "", interr.Wrap(interr.KindValidation, "open capture for segment tx", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp("", "subghz-tx-*.iq")
	if err != nil {
		return "", interr.Wrap(interr.KindValidation, "create tx segment file", err)
	}
	defer tmp.Close()

	if _, err := in.Seek(startByte, 0); err != nil {
		os.Remove(tmp.Name())
		return "", interr.Wrap(interr.KindValidation, "seek capture for segment tx", err)
	}
	if _, err := copyN(tmp, in, endByte-startByte); err != nil {
		os.Remove(tmp.Name())
		return "", interr.Wrap(interr.KindValidation, "copy tx segment", err)
	}

	return tmp.Name(), nil
}
