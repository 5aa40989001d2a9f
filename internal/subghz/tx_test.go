package subghz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/config"
)

func TestClampIntBounds(t *testing.T) {
	if v := clampInt(-5, 0, 47); v != 0 {
		t.Fatalf("expected clamp to floor at 0, got %d", v)
	}
	if v := clampInt(100, 0, 47); v != 47 {
		t.Fatalf("expected clamp to ceiling at 47, got %d", v)
	}
	if v := clampInt(20, 0, 47); v != 20 {
		t.Fatalf("expected clamp to pass through in-range values, got %d", v)
	}
}

func TestExtractTXSegmentCopiesAlignedWindow(t *testing.T) {
	dir := t.TempDir()
	iqPath := filepath.Join(dir, "src.iq")
	data := make([]byte, 2*250000)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(iqPath, data, 0o644); err != nil {
		t.Fatalf("failed to write source iq file: %v", err)
	}

	capture := &Capture{FilePath: iqPath, SampleRate: 250000, DurationSeconds: 1.0}
	segPath, err := extractTXSegment(capture, 0.1, 0.2)
	if err != nil {
		t.Fatalf("extractTXSegment failed: %v", err)
	}
	defer os.Remove(segPath)

	out, err := os.ReadFile(segPath)
	if err != nil {
		t.Fatalf("failed to read segment: %v", err)
	}
	wantLen := int(0.2 * 250000 * 2)
	if len(out)%2 != 0 {
		t.Fatalf("expected an even-byte-aligned segment, got %d bytes", len(out))
	}
	if len(out) < wantLen-2 || len(out) > wantLen+2 {
		t.Fatalf("expected roughly %d bytes, got %d", wantLen, len(out))
	}
}

func TestExtractTXSegmentRejectsEmptyWindow(t *testing.T) {
	dir := t.TempDir()
	iqPath := filepath.Join(dir, "src.iq")
	if err := os.WriteFile(iqPath, make([]byte, 100), 0o644); err != nil {
		t.Fatalf("failed to write source iq file: %v", err)
	}
	capture := &Capture{FilePath: iqPath, SampleRate: 250000}
	if _, err := extractTXSegment(capture, 0.5, 0); err == nil {
		t.Fatalf("expected an error for a zero-width segment window")
	}
}

func TestStartTXRejectsWhenEngineNotIdle(t *testing.T) {
	cfg := &config.SubGHzConfig{CapturesDir: t.TempDir(), TXVGAGainMin: 0, TXVGAGainMax: 47, TXMaxDurationSec: 30}
	e := New(cfg, bus.New(16, nil))
	if err := e.beginTransition(ModeRX); err != nil {
		t.Fatalf("unexpected error priming the engine into rx: %v", err)
	}

	if err := e.StartTX(TXParams{CaptureID: "anything"}); err == nil {
		t.Fatalf("expected StartTX to reject a busy engine")
	}
}

func TestStartTXRejectsWhenToolsMissing(t *testing.T) {
	cfg := &config.SubGHzConfig{CapturesDir: t.TempDir(), TXVGAGainMin: 0, TXVGAGainMax: 47, TXMaxDurationSec: 30}
	e := New(cfg, bus.New(16, nil))

	if err := e.StartTX(TXParams{CaptureID: "anything"}); err == nil {
		t.Fatalf("expected StartTX to fail the tool/device gate on a host without hackrf_transfer")
	}
	if e.Mode() != ModeIdle {
		t.Fatalf("expected a failed gate to leave the engine idle, got %s", e.Mode())
	}
}
