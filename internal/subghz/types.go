// Package subghz implements the SubGHz transceiver engine: mutually
// exclusive RX/Decode/TX/Sweep sub-modes over a HackRF, with live
// envelope/spectrum analytics, burst segmentation, fingerprinting,
// modulation classification, and a capture library (spec.md §4.5).
// Grounded on decoder_spawner.go's spawn/reader-goroutine shape and
// spectrum.go's subscriber/EMA-smoothing pattern, generalised from a
// multicast network feed to a HackRF IQ byte stream.
package subghz

import "time"

// Mode is one of the engine's mutually exclusive operating states.
type Mode string

const (
	ModeIdle   Mode = "idle"
	ModeRX     Mode = "rx"
	ModeDecode Mode = "decode"
	ModeTX     Mode = "tx"
	ModeSweep  Mode = "sweep"
)

// ModulationHint is the classifier's best guess at the burst's
// modulation family.
type ModulationHint string

const (
	ModulationOOK     ModulationHint = "OOK/ASK"
	ModulationFSK     ModulationHint = "FSK/GFSK"
	ModulationPWM     ModulationHint = "PWM/PPM"
	ModulationUnknown ModulationHint = "unknown"
)

// Burst is one segmented signal event within an RX or Decode capture.
type Burst struct {
	StartSeconds    float64        `json:"start_seconds"`
	EndSeconds      float64        `json:"end_seconds"`
	DurationSeconds float64        `json:"duration_seconds"`
	PeakLevel       float64        `json:"peak_level"`
	Fingerprint     string         `json:"fingerprint"`
	Modulation      ModulationHint `json:"modulation_hint"`
	ModulationScore float64        `json:"modulation_confidence"`
}

// Capture is the on-disk sidecar metadata for one RX/Decode recording
// (spec.md §3.4, §4.5.5).
type Capture struct {
	ID                  string         `json:"id"`
	FilePath            string         `json:"file_path"`
	FrequencyHz         float64        `json:"frequency_hz"`
	SampleRate          int            `json:"sample_rate"`
	StartedAt           time.Time      `json:"started_at"`
	StoppedAt           *time.Time     `json:"stopped_at,omitempty"`
	DurationSeconds     float64        `json:"duration_seconds"`
	Bursts              []Burst        `json:"bursts"`
	DominantFingerprint string         `json:"dominant_fingerprint,omitempty"`
	FingerprintGroup    string         `json:"fingerprint_group,omitempty"`
	GroupSize           int            `json:"fingerprint_group_size,omitempty"`
	ModulationHint      ModulationHint `json:"modulation_hint,omitempty"`
	ProtocolHint        string         `json:"protocol_hint,omitempty"`
	AutoLabel           string         `json:"auto_label,omitempty"`
	Label               string         `json:"label,omitempty"`
}

// AnalyticsSample is one chunk's worth of live RX/Decode telemetry,
// published on the bus as rx_waveform/rx_level/spectrum events.
type AnalyticsSample struct {
	LevelScore float64   `json:"level_score"`
	Envelope   []float64 `json:"envelope"`
	SpectrumDB []float64 `json:"spectrum"`
}
