// Package orchestrator assembles the nine mode controllers, the SubGHz
// engine, and the Recording/Alert/Pattern collaborators into the single
// dispatch surface the MCP tool layer and (eventually) an HTTP layer call
// into, keyed by mode name the way mcp_server.go's tool handlers dispatch
// on a single string parameter rather than one method per tool.
package orchestrator

import (
	"fmt"
	"sort"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/devreg"
	"github.com/mitchross/intercept-sub000/internal/interr"
	"github.com/mitchross/intercept-sub000/internal/modes"
	"github.com/mitchross/intercept-sub000/internal/pattern"
	"github.com/mitchross/intercept-sub000/internal/recording"
	"github.com/mitchross/intercept-sub000/internal/subghz"
)

// modeRunner is the shape *modes.Controller and *modes.AISController both
// already satisfy; Meshtastic and SubGHz have their own Start/Stop shapes
// and are special-cased in Orchestrator's dispatch instead.
type modeRunner interface {
	Start(modes.StartParams) error
	Stop() error
	Status() modes.Status
}

// Orchestrator is the concrete mcpserver.Orchestrator implementation.
type Orchestrator struct {
	Registry *devreg.Registry
	Bus      *bus.Bus

	runners map[string]modeRunner
	mesh    *modes.MeshtasticEngine
	subghz  *subghz.Engine

	recording *recording.Manager
	pattern   *pattern.Detector
}

// New builds an Orchestrator over the already-constructed mode
// controllers and collaborators. mesh and sg may be nil if those
// engines are not wired (e.g. a test harness exercising only digital
// modes).
func New(registry *devreg.Registry, b *bus.Bus, runners map[string]modeRunner, mesh *modes.MeshtasticEngine, sg *subghz.Engine, rec *recording.Manager, pat *pattern.Detector) *Orchestrator {
	return &Orchestrator{
		Registry:  registry,
		Bus:       b,
		runners:   runners,
		mesh:      mesh,
		subghz:    sg,
		recording: rec,
		pattern:   pat,
	}
}

// ListModes names every controller the orchestrator knows about,
// digital modes plus the two special-cased engines.
func (o *Orchestrator) ListModes() []string {
	names := make([]string, 0, len(o.runners)+2)
	for name := range o.runners {
		names = append(names, name)
	}
	if o.mesh != nil {
		names = append(names, "meshtastic")
	}
	if o.subghz != nil {
		names = append(names, "subghz")
	}
	sort.Strings(names)
	return names
}

// StartMode dispatches to the named controller's start path. For
// "subghz" params_json's "operation" key selects RX/Decode/TX/Sweep
// (spec.md §4.5); for "meshtastic" params carries "device_path".
func (o *Orchestrator) StartMode(mode string, params map[string]any) (map[string]any, error) {
	switch mode {
	case "subghz":
		return o.startSubGHz(params)
	case "meshtastic":
		return o.startMeshtastic(params)
	}

	r, ok := o.runners[mode]
	if !ok {
		return nil, interr.New(interr.KindValidation, fmt.Sprintf("unknown mode %q", mode))
	}
	sp := startParamsFromMap(params)
	if err := r.Start(sp); err != nil {
		return nil, err
	}
	return map[string]any{"mode": mode, "status": "started"}, nil
}

// StopMode dispatches to the named controller's stop path.
func (o *Orchestrator) StopMode(mode string) (map[string]any, error) {
	switch mode {
	case "subghz":
		return o.stopSubGHz()
	case "meshtastic":
		if o.mesh == nil {
			return nil, interr.New(interr.KindValidation, "meshtastic is not wired")
		}
		o.mesh.Disconnect()
		return map[string]any{"mode": mode, "status": "stopped"}, nil
	}

	r, ok := o.runners[mode]
	if !ok {
		return nil, interr.New(interr.KindValidation, fmt.Sprintf("unknown mode %q", mode))
	}
	if err := r.Stop(); err != nil {
		return nil, err
	}
	return map[string]any{"mode": mode, "status": "stopped"}, nil
}

// ModeStatus reports the named controller's running state and counters.
func (o *Orchestrator) ModeStatus(mode string) (map[string]any, error) {
	switch mode {
	case "subghz":
		if o.subghz == nil {
			return nil, interr.New(interr.KindValidation, "subghz is not wired")
		}
		return map[string]any{"mode": mode, "sub_mode": string(o.subghz.Mode())}, nil
	case "meshtastic":
		if o.mesh == nil {
			return nil, interr.New(interr.KindValidation, "meshtastic is not wired")
		}
		return map[string]any{"mode": mode, "node_count": len(o.mesh.Nodes())}, nil
	}

	r, ok := o.runners[mode]
	if !ok {
		return nil, interr.New(interr.KindValidation, fmt.Sprintf("unknown mode %q", mode))
	}
	st := r.Status()
	return map[string]any{
		"mode":              mode,
		"running":           st.Running,
		"events_parsed":     st.Counters.EventsParsed,
		"raw_lines":         st.Counters.RawLines,
		"parse_errors":      st.Counters.ParseErrors,
		"last_message_time": st.LastMessageTime,
	}, nil
}

// ListCaptures lists SubGHz RF captures (mode == "") or a digital
// mode's NDJSON recording sessions (spec.md §6.1).
func (o *Orchestrator) ListCaptures(mode string, limit int) ([]map[string]any, error) {
	if mode == "" {
		if o.subghz == nil {
			return nil, interr.New(interr.KindValidation, "subghz is not wired")
		}
		captures, err := o.subghz.ListCaptures()
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(captures) > limit {
			captures = captures[:limit]
		}
		out := make([]map[string]any, 0, len(captures))
		for _, c := range captures {
			out = append(out, captureToMap(c))
		}
		return out, nil
	}

	if o.recording == nil {
		return nil, interr.New(interr.KindValidation, "recording manager is not wired")
	}
	sessions, err := o.recording.List(limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionToMap(s))
	}
	return out, nil
}

// AllPatterns reports the Temporal Pattern Detector's current state
// across every device identifier observed on any mode.
func (o *Orchestrator) AllPatterns() []pattern.Pattern {
	if o.pattern == nil {
		return nil
	}
	return o.pattern.AllPatterns()
}

// startSubGHz dispatches on params["operation"] to one of the engine's
// four mutually exclusive sub-modes (spec.md §4.5).
func (o *Orchestrator) startSubGHz(params map[string]any) (map[string]any, error) {
	if o.subghz == nil {
		return nil, interr.New(interr.KindValidation, "subghz is not wired")
	}
	op, _ := params["operation"].(string)

	switch op {
	case "rx":
		p := subghz.RXParams{
			FrequencyHz: floatField(params, "frequency_hz"),
			SampleRate:  intField(params, "sample_rate"),
			LNAGain:     intField(params, "lna_gain"),
			VGAGain:     intField(params, "vga_gain"),
			Label:       stringField(params, "label"),
		}
		if raw, ok := params["trigger"].(map[string]any); ok {
			p.Trigger = &subghz.TriggerParams{
				PreRollSeconds:  floatField(raw, "pre_roll_seconds"),
				PostRollSeconds: floatField(raw, "post_roll_seconds"),
			}
		}
		if err := o.subghz.StartRX(p); err != nil {
			return nil, err
		}
	case "decode":
		p := subghz.DecodeParams{
			FrequencyHz: floatField(params, "frequency_hz"),
			SampleRate:  intField(params, "sample_rate"),
			Profile:     stringField(params, "profile"),
		}
		if err := o.subghz.StartDecode(p); err != nil {
			return nil, err
		}
	case "tx":
		p := subghz.TXParams{
			CaptureID:      stringField(params, "capture_id"),
			Gain:           intField(params, "gain"),
			MaxDurationSec: intField(params, "max_duration_sec"),
		}
		if v, ok := params["start_seconds"].(float64); ok {
			p.StartSeconds = &v
		}
		if v, ok := params["duration_seconds"].(float64); ok {
			p.DurationSeconds = &v
		}
		if err := o.subghz.StartTX(p); err != nil {
			return nil, err
		}
	case "sweep":
		p := subghz.SweepParams{
			StartHz: uint64(floatField(params, "start_hz")),
			EndHz:   uint64(floatField(params, "end_hz")),
			BinHz:   intField(params, "bin_hz"),
		}
		if err := o.subghz.StartSweep(p); err != nil {
			return nil, err
		}
	default:
		return nil, interr.New(interr.KindValidation, fmt.Sprintf("unknown subghz operation %q", op))
	}

	return map[string]any{"mode": "subghz", "operation": op, "status": "started"}, nil
}

// stopSubGHz infers which sub-mode is active from the engine's current
// mode, since StopMode carries no parameters to name one explicitly.
func (o *Orchestrator) stopSubGHz() (map[string]any, error) {
	if o.subghz == nil {
		return nil, interr.New(interr.KindValidation, "subghz is not wired")
	}

	var err error
	switch o.subghz.Mode() {
	case subghz.ModeRX:
		err = o.subghz.StopRX()
	case subghz.ModeDecode:
		err = o.subghz.StopDecode()
	case subghz.ModeTX:
		err = o.subghz.StopTX()
	case subghz.ModeSweep:
		err = o.subghz.StopSweep()
	default:
		return map[string]any{"mode": "subghz", "status": "idle"}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"mode": "subghz", "status": "stopped"}, nil
}

func (o *Orchestrator) startMeshtastic(params map[string]any) (map[string]any, error) {
	if o.mesh == nil {
		return nil, interr.New(interr.KindValidation, "meshtastic is not wired")
	}
	devicePath, _ := params["device_path"].(string)
	if devicePath == "" {
		return nil, interr.New(interr.KindValidation, "device_path is required")
	}
	if err := o.mesh.Connect(devicePath); err != nil {
		return nil, err
	}
	return map[string]any{"mode": "meshtastic", "status": "started", "device_path": devicePath}, nil
}

func startParamsFromMap(params map[string]any) modes.StartParams {
	sp := modes.StartParams{}
	sp.Device = intField(params, "device")
	sp.Gain = intField(params, "gain")
	sp.PPM = intField(params, "ppm")
	sp.Frequency = floatField(params, "frequency")
	sp.SDRType, _ = params["sdr_type"].(string)
	if raw, ok := params["frequencies"].([]any); ok {
		freqs := make([]float64, 0, len(raw))
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				freqs = append(freqs, f)
			}
		}
		sp.Frequencies = freqs
	}
	return sp
}

func intField(params map[string]any, key string) int {
	if v, ok := params[key].(float64); ok {
		return int(v)
	}
	return 0
}

func floatField(params map[string]any, key string) float64 {
	if v, ok := params[key].(float64); ok {
		return v
	}
	return 0
}

func stringField(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func captureToMap(c *subghz.Capture) map[string]any {
	return map[string]any{
		"id":                   c.ID,
		"frequency_hz":         c.FrequencyHz,
		"sample_rate":          c.SampleRate,
		"started_at":           c.StartedAt,
		"stopped_at":           c.StoppedAt,
		"duration_seconds":     c.DurationSeconds,
		"burst_count":          len(c.Bursts),
		"dominant_fingerprint": c.DominantFingerprint,
		"fingerprint_group":    c.FingerprintGroup,
		"modulation_hint":      string(c.ModulationHint),
		"auto_label":           c.AutoLabel,
		"label":                c.Label,
	}
}

func sessionToMap(s recording.Session) map[string]any {
	return map[string]any{
		"id":          s.ID,
		"mode":        s.Mode,
		"label":       s.Label,
		"started_at":  s.StartedAt,
		"stopped_at":  s.StoppedAt,
		"event_count": s.EventCount,
		"size_bytes":  s.SizeBytes,
		"compressed":  s.Compressed,
	}
}
