package subghz

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mitchross/intercept-sub000/internal/interr"
)

// captureLibrary is the on-disk store of *.iq + *.json sidecar pairs
// (spec.md §4.5.5). Grounded on the store package's "load on demand,
// cache nothing authoritative in memory" discipline — the filesystem
// is the source of truth, a mutex only serialises concurrent writers.
type captureLibrary struct {
	dir string
	mu  sync.Mutex
}

func newCaptureLibrary(dir string) *captureLibrary {
	return &captureLibrary{dir: dir}
}

func newCaptureID() string {
	return uuid.New().String()
}

func captureIDFromPath(iqPath string) string {
	return strings.TrimSuffix(filepath.Base(iqPath), ".iq")
}

func (l *captureLibrary) sidecarPath(id string) string {
	return filepath.Join(l.dir, id+".json")
}

func (l *captureLibrary) iqPath(id string) string {
	return filepath.Join(l.dir, id+".iq")
}

func (l *captureLibrary) save(c *Capture) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return interr.Wrap(interr.KindValidation, "marshal capture sidecar", err)
	}
	return os.WriteFile(l.sidecarPath(c.ID), data, 0o644)
}

// list enumerates every sidecar, deriving dominant_fingerprint where
// missing and tagging fingerprint_group/group_size across the whole
// set (spec.md §4.5.5).
func (l *captureLibrary) list() ([]*Capture, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, interr.Wrap(interr.KindValidation, "read captures dir", err)
	}

	var caps []*Capture
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		c, err := l.get(id)
		if err != nil {
			continue
		}
		caps = append(caps, c)
	}

	groupSizes := make(map[string]int)
	for _, c := range caps {
		if c.DominantFingerprint == "" {
			c.DominantFingerprint = dominantFingerprint(c.Bursts)
		}
		if c.DominantFingerprint != "" {
			groupSizes[fingerprintGroup(c.DominantFingerprint)]++
		}
	}
	for _, c := range caps {
		if c.DominantFingerprint == "" {
			continue
		}
		c.FingerprintGroup = fingerprintGroup(c.DominantFingerprint)
		c.GroupSize = groupSizes[c.FingerprintGroup]
	}

	sort.Slice(caps, func(i, j int) bool { return caps[i].StartedAt.After(caps[j].StartedAt) })
	return caps, nil
}

func (l *captureLibrary) get(id string) (*Capture, error) {
	data, err := os.ReadFile(l.sidecarPath(id))
	if err != nil {
		return nil, interr.Wrap(interr.KindValidation, "read capture sidecar", err)
	}
	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, interr.Wrap(interr.KindValidation, "parse capture sidecar", err)
	}
	if c.ID == "" {
		c.ID = id
	}
	if c.FilePath == "" {
		c.FilePath = l.iqPath(id)
	}
	return &c, nil
}

func (l *captureLibrary) delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = os.Remove(l.iqPath(id))
	if err := os.Remove(l.sidecarPath(id)); err != nil && !os.IsNotExist(err) {
		return interr.Wrap(interr.KindValidation, "delete capture sidecar", err)
	}
	return nil
}

func (l *captureLibrary) setLabel(id, label string) (*Capture, error) {
	c, err := l.get(id)
	if err != nil {
		return nil, err
	}
	c.Label = label
	if err := l.save(c); err != nil {
		return nil, err
	}
	return c, nil
}

func fingerprintGroup(fp string) string {
	if len(fp) < 6 {
		return "SIG-" + strings.ToUpper(fp)
	}
	return "SIG-" + strings.ToUpper(fp[:6])
}

func dominantFingerprint(bursts []Burst) string {
	counts := make(map[string]int)
	for _, b := range bursts {
		if b.Fingerprint != "" {
			counts[b.Fingerprint]++
		}
	}
	best, bestCount := "", 0
	for fp, n := range counts {
		if n > bestCount {
			best, bestCount = fp, n
		}
	}
	return best
}

func dominantModulation(bursts []Burst) ModulationHint {
	counts := make(map[ModulationHint]int)
	for _, b := range bursts {
		counts[b.Modulation]++
	}
	best, bestCount := ModulationUnknown, 0
	for m, n := range counts {
		if n > bestCount {
			best, bestCount = m, n
		}
	}
	return best
}

// applyDerivedFields fills in DominantFingerprint/ModulationHint/AutoLabel
// on a freshly finalised capture.
func applyDerivedFields(c *Capture) {
	c.DominantFingerprint = dominantFingerprint(c.Bursts)
	c.ModulationHint = dominantModulation(c.Bursts)
	c.AutoLabel = fmt.Sprintf("%.3fMHz, %d bursts, %s", c.FrequencyHz/1e6, len(c.Bursts), c.ModulationHint)
}

// trimIQFile produces a new capture from [start, start+duration) of an
// existing one's IQ file (spec.md §4.5.5 "Trim"). Byte offsets are
// aligned down to an even boundary (two bytes per complex sample).
func trimIQFile(src *Capture, startSeconds, durationSeconds float64) (*Capture, error) {
	if startSeconds < 0 {
		startSeconds = 0
	}
	if startSeconds > src.DurationSeconds {
		startSeconds = src.DurationSeconds
	}
	endSeconds := startSeconds + durationSeconds
	if endSeconds > src.DurationSeconds {
		endSeconds = src.DurationSeconds
	}

	bytesPerSecond := float64(src.SampleRate) * 2
	startByte := alignEven(int64(startSeconds * bytesPerSecond))
	endByte := alignEven(int64(endSeconds * bytesPerSecond))
	if endByte <= startByte {
		return nil, interr.New(interr.KindValidation, "trim window is empty")
	}

	in, err := os.Open(src.FilePath)
	if err != nil {
		return nil, interr.Wrap(interr.KindValidation, "open source capture", err)
	}
	defer in.Close()

	id := newCaptureID()
	outDir := filepath.Dir(src.FilePath)
	outPath := filepath.Join(outDir, id+".iq")
	out, err := os.Create(outPath)
	if err != nil {
		return nil, interr.Wrap(interr.KindValidation, "create trimmed capture", err)
	}
	defer out.Close()

	if _, err := in.Seek(startByte, 0); err != nil {
		return nil, interr.Wrap(interr.KindValidation, "seek source capture", err)
	}
	if _, err := copyN(out, in, endByte-startByte); err != nil {
		return nil, interr.Wrap(interr.KindValidation, "copy trimmed range", err)
	}

	var bursts []Burst
	for _, b := range src.Bursts {
		if b.EndSeconds < startSeconds || b.StartSeconds > endSeconds {
			continue
		}
		adjusted := b
		adjusted.StartSeconds -= startSeconds
		adjusted.EndSeconds -= startSeconds
		if adjusted.StartSeconds < 0 {
			adjusted.StartSeconds = 0
		}
		bursts = append(bursts, adjusted)
	}

	label := src.Label
	if label != "" {
		label += " (Trim)"
	}

	trimmed := &Capture{
		ID:              id,
		FilePath:        outPath,
		FrequencyHz:     src.FrequencyHz,
		SampleRate:      src.SampleRate,
		StartedAt:       src.StartedAt.Add(time.Duration(startSeconds * float64(time.Second))),
		StoppedAt:       timePtr(src.StartedAt.Add(time.Duration(endSeconds * float64(time.Second)))),
		DurationSeconds: endSeconds - startSeconds,
		Bursts:          bursts,
		Label:           label,
	}
	applyDerivedFields(trimmed)
	if label != "" {
		trimmed.AutoLabel = trimmed.Label
	}
	return trimmed, nil
}

// autoTrimWindow picks the strongest burst (highest peak level) and
// pads it by 60ms on either side, used when Trim is called with
// neither start nor duration specified.
func autoTrimWindow(bursts []Burst) (start, duration float64) {
	if len(bursts) == 0 {
		return 0, 0
	}
	best := bursts[0]
	for _, b := range bursts[1:] {
		if b.PeakLevel > best.PeakLevel {
			best = b
		}
	}
	const pad = 0.060
	start = best.StartSeconds - pad
	if start < 0 {
		start = 0
	}
	duration = (best.EndSeconds + pad) - start
	return start, duration
}

func alignEven(b int64) int64 {
	if b%2 != 0 {
		b--
	}
	if b < 0 {
		b = 0
	}
	return b
}

func timePtr(t time.Time) *time.Time { return &t }

// ListCaptures enumerates the capture library (spec.md §6.1 GET
// /subghz/captures).
func (e *Engine) ListCaptures() ([]*Capture, error) { return e.captures.list() }

// GetCapture fetches one capture's sidecar by id.
func (e *Engine) GetCapture(id string) (*Capture, error) { return e.captures.get(id) }

// DeleteCapture removes a capture's IQ file and sidecar.
func (e *Engine) DeleteCapture(id string) error { return e.captures.delete(id) }

// SetCaptureLabel applies a manual label, which Trim prefers over any
// auto-composed label on future derived captures.
func (e *Engine) SetCaptureLabel(id, label string) (*Capture, error) {
	return e.captures.setLabel(id, label)
}

// CaptureIQPath returns the on-disk IQ file path for streaming downloads.
func (e *Engine) CaptureIQPath(id string) string { return e.captures.iqPath(id) }

// TrimCapture derives a new capture from a time window of an existing
// one. If both startSeconds and durationSeconds are zero, the
// strongest burst's window (±60ms padding) is used instead (spec.md
// §4.5.5 "If neither start nor duration is given").
func (e *Engine) TrimCapture(id string, startSeconds, durationSeconds float64, label string) (*Capture, error) {
	src, err := e.captures.get(id)
	if err != nil {
		return nil, err
	}

	if startSeconds == 0 && durationSeconds == 0 {
		startSeconds, durationSeconds = autoTrimWindow(src.Bursts)
		if durationSeconds <= 0 {
			return nil, interr.New(interr.KindValidation, "capture has no bursts to auto-select a trim window from")
		}
	}

	trimmed, err := trimIQFile(src, startSeconds, durationSeconds)
	if err != nil {
		return nil, err
	}
	if label != "" {
		trimmed.Label = label
		trimmed.AutoLabel = label
	}
	if err := e.captures.save(trimmed); err != nil {
		return nil, err
	}
	return trimmed, nil
}

func copyN(dst *os.File, src *os.File, n int64) (int64, error) {
	buf := make([]byte, 256*1024)
	var written int64
	for written < n {
		toRead := int64(len(buf))
		if remaining := n - written; remaining < toRead {
			toRead = remaining
		}
		nr, err := src.Read(buf[:toRead])
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
