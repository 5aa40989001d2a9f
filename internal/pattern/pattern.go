// Package pattern tracks, per device identifier, how regularly a device
// is heard across any mode, scoring periodicity from the mean and
// standard deviation of inter-arrival gaps (spec.md §4.9). It is a bus
// sink: every published event that carries a recognizable identifier
// field feeds the detector.
package pattern

import (
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultMaxDevices  = 4096
	ringCapacity       = 64
	minSamplesForScore = 3
)

// canonicalFields lists, in priority order, the top-level keys an event
// payload may carry its device identity under.
var canonicalFields = []string{
	"device_id", "id", "mac", "address", "bssid", "icao", "callsign", "mmsi", "uuid", "hash",
}

// nestedUnder lists the one level of nesting a payload may carry its
// identity fields under.
var nestedUnder = []string{"target", "device", "source", "aircraft", "vessel"}

// Detector maintains a bounded ring of sighting timestamps per device
// identifier and reports a periodicity confidence for each.
type Detector struct {
	mu      sync.Mutex
	devices *lru.Cache // device_id -> *deviceState
}

type deviceState struct {
	mode     string
	times    []time.Time // bounded ring, oldest first
	lastSeen time.Time
}

// New builds a Detector retaining state for up to maxDevices distinct
// identifiers, evicting least-recently-used entries beyond that bound.
// A non-positive maxDevices falls back to 4096.
func New(maxDevices int) *Detector {
	if maxDevices <= 0 {
		maxDevices = defaultMaxDevices
	}
	cache, err := lru.New(maxDevices)
	if err != nil {
		// Only returns an error for a non-positive size, already guarded above.
		panic(err)
	}
	return &Detector{devices: cache}
}

// Observe extracts a device identifier from payload (per canonicalFields
// and one level of nesting under nestedUnder) and, if found, records a
// sighting for mode at the given time.
func (d *Detector) Observe(mode string, payload map[string]any, seenAt time.Time) {
	id, ok := extractDeviceID(payload)
	if !ok {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var st *deviceState
	if v, ok := d.devices.Get(id); ok {
		st = v.(*deviceState)
	} else {
		st = &deviceState{}
	}
	st.mode = mode
	st.lastSeen = seenAt
	st.times = append(st.times, seenAt)
	if len(st.times) > ringCapacity {
		st.times = st.times[len(st.times)-ringCapacity:]
	}
	d.devices.Add(id, st)
}

// Pattern is one row of get_all_patterns() output (spec.md §4.9).
type Pattern struct {
	DeviceID   string    `json:"device_id"`
	Mode       string    `json:"mode"`
	LastSeen   time.Time `json:"last_seen"`
	Confidence float64   `json:"confidence"`
	Sightings  int       `json:"sightings"`
}

// AllPatterns returns the current periodicity pattern for every tracked
// device identifier.
func (d *Detector) AllPatterns() []Pattern {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Pattern, 0, d.devices.Len())
	for _, key := range d.devices.Keys() {
		v, ok := d.devices.Peek(key)
		if !ok {
			continue
		}
		st := v.(*deviceState)
		out = append(out, Pattern{
			DeviceID:   key.(string),
			Mode:       st.mode,
			LastSeen:   st.lastSeen,
			Confidence: periodicityConfidence(st.times),
			Sightings:  len(st.times),
		})
	}
	return out
}

// periodicityConfidence scores how regular a sequence of sighting
// timestamps is: a higher ratio of mean inter-arrival gap to its
// standard deviation yields a higher confidence, clamped to [0, 1].
// Fewer than minSamplesForScore gaps yields 0 (not enough data).
func periodicityConfidence(times []time.Time) float64 {
	if len(times) < minSamplesForScore+1 {
		return 0
	}
	gaps := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps = append(gaps, times[i].Sub(times[i-1]).Seconds())
	}

	mean := stat.Mean(gaps, nil)
	if mean <= 0 {
		return 0
	}
	std := stat.StdDev(gaps, nil)
	if std == 0 {
		return 1
	}

	ratio := mean / std
	confidence := 1 - 1/(1+ratio)
	if math.IsNaN(confidence) || confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func extractDeviceID(payload map[string]any) (string, bool) {
	if id, ok := lookupCanonical(payload); ok {
		return id, true
	}
	for _, wrapper := range nestedUnder {
		inner, ok := payload[wrapper].(map[string]any)
		if !ok {
			continue
		}
		if id, ok := lookupCanonical(inner); ok {
			return id, true
		}
	}
	return "", false
}

func lookupCanonical(m map[string]any) (string, bool) {
	for _, field := range canonicalFields {
		v, ok := m[field]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s, true
			}
		}
	}
	return "", false
}
