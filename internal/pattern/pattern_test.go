package pattern

import (
	"testing"
	"time"
)

func TestObserveExtractsCanonicalField(t *testing.T) {
	d := New(10)
	base := time.Now()
	d.Observe("ais", map[string]any{"mmsi": "123456789"}, base)
	d.Observe("ais", map[string]any{"mmsi": "123456789"}, base.Add(time.Second))

	patterns := d.AllPatterns()
	if len(patterns) != 1 {
		t.Fatalf("expected 1 tracked device, got %d", len(patterns))
	}
	if patterns[0].DeviceID != "123456789" {
		t.Fatalf("expected device_id 123456789, got %s", patterns[0].DeviceID)
	}
	if patterns[0].Sightings != 2 {
		t.Fatalf("expected 2 sightings, got %d", patterns[0].Sightings)
	}
}

func TestObserveExtractsNestedField(t *testing.T) {
	d := New(10)
	d.Observe("acars", map[string]any{"aircraft": map[string]any{"icao": "A12345"}}, time.Now())

	patterns := d.AllPatterns()
	if len(patterns) != 1 || patterns[0].DeviceID != "A12345" {
		t.Fatalf("expected nested icao extraction, got %v", patterns)
	}
}

func TestObserveIgnoresPayloadWithoutIdentifier(t *testing.T) {
	d := New(10)
	d.Observe("pocsag", map[string]any{"text": "hello world"}, time.Now())
	if len(d.AllPatterns()) != 0 {
		t.Fatalf("expected no tracked device without an identifier field")
	}
}

func TestPeriodicityConfidenceHigherForRegularIntervals(t *testing.T) {
	d := New(10)
	base := time.Now()
	for i := 0; i < 10; i++ {
		d.Observe("dsc", map[string]any{"mmsi": "regular"}, base.Add(time.Duration(i)*10*time.Second))
	}

	jittery := New(10)
	jbase := time.Now()
	offsets := []int{0, 3, 25, 31, 62, 66, 100, 108, 145, 150}
	for _, off := range offsets {
		jittery.Observe("dsc", map[string]any{"mmsi": "jittery"}, jbase.Add(time.Duration(off)*time.Second))
	}

	regular := d.AllPatterns()[0].Confidence
	irregular := jittery.AllPatterns()[0].Confidence
	if regular <= irregular {
		t.Fatalf("expected regular intervals to score higher confidence: regular=%v irregular=%v", regular, irregular)
	}
}

func TestTooFewSamplesYieldsZeroConfidence(t *testing.T) {
	d := New(10)
	d.Observe("dsc", map[string]any{"mmsi": "new"}, time.Now())
	d.Observe("dsc", map[string]any{"mmsi": "new"}, time.Now().Add(time.Second))

	patterns := d.AllPatterns()
	if patterns[0].Confidence != 0 {
		t.Fatalf("expected 0 confidence with too few samples, got %v", patterns[0].Confidence)
	}
}
