package subghz

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
)

const fingerprintPoints = 128

// fingerprint produces a stable 16-hex-character identifier for a
// burst's shape: resample its envelope to a fixed point count,
// normalise by its 95th-percentile amplitude so two bursts of the same
// signal at different gains collide, quantize to 4 bits to absorb
// sampling jitter, then hash (spec.md §4.5.4).
func fingerprint(envelope []float64, durationSeconds float64, sampleRate int) string {
	resampled := resampleEnvelope(envelope, fingerprintPoints)
	norm := normalizeBy95th(resampled)
	quantized := quantize4bit(norm)

	h := sha1.New()
	for _, q := range quantized {
		h.Write([]byte{q})
	}
	fmt.Fprintf(h, "|%d|%d", int(durationSeconds*1000), sampleRate)

	return hex.EncodeToString(h.Sum(nil))[:16]
}

func resampleEnvelope(envelope []float64, points int) []float64 {
	out := make([]float64, points)
	if len(envelope) == 0 {
		return out
	}
	bucket := float64(len(envelope)) / float64(points)
	for i := 0; i < points; i++ {
		start := int(float64(i) * bucket)
		end := int(float64(i+1) * bucket)
		if end <= start {
			end = start + 1
		}
		if end > len(envelope) {
			end = len(envelope)
		}
		if start >= end {
			out[i] = out[maxInt(i-1, 0)]
			continue
		}
		sum := 0.0
		for _, v := range envelope[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}

func normalizeBy95th(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	p95 := percentile(sorted, 0.95)
	if p95 <= 0 {
		return values
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = clamp(v/p95, 0, 1)
	}
	return out
}

func quantize4bit(values []float64) []byte {
	out := make([]byte, len(values))
	for i, v := range values {
		out[i] = byte(clamp(v, 0, 1) * 15)
	}
	return out
}
