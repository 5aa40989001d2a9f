package subghz

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	envelopePoints = 256
	spectrumBins   = 256
	spectrumMinDB  = -60.0
	spectrumMaxDB  = 0.0
)

// iqToMagnitude decodes complex-int8 interleaved samples (I, Q each a
// signed byte, two bytes per complex sample) into per-sample magnitude
// and the raw complex values (for FFT and modulation-feature use).
func iqToMagnitude(chunk []byte) (magnitude []float64, samples []complex128) {
	n := len(chunk) / 2
	magnitude = make([]float64, n)
	samples = make([]complex128, n)
	for i := 0; i < n; i++ {
		ii := float64(int8(chunk[2*i]))
		qq := float64(int8(chunk[2*i+1]))
		samples[i] = complex(ii, qq)
		magnitude[i] = math.Hypot(ii, qq)
	}
	return magnitude, samples
}

// levelScore computes a gain-invariant 0..100 signal-presence score
// from percentiles of chunk magnitude: p30 noise floor, p90 signal,
// p99 peak (spec.md §4.5.1). Normalising by the noise-to-peak spread
// means a "signal present" reading does not depend on absolute RF gain.
func levelScore(magnitude []float64) float64 {
	if len(magnitude) == 0 {
		return 0
	}
	sorted := append([]float64(nil), magnitude...)
	sort.Float64s(sorted)

	p30 := percentile(sorted, 0.30)
	p90 := percentile(sorted, 0.90)
	p99 := percentile(sorted, 0.99)

	spread := p99 - p30
	if spread <= 0 {
		return 0
	}
	score := 100 * (p90 - p30) / spread
	return clamp(score, 0, 100)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// decimateEnvelope resamples magnitude down to envelopePoints values
// for UI display, averaging each bucket.
func decimateEnvelope(magnitude []float64) []float64 {
	out := make([]float64, envelopePoints)
	if len(magnitude) == 0 {
		return out
	}
	bucket := float64(len(magnitude)) / float64(envelopePoints)
	for i := 0; i < envelopePoints; i++ {
		start := int(float64(i) * bucket)
		end := int(float64(i+1) * bucket)
		if end <= start {
			end = start + 1
		}
		if end > len(magnitude) {
			end = len(magnitude)
		}
		if start >= end {
			out[i] = out[maxInt(i-1, 0)]
			continue
		}
		sum := 0.0
		for _, v := range magnitude[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// spectrum computes a windowed-FFT power spectrum of samples, mapped
// from spectrumMinDB..spectrumMaxDB to 0..255 and decimated/padded to
// spectrumBins bins.
func spectrum(samples []complex128) []float64 {
	n := nextPow2(len(samples))
	if n < 2 {
		return make([]float64, spectrumBins)
	}

	windowed := make([]complex128, n)
	for i := 0; i < len(samples) && i < n; i++ {
		w := hann(i, n)
		windowed[i] = samples[i] * complex(w, 0)
	}

	fft := fourier.NewCmplxFFT(n)
	coeffs := fft.Coefficients(nil, windowed)

	power := make([]float64, n)
	for i, c := range coeffs {
		mag := math.Hypot(real(c), imag(c))
		power[i] = 20 * math.Log10(mag+1e-9)
	}

	out := make([]float64, spectrumBins)
	bucket := float64(n) / float64(spectrumBins)
	for i := 0; i < spectrumBins; i++ {
		start := int(float64(i) * bucket)
		end := int(float64(i+1) * bucket)
		if end <= start {
			end = start + 1
		}
		if end > n {
			end = n
		}
		if start >= end {
			out[i] = out[maxInt(i-1, 0)]
			continue
		}
		maxDB := spectrumMinDB
		for _, db := range power[start:end] {
			if db > maxDB {
				maxDB = db
			}
		}
		normalised := (maxDB - spectrumMinDB) / (spectrumMaxDB - spectrumMinDB)
		out[i] = clamp(normalised, 0, 1) * 255
	}
	return out
}

func hann(i, n int) float64 {
	return 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// analyze runs the shared per-chunk analytics the RX and Decode readers
// both emit (spec.md §4.5.1, §4.5.2).
func analyze(chunk []byte) AnalyticsSample {
	magnitude, samples := iqToMagnitude(chunk)
	return AnalyticsSample{
		LevelScore: levelScore(magnitude),
		Envelope:   decimateEnvelope(magnitude),
		SpectrumDB: spectrum(samples),
	}
}
