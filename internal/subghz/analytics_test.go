package subghz

import "testing"

func TestIQToMagnitudeDecodesComplexInt8(t *testing.T) {
	chunk := []byte{3, 4, 0, 0, byte(int8(-3)), byte(int8(-4))}
	magnitude, samples := iqToMagnitude(chunk)
	if len(magnitude) != 3 || len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d magnitudes and %d samples", len(magnitude), len(samples))
	}
	if magnitude[0] != 5 {
		t.Fatalf("expected hypot(3,4)=5, got %f", magnitude[0])
	}
	if magnitude[1] != 0 {
		t.Fatalf("expected 0 magnitude for (0,0), got %f", magnitude[1])
	}
	if magnitude[2] != 5 {
		t.Fatalf("expected hypot(-3,-4)=5, got %f", magnitude[2])
	}
	if real(samples[0]) != 3 || imag(samples[0]) != 4 {
		t.Fatalf("expected sample (3,4), got %v", samples[0])
	}
}

func TestLevelScoreZeroForEmptyChunk(t *testing.T) {
	if s := levelScore(nil); s != 0 {
		t.Fatalf("expected 0 for empty magnitude, got %f", s)
	}
}

func TestLevelScoreZeroForFlatSignal(t *testing.T) {
	magnitude := make([]float64, 100)
	for i := range magnitude {
		magnitude[i] = 5
	}
	if s := levelScore(magnitude); s != 0 {
		t.Fatalf("expected 0 when p99-p30 spread is zero, got %f", s)
	}
}

func TestLevelScoreHighWhenMostSamplesAreLoud(t *testing.T) {
	magnitude := make([]float64, 100)
	for i := range magnitude {
		if i < 40 {
			magnitude[i] = 0
		} else {
			magnitude[i] = 10
		}
	}
	if s := levelScore(magnitude); s < 80 {
		t.Fatalf("expected a high level score when most samples are loud, got %f", s)
	}
}

func TestDecimateEnvelopeProducesFixedLength(t *testing.T) {
	magnitude := make([]float64, 1000)
	for i := range magnitude {
		magnitude[i] = float64(i)
	}
	out := decimateEnvelope(magnitude)
	if len(out) != envelopePoints {
		t.Fatalf("expected %d points, got %d", envelopePoints, len(out))
	}
}

func TestDecimateEnvelopeHandlesEmptyInput(t *testing.T) {
	out := decimateEnvelope(nil)
	if len(out) != envelopePoints {
		t.Fatalf("expected %d points, got %d", envelopePoints, len(out))
	}
	for _, v := range out {
		if v != 0 {
			t.Fatalf("expected all-zero envelope for empty input, got %v", v)
		}
	}
}

func TestSpectrumProducesFixedBinCount(t *testing.T) {
	samples := make([]complex128, 512)
	for i := range samples {
		samples[i] = complex(float64(i%7), 0)
	}
	out := spectrum(samples)
	if len(out) != spectrumBins {
		t.Fatalf("expected %d bins, got %d", spectrumBins, len(out))
	}
	for _, v := range out {
		if v < 0 || v > 255 {
			t.Fatalf("spectrum value out of 0..255 range: %f", v)
		}
	}
}

func TestSpectrumHandlesTinyInput(t *testing.T) {
	out := spectrum([]complex128{1})
	if len(out) != spectrumBins {
		t.Fatalf("expected %d bins even for degenerate input, got %d", spectrumBins, len(out))
	}
}

func TestClampBounds(t *testing.T) {
	if v := clamp(-5, 0, 100); v != 0 {
		t.Fatalf("expected clamp to floor at 0, got %f", v)
	}
	if v := clamp(150, 0, 100); v != 100 {
		t.Fatalf("expected clamp to ceiling at 100, got %f", v)
	}
	if v := clamp(50, 0, 100); v != 50 {
		t.Fatalf("expected clamp to pass through in-range values, got %f", v)
	}
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 256: 256, 257: 512}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Fatalf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestAnalyzeProducesConsistentlySizedSample(t *testing.T) {
	chunk := make([]byte, 2*512)
	for i := range chunk {
		chunk[i] = byte(i % 17)
	}
	sample := analyze(chunk)
	if len(sample.Envelope) != envelopePoints {
		t.Fatalf("expected %d envelope points, got %d", envelopePoints, len(sample.Envelope))
	}
	if len(sample.SpectrumDB) != spectrumBins {
		t.Fatalf("expected %d spectrum bins, got %d", spectrumBins, len(sample.SpectrumDB))
	}
}
