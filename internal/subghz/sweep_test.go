package subghz

import "testing"

func TestParseSweepLineExtractsPoints(t *testing.T) {
	line := "2024-01-01, 12:00:00, 433000000, 434000000, 1000000, 1024, -50.0, -48.5, -60.2"
	points, ok := parseSweepLine(line)
	if !ok {
		t.Fatalf("expected a valid sweep line to parse")
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 dB points, got %d", len(points))
	}
	if points[0].FreqHz != 433000000 {
		t.Fatalf("expected the first point at hz_low, got %f", points[0].FreqHz)
	}
	if points[1].FreqHz != 433000000+1000000 {
		t.Fatalf("expected successive points spaced by bin_hz, got %f", points[1].FreqHz)
	}
	if points[0].DB != -50.0 {
		t.Fatalf("expected the first dB value to be -50.0, got %f", points[0].DB)
	}
}

func TestParseSweepLineRejectsShortLine(t *testing.T) {
	if _, ok := parseSweepLine("a,b,c"); ok {
		t.Fatalf("expected a too-short line to be rejected")
	}
}

func TestParseSweepLineRejectsMalformedNumbers(t *testing.T) {
	line := "2024-01-01,12:00:00,notahz,434000000,1000000,1024,-50.0"
	if _, ok := parseSweepLine(line); ok {
		t.Fatalf("expected a malformed hz_low field to be rejected")
	}
}

func TestParseSweepLineSkipsUnparsableDBFields(t *testing.T) {
	line := "2024-01-01,12:00:00,433000000,434000000,1000000,1024,-50.0,NaNfield,-48.0"
	points, ok := parseSweepLine(line)
	if !ok {
		t.Fatalf("expected the line to still parse with one bad dB field")
	}
	if len(points) != 2 {
		t.Fatalf("expected the unparsable dB field to be skipped, got %d points", len(points))
	}
}
