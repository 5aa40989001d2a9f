package subghz

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCaptureIDFromPathStripsExtension(t *testing.T) {
	if id := captureIDFromPath("/var/lib/intercept/captures/abc-123.iq"); id != "abc-123" {
		t.Fatalf("expected abc-123, got %q", id)
	}
}

func TestFingerprintGroupTakesFirstSixHexChars(t *testing.T) {
	if g := fingerprintGroup("deadbeef1234"); g != "SIG-DEADBE" {
		t.Fatalf("expected SIG-DEADBE, got %q", g)
	}
}

func TestFingerprintGroupHandlesShortFingerprint(t *testing.T) {
	if g := fingerprintGroup("ab"); g != "SIG-AB" {
		t.Fatalf("expected the whole short fingerprint prefixed and upper-cased, got %q", g)
	}
}

func TestDominantFingerprintPicksMostCommon(t *testing.T) {
	bursts := []Burst{
		{Fingerprint: "aaa"},
		{Fingerprint: "bbb"},
		{Fingerprint: "aaa"},
	}
	if fp := dominantFingerprint(bursts); fp != "aaa" {
		t.Fatalf("expected the most frequent fingerprint aaa, got %q", fp)
	}
}

func TestDominantFingerprintEmptyForNoBursts(t *testing.T) {
	if fp := dominantFingerprint(nil); fp != "" {
		t.Fatalf("expected empty fingerprint for no bursts, got %q", fp)
	}
}

func TestDominantModulationPicksMostCommon(t *testing.T) {
	bursts := []Burst{
		{Modulation: ModulationOOK},
		{Modulation: ModulationFSK},
		{Modulation: ModulationOOK},
	}
	if m := dominantModulation(bursts); m != ModulationOOK {
		t.Fatalf("expected OOK to be the dominant modulation, got %s", m)
	}
}

func TestDominantModulationUnknownForNoBursts(t *testing.T) {
	if m := dominantModulation(nil); m != ModulationUnknown {
		t.Fatalf("expected unknown modulation for no bursts, got %s", m)
	}
}

func TestApplyDerivedFieldsComposesAutoLabel(t *testing.T) {
	c := &Capture{
		FrequencyHz: 433_920_000,
		Bursts: []Burst{
			{Fingerprint: "aaa", Modulation: ModulationOOK},
			{Fingerprint: "aaa", Modulation: ModulationOOK},
		},
	}
	applyDerivedFields(c)
	if c.DominantFingerprint != "aaa" {
		t.Fatalf("expected dominant fingerprint aaa, got %q", c.DominantFingerprint)
	}
	if c.ModulationHint != ModulationOOK {
		t.Fatalf("expected dominant modulation OOK, got %s", c.ModulationHint)
	}
	if c.AutoLabel == "" {
		t.Fatalf("expected a composed auto label")
	}
}

func TestAlignEvenRoundsDownToEvenBoundary(t *testing.T) {
	cases := map[int64]int64{0: 0, 1: 0, 2: 2, 3: 2, -1: 0}
	for in, want := range cases {
		if got := alignEven(in); got != want {
			t.Fatalf("alignEven(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestAutoTrimWindowPadsStrongestBurst(t *testing.T) {
	bursts := []Burst{
		{StartSeconds: 1.0, EndSeconds: 1.1, PeakLevel: 5},
		{StartSeconds: 2.0, EndSeconds: 2.2, PeakLevel: 50},
		{StartSeconds: 3.0, EndSeconds: 3.1, PeakLevel: 10},
	}
	start, duration := autoTrimWindow(bursts)
	if start <= 1.9 || start >= 2.0 {
		t.Fatalf("expected start padded 60ms before the strongest burst at 2.0, got %f", start)
	}
	wantEnd := 2.2 + 0.060
	if got := start + duration; got < wantEnd-1e-9 || got > wantEnd+1e-9 {
		t.Fatalf("expected the window to end at %f, got %f", wantEnd, got)
	}
}

func TestAutoTrimWindowEmptyForNoBursts(t *testing.T) {
	start, duration := autoTrimWindow(nil)
	if start != 0 || duration != 0 {
		t.Fatalf("expected (0, 0) for no bursts, got (%f, %f)", start, duration)
	}
}

func TestCaptureLibrarySaveGetListRoundTrip(t *testing.T) {
	lib := newCaptureLibrary(t.TempDir())
	c := &Capture{
		ID:          newCaptureID(),
		FrequencyHz: 433_920_000,
		SampleRate:  250000,
		StartedAt:   time.Now(),
		Bursts:      []Burst{{Fingerprint: "aaa", Modulation: ModulationOOK}},
	}
	applyDerivedFields(c)
	if err := lib.save(c); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := lib.get(c.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != c.ID || got.FrequencyHz != c.FrequencyHz {
		t.Fatalf("round-tripped capture does not match: %+v", got)
	}

	all, err := lib.list()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one capture in the library, got %d", len(all))
	}
	if all[0].FingerprintGroup == "" {
		t.Fatalf("expected list to derive a fingerprint group")
	}
}

func TestCaptureLibraryListEmptyDirReturnsNil(t *testing.T) {
	lib := newCaptureLibrary(t.TempDir())
	all, err := lib.list()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no captures, got %d", len(all))
	}
}

func TestCaptureLibraryDeleteRemovesSidecar(t *testing.T) {
	lib := newCaptureLibrary(t.TempDir())
	c := &Capture{ID: newCaptureID(), StartedAt: time.Now()}
	if err := lib.save(c); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := lib.delete(c.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := lib.get(c.ID); err == nil {
		t.Fatalf("expected get to fail after delete")
	}
}

func TestTrimIQFileProducesExpectedWindow(t *testing.T) {
	dir := t.TempDir()
	const sampleRate = 250000
	totalSeconds := 1.0
	iqPath := filepath.Join(dir, "src.iq")
	data := make([]byte, int(totalSeconds*float64(sampleRate))*2)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(iqPath, data, 0o644); err != nil {
		t.Fatalf("failed to write source iq file: %v", err)
	}

	src := &Capture{
		ID:              "src",
		FilePath:        iqPath,
		FrequencyHz:     433_920_000,
		SampleRate:      sampleRate,
		StartedAt:       time.Now(),
		DurationSeconds: totalSeconds,
		Bursts: []Burst{
			{StartSeconds: 0.2, EndSeconds: 0.25, Fingerprint: "aaa", Modulation: ModulationOOK},
			{StartSeconds: 0.8, EndSeconds: 0.85, Fingerprint: "bbb", Modulation: ModulationFSK},
		},
	}

	trimmed, err := trimIQFile(src, 0.1, 0.3)
	if err != nil {
		t.Fatalf("trimIQFile failed: %v", err)
	}
	defer os.Remove(trimmed.FilePath)

	if trimmed.DurationSeconds < 0.29 || trimmed.DurationSeconds > 0.31 {
		t.Fatalf("expected a ~0.3s trimmed duration, got %f", trimmed.DurationSeconds)
	}
	if len(trimmed.Bursts) != 1 || trimmed.Bursts[0].Fingerprint != "aaa" {
		t.Fatalf("expected only the burst inside [0.1,0.4) to survive, got %+v", trimmed.Bursts)
	}
	if trimmed.Bursts[0].StartSeconds < 0 {
		t.Fatalf("expected burst offsets to be rebased to the trimmed window, got %f", trimmed.Bursts[0].StartSeconds)
	}

	out, err := os.ReadFile(trimmed.FilePath)
	if err != nil {
		t.Fatalf("failed to read trimmed output: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected a non-empty trimmed iq file")
	}
}

func TestTrimIQFileRejectsEmptyWindow(t *testing.T) {
	dir := t.TempDir()
	iqPath := filepath.Join(dir, "src.iq")
	if err := os.WriteFile(iqPath, make([]byte, 100), 0o644); err != nil {
		t.Fatalf("failed to write source iq file: %v", err)
	}
	src := &Capture{FilePath: iqPath, SampleRate: 250000, DurationSeconds: 1.0}
	if _, err := trimIQFile(src, 0.5, 0); err == nil {
		t.Fatalf("expected an error for a zero-width trim window")
	}
}

func TestCaptureLibrarySetLabel(t *testing.T) {
	lib := newCaptureLibrary(t.TempDir())
	c := &Capture{ID: newCaptureID(), StartedAt: time.Now()}
	if err := lib.save(c); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	updated, err := lib.setLabel(c.ID, "garage door")
	if err != nil {
		t.Fatalf("setLabel failed: %v", err)
	}
	if updated.Label != "garage door" {
		t.Fatalf("expected label to be set, got %q", updated.Label)
	}
}
