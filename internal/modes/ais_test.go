package modes

import "testing"

func TestMergeVesselDiscardsUnavailableSentinels(t *testing.T) {
	a := &AISController{vessels: map[string]map[string]any{}}

	mmsi := a.mergeVessel(map[string]any{
		"mmsi": "123456789", "latitude": 181.0, "longitude": 181.0,
		"speed": 102.3, "course": 360.0, "heading": 511.0,
	})
	if mmsi != "123456789" {
		t.Fatalf("unexpected mmsi: %q", mmsi)
	}
	v := a.vessels[mmsi]
	if _, ok := v["lat"]; ok {
		t.Fatalf("expected unavailable lat to be discarded")
	}
	if _, ok := v["speed"]; ok {
		t.Fatalf("expected unavailable speed to be discarded")
	}
}

func TestMergeVesselAccumulatesAcrossMessages(t *testing.T) {
	a := &AISController{vessels: map[string]map[string]any{}}

	a.mergeVessel(map[string]any{"mmsi": "1", "latitude": 40.0, "longitude": -70.0})
	a.mergeVessel(map[string]any{"mmsi": "1", "shipname": "RECOVERY@@"})

	v := a.vessels["1"]
	if v["lat"] != 40.0 || v["lon"] != -70.0 {
		t.Fatalf("expected earlier position to persist: %+v", v)
	}
	if v["name"] != "RECOVERY" {
		t.Fatalf("expected trimmed shipname, got %v", v["name"])
	}
}

func TestMergeVesselWithoutMMSIIsSkipped(t *testing.T) {
	a := &AISController{vessels: map[string]map[string]any{}}
	mmsi := a.mergeVessel(map[string]any{"latitude": 1.0})
	if mmsi != "" {
		t.Fatalf("expected no mmsi to be extracted")
	}
}
