package modes

import "testing"

func TestTranslateLabelKnown(t *testing.T) {
	if got := translateLabel("5Z"); got != "OOOI (gate times)" {
		t.Fatalf("unexpected description: %q", got)
	}
}

func TestTranslateLabelQPrefixFallback(t *testing.T) {
	if got := translateLabel("QZ"); got != "Link management (QZ)" {
		t.Fatalf("unexpected description: %q", got)
	}
}

func TestTranslateLabelUnknown(t *testing.T) {
	if got := translateLabel("ZZ"); got != "Label ZZ" {
		t.Fatalf("unexpected description: %q", got)
	}
}

func TestClassifyMessageTypePosition(t *testing.T) {
	if got := classifyMessageType("20", ""); got != "position" {
		t.Fatalf("expected position, got %q", got)
	}
}

func TestClassifyMessageTypeATSFromBPrefix(t *testing.T) {
	if got := classifyMessageType("B6", ""); got != "ats" {
		t.Fatalf("expected ats, got %q", got)
	}
}

func TestClassifyMessageTypeOther(t *testing.T) {
	if got := classifyMessageType("ZZ", ""); got != "other" {
		t.Fatalf("expected other, got %q", got)
	}
}

func TestParsePositionReportDecodesCoordinates(t *testing.T) {
	text := "#M1BPOSN42411W086034,CSG,070852,340,N42441W087074,DTW"
	result := parsePositionReport(text)
	if result == nil {
		t.Fatalf("expected a parsed position report")
	}
	lat, _ := result["lat"].(float64)
	if lat < 42.4 || lat > 42.5 {
		t.Fatalf("unexpected lat: %v", lat)
	}
	if result["flight_level"] != "FL340" {
		t.Fatalf("unexpected flight level: %v", result["flight_level"])
	}
	if result["destination"] != "DTW" {
		t.Fatalf("unexpected destination: %v", result["destination"])
	}
}

func TestParseEngineDataExtractsKnownKeys(t *testing.T) {
	result := parseEngineData("SM/1 AC0/87.5 FL/340")
	if result == nil {
		t.Fatalf("expected parsed engine data")
	}
	sm, ok := result["SM"].(map[string]any)
	if !ok || sm["value"] != "1" {
		t.Fatalf("unexpected SM entry: %+v", result["SM"])
	}
}

func TestParseWeatherDataExtractsWindAndVisibility(t *testing.T) {
	result := parseWeatherData("WND270015 VIS 6.0 KJFK KLAX")
	if result == nil {
		t.Fatalf("expected parsed weather data")
	}
	if result["wind_dir"] != "270 deg" || result["wind_speed"] != "015 kts" {
		t.Fatalf("unexpected wind fields: %+v", result)
	}
	if result["visibility"] != "6.0 SM" {
		t.Fatalf("unexpected visibility: %v", result["visibility"])
	}
}

func TestParseOOOIFullForm(t *testing.T) {
	result := parseOOOI("KJFK KLAX 1423 1435 1812 1824")
	if result == nil {
		t.Fatalf("expected parsed OOOI data")
	}
	if result["origin"] != "KJFK" || result["in"] != "1824" {
		t.Fatalf("unexpected OOOI fields: %+v", result)
	}
}

func TestTranslateMessageRoutesToPositionParser(t *testing.T) {
	_, messageType, parsed := translateMessage("20", "#M1BPOSN42411W086034,CSG,070852,340")
	if messageType != "position" {
		t.Fatalf("expected position message_type, got %q", messageType)
	}
	if parsed == nil {
		t.Fatalf("expected a parsed payload")
	}
}
