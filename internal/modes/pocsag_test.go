package modes

import "testing"

func TestParsePOCSAGAlpha(t *testing.T) {
	line := "POCSAG1200: Address:  1234567  Function: 3  Alpha:   Hello World  "
	eventType, payload, ok := parsePOCSAGLine(line)
	if !ok {
		t.Fatalf("expected line to parse")
	}
	if eventType != "message" {
		t.Fatalf("unexpected event type: %s", eventType)
	}
	if payload["address"] != "1234567" {
		t.Fatalf("unexpected address: %v", payload["address"])
	}
	if payload["msg_type"] != "Alpha" {
		t.Fatalf("unexpected msg_type: %v", payload["msg_type"])
	}
	if payload["message"] != "Hello World" {
		t.Fatalf("unexpected message: %q", payload["message"])
	}
}

func TestParsePOCSAGNumeric(t *testing.T) {
	line := "POCSAG512: Address: 555  Function: 0  Numeric:  911411"
	_, payload, ok := parsePOCSAGLine(line)
	if !ok {
		t.Fatalf("expected line to parse")
	}
	if payload["msg_type"] != "Numeric" || payload["message"] != "911411" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestParsePOCSAGNumericEmptyBodyFallsBackToPlaceholder(t *testing.T) {
	line := "POCSAG512: Address: 555  Function: 0  Numeric: "
	_, payload, ok := parsePOCSAGLine(line)
	if !ok {
		t.Fatalf("expected line to parse")
	}
	if payload["message"] != "[No Message]" {
		t.Fatalf("unexpected message: %q", payload["message"])
	}
}

func TestParsePOCSAGToneOnly(t *testing.T) {
	line := "POCSAG2400: Address: 42  Function: 1"
	_, payload, ok := parsePOCSAGLine(line)
	if !ok {
		t.Fatalf("expected line to parse")
	}
	if payload["msg_type"] != "Tone" || payload["message"] != "[Tone Only]" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestParseFLEXPipeDelimited(t *testing.T) {
	line := "FLEX|2024-01-01 00:00:00|1600/2|2/K/A|CAP|0123456789|This is a FLEX page"
	_, payload, ok := parsePOCSAGLine(line)
	if !ok {
		t.Fatalf("expected FLEX pipe-delimited line to parse")
	}
	if payload["protocol"] != "FLEX" || payload["message"] != "This is a FLEX page" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestParseFLEXSpaceDelimited(t *testing.T) {
	line := "FLEX: 0123456789 Space delimited page"
	_, payload, ok := parsePOCSAGLine(line)
	if !ok {
		t.Fatalf("expected FLEX space-delimited line to parse")
	}
	if payload["address"] != "0123456789" {
		t.Fatalf("unexpected address: %v", payload["address"])
	}
}

func TestParsePOCSAGUnrecognisedLineIsRaw(t *testing.T) {
	_, _, ok := parsePOCSAGLine("some unrelated multimon-ng banner text")
	if ok {
		t.Fatalf("expected unrecognised line to be reported as raw")
	}
}
