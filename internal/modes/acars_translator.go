package modes

import (
	"regexp"
	"strconv"
	"strings"
)

// acarsLabels maps two-character ACARS label codes to human-readable
// descriptions. Grounded on acars_translator.py's ACARS_LABELS table
// (ARINC 618/620 and airline implementation conventions).
var acarsLabels = map[string]string{
	"H1": "Position report (HF data link)",
	"H2": "Weather report",
	"5Z": "OOOI (gate times)",
	"15": "Departure report",
	"16": "Arrival report",
	"20": "Position report",
	"22": "Fuel report",
	"2Z": "Off-gate report",
	"30": "Progress report",
	"44": "Weather request",
	"80": "Free text (3-char header)",
	"83": "Free text",
	"8E": "ATIS request",

	"DF": "Engine data / DFDR",
	"D3": "Engine exceedance",
	"D6": "Engine trend data",

	"B1": "ATC request",
	"B2": "ATC clearance",
	"B3": "ATC comm test",
	"B6": "ATC departure clearance",
	"B9": "ATC message",
	"BA": "ATC advisory",
	"BB": "ATC response",

	"AA": "CPDLC message",
	"AB": "CPDLC response",
	"A0": "CPDLC uplink",
	"A1": "CPDLC downlink",
	"A2": "CPDLC connection request",
	"A3": "CPDLC logon/logoff",
	"A6": "CPDLC message",
	"A7": "CPDLC response",
	"AT": "CPDLC transfer",

	"_d": "Demand mode (link test)",
	"Q0": "Link test",
	"QA": "Link test reply",
	"QB": "Acknowledgement",
	"QC": "Link request",
	"QD": "Link accept",
	"QE": "Link reject",
	"QF": "Squitter / heartbeat",
	"QG": "Abort",
	"QH": "Version request",
	"QK": "Mode change",
	"QM": "Link verification",
	"QN": "Media advisory",
	"QP": "Polling",
	"QQ": "Status",
	"QR": "General response",
	"QS": "System table request",
	"QT": "System table",
	"QX": "Frequency change",

	"SQ": "Squawk assignment",
	"SA": "Surveillance data",
	"S1": "ADS-C report",

	"C1": "Crew scheduling",
	"C2": "Crew response",
	"C3": "Crew message",
	"C4": "Crew query",
	"10": "Delay message",
	"12": "Clearance request",
	"17": "Cargo/load data",
	"4T": "TWIP (terminal weather)",
	"4X": "Connectivity test",
	"50": "Weather observation",
	"51": "METAR/TAF request",
	"52": "METAR/TAF response",
	"54": "SIGMET / AIRMET",
	"70": "Maintenance report",
	"7A": "Fault message",
	"7B": "Fault clear",
	"F3": "Flight plan",
	"F5": "Flight plan amendment",
	"F6": "Route request",
	"F7": "Route clearance",
	"RA": "ATIS report",
	"RB": "ATIS request",
}

var linkTestLabels = map[string]bool{
	"_d": true, "Q0": true, "QA": true, "QB": true, "QC": true, "QD": true,
	"QE": true, "QF": true, "QG": true, "QH": true, "QK": true, "QM": true,
	"QN": true, "QP": true, "QQ": true, "QR": true, "QS": true, "QT": true,
	"QX": true, "4X": true,
}

var cpdlcLabels = map[string]bool{
	"AA": true, "AB": true, "A0": true, "A1": true, "A2": true,
	"A3": true, "A6": true, "A7": true, "AT": true,
}

var positionLabels = map[string]bool{"H1": true, "20": true, "15": true, "16": true, "30": true, "S1": true}
var engineLabels = map[string]bool{"DF": true, "D3": true, "D6": true}
var weatherLabels = map[string]bool{"H2": true, "44": true, "50": true, "51": true, "52": true, "54": true, "4T": true}
var oooiLabels = map[string]bool{"5Z": true, "2Z": true}
var squawkLabels = map[string]bool{"SQ": true, "SA": true}

// translateLabel returns a human-readable description for an ACARS
// label code.
func translateLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "Unknown label"
	}
	if desc, ok := acarsLabels[label]; ok {
		return desc
	}
	if len(label) == 2 && strings.HasPrefix(label, "Q") {
		return "Link management (" + label + ")"
	}
	return "Label " + label
}

// classifyMessageType classifies an ACARS message into one of
// position, engine_data, weather, ats, cpdlc, oooi, squawk, link_test,
// handshake, or other (spec.md §4.4.2).
func classifyMessageType(label, text string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "other"
	}

	if positionLabels[label] {
		return "position"
	}
	if label == "H1" || strings.Contains(text, "#M1BPOS") {
		return "position"
	}
	if engineLabels[label] {
		return "engine_data"
	}
	if weatherLabels[label] {
		return "weather"
	}
	if len(label) == 2 && strings.HasPrefix(label, "B") {
		return "ats"
	}
	if cpdlcLabels[label] {
		return "cpdlc"
	}
	if oooiLabels[label] {
		return "oooi"
	}
	if squawkLabels[label] {
		return "squawk"
	}
	if linkTestLabels[label] {
		return "link_test"
	}
	if label == "_d" {
		return "handshake"
	}
	return "other"
}

var bposPattern = regexp.MustCompile(`#M\d[A-Z]*POS([NS])(\d{2,5})([EW])(\d{3,6}),([^,]*),(\d{4,6}),(\d{2,3})(?:,([NS]\d{2,5}[EW]\d{3,6}))?(?:,([A-Z]{3,4}))?`)
var tempPattern = regexp.MustCompile(`/TS([MP]?)(\d{2,3})`)

// parsePositionReport parses H1/#MnBPOS position report fields.
func parsePositionReport(text string) map[string]any {
	if text == "" {
		return nil
	}
	result := map[string]any{}

	if m := bposPattern.FindStringSubmatch(text); m != nil {
		latDir, latVal, lonDir, lonVal := m[1], m[2], m[3], m[4]
		lat := decodeDegrees(latVal, 2)
		if latDir == "S" {
			lat = -lat
		}
		lon := decodeDegrees(lonVal, 3)
		if lonDir == "W" {
			lon = -lon
		}
		result["lat"] = roundTo(lat, 4)
		result["lon"] = roundTo(lon, 4)
		if wp := strings.TrimSpace(m[5]); wp != "" {
			result["waypoint"] = wp
		} else {
			result["waypoint"] = nil
		}
		result["time"] = m[6]
		result["flight_level"] = "FL" + m[7]
		if m[9] != "" {
			result["destination"] = m[9]
		}
	}

	if m := tempPattern.FindStringSubmatch(text); m != nil {
		sign := ""
		if m[1] == "M" {
			sign = "-"
		}
		result["temperature"] = sign + m[2] + " C"
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// decodeDegrees converts a packed coordinate string into decimal
// degrees: the degWidth leading digits are whole degrees and the
// remaining n digits are the fractional part of a degree (value/10^n),
// so "42411" with degWidth 2 decodes to 42.411.
func decodeDegrees(val string, degWidth int) float64 {
	if len(val) < degWidth+2 {
		f, _ := strconv.ParseFloat(val, 64)
		return f
	}
	deg, _ := strconv.Atoi(val[:degWidth])
	minDigits := val[degWidth:]
	minRaw, _ := strconv.Atoi(minDigits)
	scale := 1.0
	for i := 0; i < len(minDigits); i++ {
		scale *= 10
	}
	min := float64(minRaw) / scale * 60
	return float64(deg) + min/60
}

func roundTo(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	return float64(int64(v*scale+sign(v)*0.5)) / scale
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// engineKeyDescriptions: DFDR/engine telemetry key → description.
var engineKeyDescriptions = []struct{ key, desc string }{
	{"SM", "Source mode"}, {"AC0", "Eng 1 N2 (%)"}, {"AC1", "Eng 2 N2 (%)"},
	{"FL", "Flight level"}, {"FU", "Fuel used (lbs)"}, {"ES", "EGT spread"},
	{"BA", "Bleed air"}, {"CO", "Config"}, {"AO", "Auto"},
	{"EGT", "Exhaust gas temp"}, {"OIT", "Oil temp"}, {"OIP", "Oil pressure"},
	{"N1", "N1 (%)"}, {"N2", "N2 (%)"}, {"FF", "Fuel flow"}, {"VIB", "Vibration"},
}

// parseEngineData parses DF (engine/DFDR) KEY/VALUE pairs.
func parseEngineData(text string) map[string]any {
	if text == "" {
		return nil
	}
	result := map[string]any{}
	for _, kd := range engineKeyDescriptions {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(kd.key) + `[/: ]?\s*([+-]?\d+\.?\d*)`)
		if m := re.FindStringSubmatch(text); m != nil {
			result[kd.key] = map[string]any{"value": m[1], "description": kd.desc}
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

var windPattern = regexp.MustCompile(`(?:WND|WIND)\s*(\d{3})[/ ]?(\d{2,3})`)
var airportPattern = regexp.MustCompile(`\b([A-Z]{3,4})\b`)
var weatherTempPattern = regexp.MustCompile(`(?:TMP|TEMP|T)\s*([MP+-]?\d{1,3})`)
var visPattern = regexp.MustCompile(`VIS\s*(\d+(?:\.\d+)?)`)

// parseWeatherData parses wind/airport/temperature/visibility fields
// out of a free-text weather report.
func parseWeatherData(text string) map[string]any {
	if text == "" {
		return nil
	}
	result := map[string]any{}

	if m := windPattern.FindStringSubmatch(text); m != nil {
		result["wind_dir"] = m[1] + " deg"
		result["wind_speed"] = m[2] + " kts"
	}
	if matches := airportPattern.FindAllStringSubmatch(text, -1); matches != nil {
		seen := map[string]bool{}
		var airports []string
		for _, m := range matches {
			if !seen[m[1]] {
				seen[m[1]] = true
				airports = append(airports, m[1])
			}
			if len(airports) == 4 {
				break
			}
		}
		if len(airports) > 0 {
			result["airports"] = airports
		}
	}
	if m := weatherTempPattern.FindStringSubmatch(text); m != nil {
		val := strings.ReplaceAll(m[1], "M", "-")
		val = strings.ReplaceAll(val, "P", "")
		result["temperature"] = val + " C"
	}
	if m := visPattern.FindStringSubmatch(text); m != nil {
		result["visibility"] = m[1] + " SM"
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

var oooiFullPattern = regexp.MustCompile(`([A-Z]{3,4})\s+([A-Z]{3,4})\s+(\d{4})\s+(\d{4})\s+(\d{4})\s+(\d{4})`)
var oooiPartialPattern = regexp.MustCompile(`([A-Z]{3,4})\s+([A-Z]{3,4})`)
var oooiTimePattern = regexp.MustCompile(`\b(\d{4})\b`)

// parseOOOI parses 5Z/2Z out/off/on/in gate time messages.
func parseOOOI(text string) map[string]any {
	if text == "" {
		return nil
	}

	if m := oooiFullPattern.FindStringSubmatch(text); m != nil {
		return map[string]any{
			"origin": m[1], "destination": m[2],
			"out": m[3], "off": m[4], "on": m[5], "in": m[6],
		}
	}

	result := map[string]any{}
	if m := oooiPartialPattern.FindStringSubmatch(text); m != nil {
		result["origin"] = m[1]
		result["destination"] = m[2]
	}
	labels := []string{"out", "off", "on", "in"}
	times := oooiTimePattern.FindAllString(text, -1)
	for i, t := range times {
		if i >= len(labels) {
			break
		}
		result[labels[i]] = t
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// translateMessage enriches a raw ACARS message with a label
// description, a classified message_type, and a type-specific parsed
// payload.
func translateMessage(label, text string) (labelDescription, messageType string, parsed map[string]any) {
	labelDescription = translateLabel(label)
	messageType = classifyMessageType(label, text)

	switch {
	case messageType == "position" || (label == "H1" && strings.Contains(strings.ToUpper(text), "POS")):
		parsed = parsePositionReport(text)
	case messageType == "engine_data":
		parsed = parseEngineData(text)
	case messageType == "weather":
		parsed = parseWeatherData(text)
	case messageType == "oooi":
		parsed = parseOOOI(text)
	}
	return labelDescription, messageType, parsed
}
