package correlator

import "regexp"

// iataToICAO maps the 2-letter IATA airline designator to its 3-letter
// ICAO equivalent for the carriers this deployment sees most often.
var iataToICAO = map[string]string{
	// North America — Major
	"AA": "AAL", "DL": "DAL", "UA": "UAL", "WN": "SWA", "B6": "JBU",
	"AS": "ASA", "NK": "NKS", "F9": "FFT", "G4": "AAY", "HA": "HAL",
	"SY": "SCX", "WS": "WJA", "AC": "ACA", "WG": "WGN", "TS": "TSC",
	"PD": "POE", "MX": "MXA", "QX": "QXE", "OH": "COM", "OO": "SKW",
	"YX": "RPA", "9E": "FLG", "CP": "CPZ", "PT": "SWQ", "MQ": "ENY",
	"YV": "ASH", "AX": "LOF", "ZW": "AWI", "G7": "GJS", "EV": "ASQ",
	"AM": "AMX", "VB": "VIV", "4O": "AIJ", "Y4": "VOI",
	// North America — Cargo
	"5X": "UPS", "FX": "FDX",
	// Europe — Major
	"BA": "BAW", "LH": "DLH", "AF": "AFR", "KL": "KLM", "IB": "IBE",
	"AZ": "ITY", "SK": "SAS", "AY": "FIN", "OS": "AUA", "LX": "SWR",
	"SN": "BEL", "TP": "TAP", "EI": "EIN", "U2": "EZY", "FR": "RYR",
	"W6": "WZZ", "VY": "VLG", "PC": "PGT", "TK": "THY", "LO": "LOT",
	"BT": "BTI", "DY": "NAX", "VS": "VIR", "EW": "EWG",
	// Asia-Pacific — Major
	"SQ": "SIA", "CX": "CPA", "QF": "QFA", "JL": "JAL", "NH": "ANA",
	"KE": "KAL", "OZ": "AAR", "CI": "CAL", "BR": "EVA", "CZ": "CSN",
	"MU": "CES", "CA": "CCA", "AI": "AIC", "GA": "GIA", "TG": "THA",
	"MH": "MAS", "PR": "PAL", "VN": "HVN", "NZ": "ANZ", "3K": "JSA",
	"JQ": "JST", "AK": "AXM", "TR": "TGW", "5J": "CEB",
	// Middle East / Africa
	"EK": "UAE", "QR": "QTR", "EY": "ETD", "GF": "GFA", "SV": "SVA",
	"ET": "ETH", "MS": "MSR", "SA": "SAA", "RJ": "RJA", "WY": "OMA",
	// South America
	"LA": "LAN", "G3": "GLO", "AD": "AZU", "AV": "AVA", "CM": "CMP",
	"AR": "ARG",
	// ACARS-specific addressing codes
	"MC": "MCO",
}

// icaoToIATA is the reverse lookup, built once at package init.
var icaoToIATA = func() map[string]string {
	m := make(map[string]string, len(iataToICAO))
	for k, v := range iataToICAO {
		m[v] = k
	}
	return m
}()

var flightNumberPattern = regexp.MustCompile(`^([A-Z]{2,3})(\d+[A-Z]?)$`)

// translateFlight returns every equivalent form of a flight number under
// the IATA<->ICAO designator tables. "UA2412" (IATA) yields ["UAL2412"];
// "UAL2412" (ICAO) yields ["UA2412"]. Nil when the callsign doesn't split
// into a known airline prefix plus a numeric flight number.
func translateFlight(flight string) []string {
	if flight == "" {
		return nil
	}
	m := flightNumberPattern.FindStringSubmatch(flight)
	if m == nil {
		return nil
	}
	prefix, number := m[1], m[2]

	var results []string
	if icao, ok := iataToICAO[prefix]; ok {
		results = append(results, icao+number)
	}
	if iata, ok := icaoToIATA[prefix]; ok {
		results = append(results, iata+number)
	}
	return results
}

// expandSearchTerms augments a set of callsign/flight search terms with
// every translated variant, so a search for "UA2412" also matches
// messages tagged "UAL2412" and vice versa.
func expandSearchTerms(terms map[string]struct{}) map[string]struct{} {
	expanded := make(map[string]struct{}, len(terms)*2)
	for t := range terms {
		expanded[t] = struct{}{}
	}
	for t := range terms {
		for _, translated := range translateFlight(t) {
			expanded[translated] = struct{}{}
		}
	}
	return expanded
}
