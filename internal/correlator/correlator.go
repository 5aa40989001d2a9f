// Package correlator matches ACARS and VDL2 messages to the aircraft
// mentioned in other live feeds (ADS-B, a manual query) by callsign,
// flight number, or registration, expanding each query across IATA/ICAO
// designator equivalents so "UA2412" and "UAL2412" are treated as the
// same flight. Grounded on original_source/utils/flight_correlator.py
// and utils/airline_codes.py.
package correlator

import (
	"strings"
	"sync"
	"time"
)

const defaultMaxMessages = 1000

// identifyingFields lists, in the order checked, the message fields a
// query may match against.
var identifyingFields = []string{"flight", "tail", "reg", "callsign", "icao", "addr"}

// Correlator holds bounded histories of recent ACARS and VDL2 messages
// for cross-referencing against aircraft identity queries.
type Correlator struct {
	mu      sync.Mutex
	maxMsgs int
	acars   []timedMessage
	vdl2    []timedMessage
}

type timedMessage struct {
	fields   map[string]any
	corrTime time.Time
}

// New builds a Correlator retaining up to maxMessages of each feed type.
// A non-positive maxMessages falls back to 1000.
func New(maxMessages int) *Correlator {
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	return &Correlator{maxMsgs: maxMessages}
}

// AddACARSMessage appends msg to the ACARS history, evicting the oldest
// entry once the bound is reached.
func (c *Correlator) AddACARSMessage(msg map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acars = appendBounded(c.acars, msg, c.maxMsgs)
}

// AddVDL2Message appends msg to the VDL2 history, evicting the oldest
// entry once the bound is reached.
func (c *Correlator) AddVDL2Message(msg map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vdl2 = appendBounded(c.vdl2, msg, c.maxMsgs)
}

func appendBounded(buf []timedMessage, msg map[string]any, max int) []timedMessage {
	buf = append(buf, timedMessage{fields: msg, corrTime: time.Now()})
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}

// MessagesForAircraft returns every stored ACARS/VDL2 message whose
// identifying fields match icao, callsign, or registration (after
// IATA/ICAO expansion). Both result slices are non-nil. Empty when
// neither icao nor callsign is given.
func (c *Correlator) MessagesForAircraft(icao, callsign, registration string) (acars, vdl2 []map[string]any) {
	acars = []map[string]any{}
	vdl2 = []map[string]any{}
	if icao == "" && callsign == "" {
		return acars, vdl2
	}

	terms := make(map[string]struct{})
	if callsign != "" {
		terms[strings.ToUpper(strings.TrimSpace(callsign))] = struct{}{}
	}
	if icao != "" {
		terms[strings.ToUpper(strings.TrimSpace(icao))] = struct{}{}
	}
	if registration != "" {
		terms[strings.ToUpper(strings.TrimSpace(registration))] = struct{}{}
	}
	terms = expandSearchTerms(terms)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.acars {
		if messageMatches(m.fields, terms) {
			acars = append(acars, m.fields)
		}
	}
	for _, m := range c.vdl2 {
		if messageMatches(m.fields, terms) {
			vdl2 = append(vdl2, m.fields)
		}
	}
	return acars, vdl2
}

func messageMatches(msg map[string]any, terms map[string]struct{}) bool {
	for _, field := range identifyingFields {
		raw, ok := msg[field]
		if !ok || raw == nil {
			continue
		}
		val := strings.ToUpper(strings.TrimSpace(toString(raw)))
		if val == "" {
			continue
		}
		if _, ok := terms[val]; ok {
			return true
		}
		for _, translated := range translateFlight(val) {
			if _, ok := terms[translated]; ok {
				return true
			}
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// RecentMessages returns up to limit of the most recently added messages
// of the given type ("acars" or anything else meaning "vdl2"), newest
// first.
func (c *Correlator) RecentMessages(msgType string, limit int) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	source := c.vdl2
	if msgType == "acars" {
		source = c.acars
	}

	out := make([]map[string]any, 0, len(source))
	for i := len(source) - 1; i >= 0; i-- {
		out = append(out, source[i].fields)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ClearACARS discards all stored ACARS messages.
func (c *Correlator) ClearACARS() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acars = nil
}

// ClearVDL2 discards all stored VDL2 messages.
func (c *Correlator) ClearVDL2() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vdl2 = nil
}

// ACARSCount returns the number of stored ACARS messages.
func (c *Correlator) ACARSCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acars)
}

// VDL2Count returns the number of stored VDL2 messages.
func (c *Correlator) VDL2Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vdl2)
}
