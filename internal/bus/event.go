package bus

import "time"

// EventType enumerates the event types spec.md §3.3 lists.
type EventType string

const (
	EventMessage   EventType = "message"
	EventVessel    EventType = "vessel"
	EventAircraft  EventType = "aircraft"
	EventMesh      EventType = "mesh"
	EventPosition  EventType = "position"
	EventBurst     EventType = "burst"
	EventSpectrum  EventType = "spectrum"
	EventSweep     EventType = "sweep"
	EventTXStatus  EventType = "tx_status"
	EventRXLevel   EventType = "rx_level"
	EventWaveform  EventType = "rx_waveform"
	EventInfo      EventType = "info"
	EventRaw       EventType = "raw"
	EventStatus    EventType = "status"
	EventError     EventType = "error"
	EventKeepalive EventType = "keepalive"
	EventPing      EventType = "ping"
	// EventWifiDeauth is routed but never produced in-process: spec.md
	// §1 names the deauth sniffer as a self-contained leaf that
	// publishes onto this bus from outside the orchestrator.
	EventWifiDeauth EventType = "wifi_deauth"
)

// ignoredBySinks are event types that never traverse the Recording/
// Alert/Pattern sinks (spec.md §4.3): they exist purely to keep SSE
// connections alive through proxies.
var ignoredBySinks = map[EventType]bool{
	EventKeepalive: true,
	EventPing:      true,
}

// Event is the orchestrator's typed event record (spec.md §3.3). Payload
// is schemaless on purpose — per spec.md §9's "tagged sum ... with a
// passthrough unknown(map) case" design note, mode controllers populate
// well-known keys for their typed fields and leave everything else as
// additional map entries; serialisation to JSON happens only at the SSE
// boundary.
type Event struct {
	Mode       string         `json:"mode"`
	Type       EventType      `json:"type"`
	Payload    map[string]any `json:"-"`
	IngestedAt time.Time      `json:"ingested_at"`
}

// JSON flattens Payload into one map alongside mode/type/timestamp
// (IngestedAt in RFC 3339 UTC), matching the wire shape spec.md §6.1 describes
// ("each data: line is one JSON event").
func (e Event) JSON() map[string]any {
	out := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["mode"] = e.Mode
	out["type"] = string(e.Type)
	out["timestamp"] = e.IngestedAt.UTC().Format(time.RFC3339Nano)
	return out
}
