package alerts

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/store"
)

func TestMatchRuleEmptyMatchesEverything(t *testing.T) {
	if !matchRule(nil, map[string]any{"a": 1}) {
		t.Fatalf("expected empty match to match unconditionally")
	}
}

func TestMatchRuleDotPath(t *testing.T) {
	event := map[string]any{"aircraft": map[string]any{"icao": "A12345"}}
	match := map[string]any{"aircraft.icao": "a12345"}
	if !matchRule(match, event) {
		t.Fatalf("expected case-insensitive dot-path match")
	}
}

func TestMatchRuleOperators(t *testing.T) {
	event := map[string]any{"rssi": -40.0, "ssid": "FreeWiFi-Guest"}
	cases := []struct {
		match map[string]any
		want  bool
	}{
		{map[string]any{"rssi": map[string]any{"op": "gte", "value": -50.0}}, true},
		{map[string]any{"rssi": map[string]any{"op": "lt", "value": -50.0}}, false},
		{map[string]any{"ssid": map[string]any{"op": "contains", "value": "guest"}}, true},
		{map[string]any{"ssid": map[string]any{"op": "regex", "value": "^Free.*"}}, true},
		{map[string]any{"missing": map[string]any{"op": "exists"}}, false},
	}
	for i, c := range cases {
		if got := matchRule(c.match, event); got != c.want {
			t.Fatalf("case %d: expected %v, got %v", i, c.want, got)
		}
	}
}

func TestEngineFiresAlertOnMatchingEvent(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "Intercept-Alert" {
			t.Errorf("expected Intercept-Alert user agent, got %s", r.Header.Get("User-Agent"))
		}
		buf, _ := io.ReadAll(r.Body)
		received = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := store.NewMemStore()
	webhook := NewWebhookNotifier(srv.URL, "secret", 2*time.Second)
	engine := New(s, webhook)
	if _, err := engine.AddRule(Rule{Name: "ssid alert", Match: map[string]any{"ssid": "target"}, Enabled: true}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	ev := bus.Event{Mode: "wifi", Type: bus.EventMessage, Payload: map[string]any{"ssid": "target"}}
	if err := engine.Handle(ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	fired, ok := engine.NextEvent(2 * time.Second)
	if !ok {
		t.Fatalf("expected a fired alert event")
	}
	if fired.Mode != "wifi" {
		t.Fatalf("expected mode wifi, got %s", fired.Mode)
	}
	time.Sleep(50 * time.Millisecond)
	if len(received) == 0 {
		t.Fatalf("expected webhook to have been called")
	}
}

func TestEngineSkipsKeepaliveAndPing(t *testing.T) {
	s := store.NewMemStore()
	engine := New(s)
	engine.AddRule(Rule{Name: "any", Enabled: true})

	engine.Handle(bus.Event{Mode: "ais", Type: bus.EventKeepalive})
	engine.Handle(bus.Event{Mode: "ais", Type: bus.EventPing})

	if _, ok := engine.NextEvent(50 * time.Millisecond); ok {
		t.Fatalf("expected no alert for keepalive/ping events")
	}
}

func TestEngineRespectsCooldown(t *testing.T) {
	s := store.NewMemStore()
	engine := New(s)
	engine.AddRule(Rule{Name: "cooldown", Enabled: true, CooldownS: 60})

	ev := bus.Event{Mode: "dsc", Type: bus.EventMessage, Payload: map[string]any{}}
	engine.Handle(ev)
	engine.Handle(ev)

	first, ok := engine.NextEvent(50 * time.Millisecond)
	if !ok {
		t.Fatalf("expected first firing")
	}
	_ = first
	if _, ok := engine.NextEvent(50 * time.Millisecond); ok {
		t.Fatalf("expected second firing to be suppressed by cooldown")
	}
}

func TestEngineModeFilterExcludesOtherModes(t *testing.T) {
	s := store.NewMemStore()
	engine := New(s)
	engine.AddRule(Rule{Name: "ais only", Mode: "ais", Enabled: true})

	engine.Handle(bus.Event{Mode: "dsc", Type: bus.EventMessage, Payload: map[string]any{}})
	if _, ok := engine.NextEvent(50 * time.Millisecond); ok {
		t.Fatalf("expected mode filter to exclude a dsc event from an ais-only rule")
	}
}
