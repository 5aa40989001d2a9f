package alerts

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitchross/intercept-sub000/internal/bus"
	"github.com/mitchross/intercept-sub000/internal/store"
)

const rulesCacheTTL = 10 * time.Second

// ruleBucket and eventLog name the store collaborator's bucket/log used
// to persist rules and fired alert events.
const (
	ruleBucket = "alert_rules"
	eventLog   = "alert_events"
)

// Notifier delivers a fired alert to the outside world. Webhook and MQTT
// delivery each implement it; failures are logged and never propagated
// (spec.md §4.7 step 3).
type Notifier interface {
	Notify(event Event)
}

// Event is a fired alert, queued for SSE consumers and persisted to the
// event log.
type Event struct {
	ID        int64          `json:"id"`
	RuleID    int            `json:"rule_id"`
	Mode      string         `json:"mode"`
	EventType string         `json:"event_type"`
	Severity  string         `json:"severity"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Engine is the Alert Engine: a rule cache matched against every bus
// event, firing notifications and recording alert events.
type Engine struct {
	store     store.Store
	notifiers []Notifier

	mu            sync.Mutex
	rules         []Rule
	rulesLoadedAt time.Time
	lastFired     map[int]time.Time

	nextRuleID  int64
	nextEventID int64

	stream *dropOldestQueue
}

// New builds an Engine backed by s for rule/event persistence, notifying
// via each of notifiers on a rule match.
func New(s store.Store, notifiers ...Notifier) *Engine {
	return &Engine{
		store:     s,
		notifiers: notifiers,
		lastFired: make(map[int]time.Time),
		stream:    newDropOldestQueue(1000),
	}
}

// AddNotifier registers an additional delivery channel.
func (e *Engine) AddNotifier(n Notifier) {
	e.notifiers = append(e.notifiers, n)
}

// --------------------------------------------------------------------
// Rule management
// --------------------------------------------------------------------

// InvalidateCache forces the next rule lookup to reload from the store.
func (e *Engine) InvalidateCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rulesLoadedAt = time.Time{}
}

func (e *Engine) getRules() []Rule {
	e.mu.Lock()
	stale := time.Since(e.rulesLoadedAt) > rulesCacheTTL
	e.mu.Unlock()

	if stale {
		e.loadRules()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

func (e *Engine) loadRules() {
	raw, err := e.store.List(ruleBucket)
	if err != nil {
		log.Printf("alerts: failed to load rules: %v", err)
		return
	}
	rules := make([]Rule, 0, len(raw))
	for _, v := range raw {
		r, ok := v.(Rule)
		if !ok {
			continue
		}
		if r.Enabled {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	e.mu.Lock()
	e.rules = rules
	e.rulesLoadedAt = time.Now()
	e.mu.Unlock()
}

// ListRules returns every stored rule (optionally including disabled
// ones), newest first.
func (e *Engine) ListRules(includeDisabled bool) ([]Rule, error) {
	raw, err := e.store.List(ruleBucket)
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(raw))
	for _, v := range raw {
		r, ok := v.(Rule)
		if !ok {
			continue
		}
		if r.Enabled || includeDisabled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// AddRule persists a new rule and invalidates the cache, returning its
// assigned id.
func (e *Engine) AddRule(r Rule) (int, error) {
	id := int(atomic.AddInt64(&e.nextRuleID, 1))
	r.ID = id
	if r.Name == "" {
		r.Name = "Alert Rule"
	}
	if r.Severity == "" {
		r.Severity = "medium"
	}
	if err := e.store.Put(ruleBucket, strconv.Itoa(id), r); err != nil {
		return 0, err
	}
	e.InvalidateCache()
	return id, nil
}

// DeleteRule removes a rule by id.
func (e *Engine) DeleteRule(id int) error {
	if err := e.store.Delete(ruleBucket, strconv.Itoa(id)); err != nil {
		return err
	}
	e.InvalidateCache()
	return nil
}

// --------------------------------------------------------------------
// Event processing — Engine is a bus.Sink
// --------------------------------------------------------------------

// Handle implements bus.Sink. It matches ev against the rule cache,
// recording and dispatching an Event for every rule it satisfies.
func (e *Engine) Handle(ev bus.Event) error {
	if ev.Type == bus.EventKeepalive || ev.Type == bus.EventPing || ev.Type == bus.EventStatus {
		return nil
	}

	rules := e.getRules()
	if len(rules) == 0 {
		return nil
	}

	for _, rule := range rules {
		if !rule.matchesFilter(ev.Mode, string(ev.Type)) {
			continue
		}
		if !matchRule(rule.Match, ev.Payload) {
			continue
		}
		if e.onCooldown(rule) {
			continue
		}
		e.fire(rule, ev)
	}
	return nil
}

func (e *Engine) onCooldown(rule Rule) bool {
	if rule.CooldownS <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.lastFired[rule.ID]; ok {
		if time.Since(last) < time.Duration(rule.CooldownS)*time.Second {
			return true
		}
	}
	e.lastFired[rule.ID] = time.Now()
	return false
}

func (e *Engine) fire(rule Rule, ev bus.Event) {
	title := rule.Name
	if title == "" {
		title = "Alert"
	}
	message := buildMessage(rule, ev)
	payload := map[string]any{
		"mode":       ev.Mode,
		"event_type": string(ev.Type),
		"event":      ev.Payload,
		"rule":       map[string]any{"id": rule.ID, "name": rule.Name},
	}

	id := atomic.AddInt64(&e.nextEventID, 1)
	alertEvent := Event{
		ID:        id,
		RuleID:    rule.ID,
		Mode:      ev.Mode,
		EventType: string(ev.Type),
		Severity:  rule.Severity,
		Title:     title,
		Message:   message,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := e.store.Append(eventLog, alertEvent); err != nil {
		log.Printf("alerts: failed to persist fired event for rule %d: %v", rule.ID, err)
	}
	e.stream.push(alertEvent)

	for _, n := range e.notifiers {
		if shouldNotify(rule.Notify) {
			n.Notify(alertEvent)
		}
	}
}

// shouldNotify reports whether a rule's notify block allows delivery.
// Only an explicit "webhook": false is consulted, and it suppresses
// every registered Notifier (MQTT included); no other notify key is
// read.
func shouldNotify(notify map[string]any) bool {
	if notify == nil {
		return true
	}
	if v, ok := notify["webhook"]; ok {
		if b, ok := v.(bool); ok && !b {
			return false
		}
	}
	return true
}

func buildMessage(rule Rule, ev bus.Event) string {
	if rule.Notify != nil {
		if m, ok := rule.Notify["message"].(string); ok && m != "" {
			return m
		}
	}
	var bits []string
	if ev.Type != "" {
		bits = append(bits, string(ev.Type))
	}
	for _, field := range []string{"name", "ssid", "bssid", "address", "mac"} {
		if v, ok := ev.Payload[field]; ok && v != nil {
			bits = append(bits, fmt.Sprintf("%v", v))
		}
	}
	if len(bits) == 0 {
		return "Alert triggered"
	}
	out := bits[0]
	for _, b := range bits[1:] {
		out += " | " + b
	}
	return out
}

// --------------------------------------------------------------------
// Streaming
// --------------------------------------------------------------------

// NextEvent blocks up to timeout for the next fired alert, for an SSE
// consumer to drain; ok is false on timeout (the caller should emit a
// keepalive).
func (e *Engine) NextEvent(timeout time.Duration) (Event, bool) {
	return e.stream.pop(timeout)
}
