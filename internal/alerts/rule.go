// Package alerts implements the cross-mode Alert Engine: a small rule
// cache matched against every bus event, firing a webhook and/or MQTT
// notification on match. Grounded on original_source/utils/alerts.py.
package alerts

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

var foldCase = cases.Fold()

// Rule is one alert rule: an optional mode/event_type filter plus a
// field-match DSL evaluated against the event payload.
type Rule struct {
	ID        int            `json:"id"`
	Name      string         `json:"name"`
	Mode      string         `json:"mode,omitempty"`
	EventType string         `json:"event_type,omitempty"`
	Match     map[string]any `json:"match"`
	Severity  string         `json:"severity"`
	Enabled   bool           `json:"enabled"`
	Notify    map[string]any `json:"notify"`
	// CooldownS suppresses repeat firings of this rule for the given
	// number of seconds after it last fired. Zero means no cooldown.
	CooldownS int    `json:"cooldown_s,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// matchesFilter reports whether rule's mode/event_type filters (if any)
// admit this mode/eventType combination.
func (r Rule) matchesFilter(mode, eventType string) bool {
	if r.Mode != "" && r.Mode != mode {
		return false
	}
	if r.EventType != "" && eventType != "" && r.EventType != eventType {
		return false
	}
	if r.EventType != "" && eventType == "" {
		return false
	}
	return true
}

// matchRule reports whether every field in rule.Match is satisfied by
// event. An empty match map matches unconditionally.
func matchRule(ruleMatch map[string]any, event map[string]any) bool {
	if len(ruleMatch) == 0 {
		return true
	}
	for key, expected := range ruleMatch {
		actual := extractValue(event, key)
		if !matchValue(actual, expected) {
			return false
		}
	}
	return true
}

// extractValue resolves a dot-separated key path against nested maps,
// e.g. "aircraft.icao" looks up event["aircraft"]["icao"].
func extractValue(event map[string]any, key string) any {
	if !strings.Contains(key, ".") {
		v, ok := event[key]
		if !ok {
			return nil
		}
		return v
	}
	var current any = event
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

// matchValue evaluates one match-DSL entry: an {"op": ..., "value": ...}
// operator form, a list meaning membership, a string meaning a
// case-insensitive equality, or a plain equality otherwise.
func matchValue(actual, expected any) bool {
	if opMap, ok := expected.(map[string]any); ok {
		if op, ok := opMap["op"].(string); ok {
			return applyOp(op, actual, opMap["value"])
		}
	}

	if list, ok := expected.([]any); ok {
		for _, item := range list {
			if valuesEqual(actual, item) {
				return true
			}
		}
		return false
	}

	if s, ok := expected.(string); ok {
		if actual == nil {
			return false
		}
		return foldCase.String(toStr(actual)) == foldCase.String(s)
	}

	return valuesEqual(actual, expected)
}

func applyOp(op string, actual, value any) bool {
	switch op {
	case "exists":
		return actual != nil
	case "eq":
		return valuesEqual(actual, value)
	case "neq":
		return !valuesEqual(actual, value)
	case "gt":
		a, av, ok := bothNumbers(actual, value)
		return ok && a > av
	case "gte":
		a, av, ok := bothNumbers(actual, value)
		return ok && a >= av
	case "lt":
		a, av, ok := bothNumbers(actual, value)
		return ok && a < av
	case "lte":
		a, av, ok := bothNumbers(actual, value)
		return ok && a <= av
	case "in":
		list, ok := value.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if valuesEqual(actual, item) {
				return true
			}
		}
		return false
	case "contains":
		if actual == nil {
			return false
		}
		needle := foldCase.String(toStr(value))
		if list, ok := actual.([]any); ok {
			for _, item := range list {
				if strings.Contains(foldCase.String(toStr(item)), needle) {
					return true
				}
			}
			return false
		}
		return strings.Contains(foldCase.String(toStr(actual)), needle)
	case "regex":
		if actual == nil || value == nil {
			return false
		}
		re, err := regexp.Compile(toStr(value))
		if err != nil {
			return false
		}
		return re.MatchString(toStr(actual))
	default:
		return false
	}
}

func valuesEqual(a, b any) bool {
	if an, aok := safeNumber(a); aok {
		if bn, bok := safeNumber(b); bok {
			return an == bn
		}
	}
	return a == b
}

func bothNumbers(a, b any) (float64, float64, bool) {
	an, aok := safeNumber(a)
	bn, bok := safeNumber(b)
	if !aok || !bok {
		return 0, 0, false
	}
	return an, bn, true
}

func safeNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(mustFloat(v), 'f', -1, 64)
}

func mustFloat(v any) float64 {
	f, _ := safeNumber(v)
	return f
}
