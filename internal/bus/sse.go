package bus

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ua-parser/uap-go/uaparser"
)

// defaultKeepaliveInterval matches spec.md §6.3's ~30s SSE keepalive.
const defaultKeepaliveInterval = 30 * time.Second

var uaParser = uaparser.NewFromSaved()

// ServeSSE drains mode's subscriber queue and writes one JSON object per
// `data:` line, emitting a keepalive frame every keepalive interval when
// the queue is idle (spec.md §4.3, §6.1). It blocks until the request
// context is done or the ResponseWriter stops flushing.
func (b *Bus) ServeSSE(w http.ResponseWriter, r *http.Request, mode string, queueTimeout, keepalive time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("bus: response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	family := "unknown"
	if ua := r.Header.Get("User-Agent"); ua != "" {
		client := uaParser.Parse(ua)
		if client != nil && client.UserAgent != nil {
			family = client.UserAgent.Family
		}
	}
	_ = family // parsed but not recorded or sent on the wire

	sub := b.Subscribe(mode)
	defer sub.Close()

	if keepalive <= 0 {
		keepalive = defaultKeepaliveInterval
	}
	lastKeepalive := time.Now()

	for {
		select {
		case <-r.Context().Done():
			return nil
		default:
		}

		ev, ok := sub.Next(queueTimeout)
		if !ok {
			if time.Since(lastKeepalive) >= keepalive {
				if _, err := fmt.Fprintf(w, "data: %s\n\n", keepaliveFrame()); err != nil {
					return err
				}
				flusher.Flush()
				lastKeepalive = time.Now()
			}
			continue
		}

		payload, err := json.Marshal(ev.JSON())
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
	}
}

func keepaliveFrame() string {
	b, _ := json.Marshal(map[string]any{"type": string(EventKeepalive), "timestamp": time.Now().UTC().Format(time.RFC3339)})
	return string(b)
}
