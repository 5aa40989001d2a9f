package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier POSTs a fired alert as a JSON body to a configured
// URL with the headers the original alert DSL always sends (spec.md
// §4.7 step 3). Webhook delivery failures are logged, never raised.
type WebhookNotifier struct {
	URL     string
	Secret  string
	Timeout time.Duration
	client  *http.Client
}

// NewWebhookNotifier builds a notifier posting to url. A non-positive
// timeout falls back to 5 seconds.
func NewWebhookNotifier(url, secret string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		URL:     url,
		Secret:  secret,
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// Notify implements Notifier. A blank URL makes this a no-op.
func (w *WebhookNotifier) Notify(event Event) {
	if w.URL == "" {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("alerts: webhook marshal failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		log.Printf("alerts: webhook request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Intercept-Alert")
	req.Header.Set("X-Alert-Token", w.Secret)

	resp, err := w.client.Do(req)
	if err != nil {
		log.Printf("alerts: webhook delivery failed: %v", err)
		return
	}
	defer resp.Body.Close()
}
