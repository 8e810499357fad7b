// Package webhook posts job events as JSON to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/prism/internal/notifier"
)

// Webhook delivers events to a single URL.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

var _ notifier.Notifier = (*Webhook)(nil)

func New(url string, headers map[string]string) *Webhook {
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

// payload is the event plus a routing key, e.g. "backtest.failed".
type payload struct {
	Type string `json:"type"`
	notifier.Event
}

func (w *Webhook) Notify(ctx context.Context, e notifier.Event) error {
	body, err := json.Marshal(payload{Type: "backtest." + e.Status, Event: e})
	if err != nil {
		return fmt.Errorf("webhook: encoding event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "prism-webhook/1")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: posting event %s: %w", e.JobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			return fmt.Errorf("webhook: %s returned %d: %s", w.url, resp.StatusCode, msg)
		}
		return fmt.Errorf("webhook: %s returned %d", w.url, resp.StatusCode)
	}
	return nil
}
