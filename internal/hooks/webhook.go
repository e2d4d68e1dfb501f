package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// WebhookHook POSTs the event as JSON. Server errors and transport
// failures are retried; client errors are not.
type WebhookHook struct {
	events
	name     string
	url      string
	headers  map[string]string
	client   *http.Client
	maxTries uint
}

// NewWebhookHook creates a webhook hook.
func NewWebhookHook(c Config, client *http.Client) (*WebhookHook, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("hook %q: url required", c.Name)
	}
	if client == nil {
		client = &http.Client{Timeout: timeoutOr(c.Timeout)}
	}
	return &WebhookHook{
		events:   c.Events,
		name:     c.Name,
		url:      c.URL,
		headers:  c.Headers,
		client:   client,
		maxTries: 3,
	}, nil
}

func (h *WebhookHook) Name() string { return h.name }

func (h *WebhookHook) Execute(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, h.post(ctx, payload)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(h.maxTries),
	)
	return err
}

func (h *WebhookHook) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "releasekit")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
}
