package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/domsense/domtrack/event"
)

// Headers set on every webhook delivery. The event ID doubles as an
// idempotency key since retries resend the same detection.
const (
	HeaderEvent  = "X-Domtrack-Event"
	HeaderEntity = "X-Domtrack-Entity"
	HeaderID     = "Idempotency-Key"
)

// errPermanent marks a response that retrying cannot fix.
var errPermanent = errors.New("webhook: rejected")

// Webhook POSTs each detection as JSON. 5xx, 408, 429 and transport errors
// are retried with exponential backoff; other 4xx fail at once.
type Webhook struct {
	url     string
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the number of retries after the first attempt.
// Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.retries = n }
}

// WithWebhookBackoff sets the first retry delay; later retries double it.
// Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookClient replaces the HTTP client.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook sink for url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		retries: 3,
		backoff: time.Second,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Send(ctx context.Context, d event.Detection) error {
	body, err := event.Marshal(&d)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	delay := w.backoff
	var lastErr error
	for attempt := 1; attempt <= w.retries+1; attempt++ {
		lastErr = w.post(ctx, &d, body)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errPermanent) || ctx.Err() != nil {
			break
		}
		w.logger.Warn("webhook: delivery failed", "attempt", attempt, "event_id", d.ID, "error", lastErr)
		if attempt > w.retries {
			break
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		delay *= 2
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("webhook: %s not delivered: %w", d.ID, lastErr)
}

func (w *Webhook) post(ctx context.Context, d *event.Detection, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(d.Type))
	req.Header.Set(HeaderEntity, d.Entity)
	if d.ID != "" {
		req.Header.Set(HeaderID, d.ID)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return fmt.Errorf("status %d", code)
	default:
		return fmt.Errorf("%w: status %d", errPermanent, code)
	}
}

func (w *Webhook) Close() error { return nil }
