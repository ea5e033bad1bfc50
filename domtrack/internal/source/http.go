package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// maxBody caps a fetched page.
const maxBody = 10 << 20

// ErrTooLarge is returned for a page over the body limit.
var ErrTooLarge = errors.New("page exceeds body limit")

// HTTP fetches a page with conditional GET. Watch polls and only reports a
// change when the server sends a different body.
type HTTP struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
	limit    int64

	mu      sync.Mutex
	etag    string
	lastMod string
	body    []byte
}

// NewHTTP returns an HTTP source polling url every interval.
func NewHTTP(url string, interval time.Duration, logger *slog.Logger) *HTTP {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
		limit:    maxBody,
	}
}

// Fetch returns the page. A 304 answer returns the cached body.
func (h *HTTP) Fetch(ctx context.Context) ([]byte, error) {
	body, _, err := h.fetch(ctx)
	return body, err
}

func (h *HTTP) fetch(ctx context.Context) (body []byte, changed bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("source: new request: %w", err)
	}
	h.mu.Lock()
	if h.etag != "" {
		req.Header.Set("If-None-Match", h.etag)
	}
	if h.lastMod != "" {
		req.Header.Set("If-Modified-Since", h.lastMod)
	}
	h.mu.Unlock()

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("source: get %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	if resp.StatusCode == http.StatusNotModified && h.body != nil {
		return h.body, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("source: get %s: status %d", h.url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, h.limit+1))
	if err != nil {
		return nil, false, fmt.Errorf("source: read body: %w", err)
	}
	if int64(len(data)) > h.limit {
		return nil, false, fmt.Errorf("source: get %s: %w (%d bytes)", h.url, ErrTooLarge, h.limit)
	}
	changed = !bytes.Equal(data, h.body)
	h.body = data
	h.etag = resp.Header.Get("ETag")
	h.lastMod = resp.Header.Get("Last-Modified")
	return data, changed, nil
}

func (h *HTTP) Watch(ctx context.Context, changed func()) error {
	return poll(ctx, h.interval, func() {
		_, ok, err := h.fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("source: poll failed", "url", h.url, "error", err)
			}
			return
		}
		if ok {
			changed()
		}
	})
}

func (h *HTTP) Close() error { return nil }
