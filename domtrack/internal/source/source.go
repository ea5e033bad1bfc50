// Package source provides the page HTML domtrack mirrors into its document,
// and tells it when the page may have changed.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/domsense/domtrack/internal/browser"
	"github.com/hazyhaar/domsense/domtrack/internal/config"
)

// Source is a page whose HTML can be read repeatedly.
type Source interface {
	// Fetch returns the current HTML.
	Fetch(ctx context.Context) ([]byte, error)
	// Watch calls changed whenever the page may differ from the last Fetch.
	// It blocks until ctx is done.
	Watch(ctx context.Context, changed func()) error
	Close() error
}

// New builds the Source described by cfg.
func New(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Type {
	case "file":
		return NewFile(cfg.Path, logger), nil
	case "http":
		return NewHTTP(cfg.URL, cfg.PollInterval, logger), nil
	case "browser":
		return OpenBrowser(ctx, browser.Config{
			RemoteURL:        cfg.Remote,
			Headful:          cfg.Stealth == "headful",
			ResourceBlocking: cfg.ResourceBlocking,
			Logger:           logger,
		}, cfg.URL, cfg.PollInterval)
	default:
		return nil, fmt.Errorf("source: unknown type %q", cfg.Type)
	}
}

// poll calls changed every interval until ctx is done.
func poll(ctx context.Context, interval time.Duration, changed func()) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			changed()
		}
	}
}
