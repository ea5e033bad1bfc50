package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/domsense/domtrack/internal/browser"
)

// Browser mirrors a live page rendered by Chrome. Changes are reported by a
// MutationObserver injected in the page, with a slow poll as a safety net.
type Browser struct {
	mgr      *browser.Manager
	tab      *browser.Tab
	interval time.Duration
}

// OpenBrowser starts Chrome and opens url in a stealth tab.
func OpenBrowser(ctx context.Context, cfg browser.Config, url string, interval time.Duration) (*Browser, error) {
	mgr := browser.NewManager(cfg)
	if _, err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	tab, err := browser.OpenTab(ctx, mgr, url)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("source: %w", err)
	}
	return &Browser{mgr: mgr, tab: tab, interval: interval}, nil
}

func (b *Browser) Fetch(ctx context.Context) ([]byte, error) {
	return b.tab.OuterHTML(ctx)
}

func (b *Browser) Watch(ctx context.Context, changed func()) error {
	errc := make(chan error, 1)
	go func() { errc <- b.tab.WatchChanges(ctx, changed) }()
	err := poll(ctx, 4*b.interval, changed)
	if werr := <-errc; werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	return err
}

func (b *Browser) Close() error {
	return errors.Join(b.tab.Close(), b.mgr.Close())
}
