package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// bindingName is the page function the injected observer calls.
const bindingName = "__domsense_changed"

// changeJS installs a MutationObserver that pings the binding at most once
// per animation frame.
const changeJS = `() => {
	if (window.__domsense_observer) return;
	let pending = false;
	const ping = () => {
		if (pending) return;
		pending = true;
		requestAnimationFrame(() => { pending = false; window.` + bindingName + `(""); });
	};
	window.__domsense_observer = new MutationObserver(ping);
	window.__domsense_observer.observe(document, {
		childList: true, attributes: true, characterData: true, subtree: true,
	});
}`

// Tab is a stealth page opened on one URL.
type Tab struct {
	Page    *rod.Page
	PageURL string
}

// OpenTab creates a stealth tab, applies resource blocking and navigates.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		applyResourceBlocking(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL}, nil
}

// OuterHTML serialises the live DOM.
func (t *Tab) OuterHTML(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: get DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// WatchChanges calls notify whenever the page's DOM changes. It blocks until
// ctx is done.
func (t *Tab) WatchChanges(ctx context.Context, notify func()) error {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(t.Page); err != nil {
		return fmt.Errorf("browser: add binding: %w", err)
	}
	page := t.Page.Context(ctx)
	wait := page.EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == bindingName {
			notify()
		}
	})
	if _, err := page.Eval(changeJS); err != nil {
		return fmt.Errorf("browser: inject observer: %w", err)
	}
	wait()
	return ctx.Err()
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
