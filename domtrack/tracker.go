// Package domtrack runs detection watchers over a page that keeps changing.
// It mirrors the page into a dom.Document (from a file, an HTTP URL or a
// live Chrome tab), starts one watcher per configured entity, and reports
// every match that appears or disappears to sinks (stdout, webhook, SQLite,
// in-process callback).
//
// The document is single-threaded: every mutation, flush and watcher call
// happens on the goroutine running its loop. Queries from other goroutines
// (HTTP, MCP) are posted to that loop.
package domtrack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/detect"
	"github.com/hazyhaar/domsense/dom"
	"github.com/hazyhaar/domsense/domtrack/event"
	"github.com/hazyhaar/domsense/domtrack/internal/sink"
	"github.com/hazyhaar/domsense/domtrack/internal/source"
	"github.com/hazyhaar/domsense/probe"
)

var (
	ErrNotStarted = errors.New("domtrack: not started")
	ErrRunning    = errors.New("domtrack: already started")
	ErrStopped    = errors.New("domtrack: stopped")
)

// Tracker is the top-level orchestrator. Create one per page.
type Tracker struct {
	cfg     *Config
	reg     *detect.Registry
	logger  *slog.Logger
	router  *sink.Router
	builder *event.Builder
	store   *Store

	src       source.Source
	refreshMu sync.Mutex

	mu       sync.Mutex
	doc      *dom.Document
	watchers []*tracked
	live     bool
	stopped  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
}

type tracked struct {
	cfg WatcherConfig
	w   *detect.Watcher
	// Match ID to placement at Added time. Loop goroutine only.
	placed map[string]event.Placement
}

// MatchSummary is a tracked or scanned match as reported to callers.
type MatchSummary struct {
	ID         string          `json:"id,omitempty"`
	Entity     string          `json:"entity"`
	WatcherID  string          `json:"watcher_id,omitempty"`
	XPath      string          `json:"xpath"`
	Score      float64         `json:"score"`
	Probes     int             `json:"probes"`
	Errors     []probe.Failure `json:"errors,omitempty"`
	Attributes map[string]any  `json:"attributes,omitempty"`
	FirstSeen  *time.Time      `json:"first_seen,omitempty"`
}

// WatcherInfo describes a running watcher.
type WatcherInfo struct {
	ID        string  `json:"id"`
	Entity    string  `json:"entity"`
	Root      string  `json:"root"`
	Threshold float64 `json:"threshold"`
	Matches   int     `json:"matches"`
}

// New creates a Tracker. Sinks passed here are called on the document loop
// and must not block; BuildSinks returns queued ones.
func New(cfg *Config, reg *detect.Registry, logger *slog.Logger, sinks ...Sink) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []event.BuilderOption{
		event.WithPageID(cfg.PageID),
		event.WithSnippetLimit(cfg.Snippet.MaxLen),
	}
	if cfg.Snippet.NoPreview {
		opts = append(opts, event.WithoutPreview())
	}
	return &Tracker{
		cfg:     cfg,
		reg:     reg,
		logger:  logger,
		router:  sink.NewRouter(logger, sinks...),
		builder: event.NewBuilder(opts...),
	}
}

// SetStore attaches the detection log used for Stats.
func (t *Tracker) SetStore(st *Store) { t.store = st }

// Start loads the page, starts every configured watcher and begins
// following page changes. The initial matches are reported before Start
// returns. Cancelling ctx stops the loop; call Stop to release everything.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.stopped:
		return ErrStopped
	case t.doc != nil:
		return ErrRunning
	}

	src := t.src
	if src == nil {
		s, err := source.New(ctx, t.cfg.Source, t.logger)
		if err != nil {
			return fmt.Errorf("domtrack: source: %w", err)
		}
		src = s
	}
	data, err := src.Fetch(ctx)
	if err != nil {
		src.Close()
		return fmt.Errorf("domtrack: initial fetch: %w", err)
	}
	doc, err := dom.Parse(bytes.NewReader(data),
		dom.WithLogger(t.logger),
		dom.WithBatching(t.cfg.Debounce.Window, t.cfg.Debounce.MaxBuffer),
		dom.WithSettleAfter(t.cfg.Debounce.SettleAfter),
	)
	if err != nil {
		src.Close()
		return fmt.Errorf("domtrack: parse page: %w", err)
	}

	for _, wc := range t.cfg.Watchers {
		tw, err := t.startWatcher(doc, wc)
		if err != nil {
			for _, started := range t.watchers {
				started.w.Stop()
			}
			t.watchers = nil
			src.Close()
			return err
		}
		t.watchers = append(t.watchers, tw)
	}

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := doc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Warn("domtrack: document loop ended", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := src.Watch(runCtx, func() { t.refresh(runCtx, src, doc) }); err != nil && runCtx.Err() == nil {
			t.logger.Error("domtrack: source watch failed", "error", err)
		}
	}()
	loopDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(loopDone)
	}()

	t.src, t.doc, t.cancel, t.loopDone, t.live = src, doc, cancel, loopDone, true
	t.logger.Info("domtrack: started", "page_id", t.cfg.PageID, "source", t.cfg.Source.Type, "watchers", len(t.watchers))
	return nil
}

func (t *Tracker) startWatcher(doc *dom.Document, wc WatcherConfig) (*tracked, error) {
	sel, err := dom.Compile(wc.Root)
	if err != nil {
		return nil, fmt.Errorf("domtrack: watcher %s: root: %w", wc.Entity, err)
	}
	root := dom.QueryFirst(doc.Root(), sel)
	if root == nil {
		return nil, fmt.Errorf("domtrack: watcher %s: no element matches root %q", wc.Entity, wc.Root)
	}
	opts := []detect.Option{
		detect.WithThreshold(wc.Threshold),
		detect.WithLogger(t.logger),
	}
	if wc.DetachGrace != nil {
		opts = append(opts, detect.WithDetachGrace(*wc.DetachGrace))
	}
	w, err := t.reg.Watch(doc, root, wc.Entity, opts...)
	if err != nil {
		return nil, fmt.Errorf("domtrack: watcher %s: %w", wc.Entity, err)
	}
	tw := &tracked{cfg: wc, w: w, placed: make(map[string]event.Placement)}
	w.Subscribe(
		func(ev detect.Event) { t.emit(tw, ev) },
		func() { t.logger.Info("domtrack: watcher ended", "watcher_id", w.ID(), "entity", wc.Entity) },
	)
	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("domtrack: watcher %s: %w", wc.Entity, err)
	}
	return tw, nil
}

func (t *Tracker) emit(tw *tracked, ev detect.Event) {
	var at *event.Placement
	switch ev.Type {
	case detect.Added:
		p := event.Place(ev.Match)
		tw.placed[ev.Match.ID] = p
		at = &p
	case detect.Removed:
		if p, ok := tw.placed[ev.Match.ID]; ok {
			at = &p
			delete(tw.placed, ev.Match.ID)
		}
	}
	d := t.builder.Build(tw.w.ID(), ev, at)
	if d.Score < 1 {
		t.logger.Debug("domtrack: degraded match", "entity", d.Entity, "match_id", d.MatchID, "score", d.Score, "errors", len(d.Errors))
	}
	// Router logs each failing sink.
	_ = t.router.Send(context.Background(), d)
}

// refresh re-reads the page and reconciles the document with it.
func (t *Tracker) refresh(ctx context.Context, src source.Source, doc *dom.Document) {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	data, err := src.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("domtrack: refresh fetch failed", "error", err)
		}
		return
	}
	fresh, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		t.logger.Warn("domtrack: refresh parse failed", "error", err)
		return
	}
	done := make(chan struct{})
	doc.Post(func() {
		defer close(done)
		if err := doc.Reconcile(doc.Root(), fresh); err != nil {
			t.logger.Warn("domtrack: reconcile failed", "error", err)
		}
	})
	// Wait so refreshes apply in fetch order.
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Stop halts the loop, stops every watcher (reporting Removed for each
// remaining match), drains and closes the sinks, and closes the source.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doc == nil || t.stopped {
		t.stopped = true
		return nil
	}
	t.stopped, t.live = true, false
	t.cancel()
	<-t.loopDone

	for _, tw := range t.watchers {
		tw.w.Stop()
	}
	err := errors.Join(t.router.Close(), t.src.Close())
	t.logger.Info("domtrack: stopped", "page_id", t.cfg.PageID)
	return err
}

// onLoop runs fn on the document goroutine, or directly once the loop has
// exited.
func (t *Tracker) onLoop(ctx context.Context, fn func()) error {
	t.mu.Lock()
	doc, live, loopDone := t.doc, t.live, t.loopDone
	if doc == nil {
		t.mu.Unlock()
		return ErrNotStarted
	}
	if !live {
		defer t.mu.Unlock()
		fn()
		return nil
	}
	t.mu.Unlock()

	done := make(chan struct{})
	doc.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-loopDone:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Watchers lists the configured watchers.
func (t *Tracker) Watchers() []WatcherInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WatcherInfo, 0, len(t.watchers))
	for _, tw := range t.watchers {
		out = append(out, WatcherInfo{
			ID:        tw.w.ID(),
			Entity:    tw.cfg.Entity,
			Root:      tw.cfg.Root,
			Threshold: tw.w.Threshold(),
			Matches:   tw.w.Len(),
		})
	}
	return out
}

// Matches returns the tracked matches of every watcher for entity, or of
// all watchers when entity is empty.
func (t *Tracker) Matches(ctx context.Context, entity string) ([]MatchSummary, error) {
	var out []MatchSummary
	err := t.onLoop(ctx, func() {
		for _, tw := range t.watchers {
			if entity != "" && tw.cfg.Entity != entity {
				continue
			}
			for _, m := range tw.w.Matches() {
				s := summarize(m.Entity, m.Node, m.Record)
				s.ID, s.WatcherID = m.ID, tw.w.ID()
				if p, ok := tw.placed[m.ID]; ok {
					s.XPath = p.XPath
				}
				first := m.FirstSeen
				s.FirstSeen = &first
				out = append(out, s)
			}
		}
	})
	return out, err
}

// Stats returns the detection log statistics, or nil without a store.
func (t *Tracker) Stats(ctx context.Context) ([]EntityStats, error) {
	if t.store == nil {
		return nil, nil
	}
	return t.store.Stats(ctx)
}

// Registry returns the entity registry.
func (t *Tracker) Registry() *detect.Registry { return t.reg }

func summarize(entity string, n *html.Node, r detect.Record) MatchSummary {
	return MatchSummary{
		Entity:     entity,
		XPath:      dom.XPath(n),
		Score:      r.Score,
		Probes:     r.Probes,
		Errors:     r.Errors,
		Attributes: r.Attributes,
	}
}
