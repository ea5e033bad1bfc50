// CLAUDE:SUMMARY Watcher tracks the accepted candidates of one entity under a root and emits Added/Removed events per mutation batch.
package detect

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/dom"
	"github.com/hazyhaar/domsense/idgen"
	"github.com/hazyhaar/domsense/probe"
)

// Option configures a Watcher.
type Option func(*options)

type options struct {
	threshold float64
	logger    *slog.Logger
	clock     func() time.Time
	newID     idgen.Generator
	id        string
	grace     int
}

// WithThreshold sets the minimum score a candidate needs to be tracked.
// Default: 0, every candidate is tracked.
func WithThreshold(t float64) Option {
	return func(o *options) { o.threshold = t }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock sets the time source for FirstSeen and event times.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithIDGenerator sets the generator for match IDs. Default: "mat_" + UUIDv7.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithID sets the watcher's own ID. Default: "wch_" + UUIDv7.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithDetachGrace sets how many batches a detached match is held before it
// is reported Removed. A match whose node is reattached within the grace
// keeps its identity silently. 0 reports detachment in the batch that
// observes it. Default: 1.
func WithDetachGrace(batches int) Option {
	return func(o *options) {
		if batches < 0 {
			batches = 0
		}
		o.grace = batches
	}
}

// Watcher tracks the candidates of one entity below a root. All of its
// processing happens synchronously inside the document's record delivery.
// Entity code runs with the watcher's lock held and must not call back into
// the watcher.
type Watcher struct {
	id     string
	doc    *dom.Document
	root   *html.Node
	entity Entity
	nest   NestingPolicy
	opts   options
	logger *slog.Logger

	mu       sync.Mutex
	known    map[*html.Node]*entry
	rejected map[*html.Node]struct{}
	order    uint64
	batch    uint64
	started  bool
	stopped  bool
	obs      *dom.Observer
	unsettle func()

	subs        []*subscriber
	outbox      []outItem
	dispatching bool
	ended       bool
}

type entry struct {
	match  Match
	order  uint64
	held   bool
	heldAt uint64
	// Accepted while another match was held; Added not yet emitted.
	pending bool
}

type subscriber struct {
	onEvent func(Event)
	onEnd   func()
	gone    bool
}

type outItem struct {
	ev  Event
	end bool
}

// NewWatcher validates its arguments and returns an unstarted Watcher.
func NewWatcher(doc *dom.Document, root *html.Node, e Entity, opts ...Option) (*Watcher, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}
	if err := checkEntity(e); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: nil", ErrInvalidRoot)
	}
	if root.Type != html.ElementNode && root.Type != html.DocumentNode {
		return nil, fmt.Errorf("%w: not an element", ErrInvalidRoot)
	}
	if !doc.Connected(root) {
		return nil, fmt.Errorf("%w: not attached to the document", ErrInvalidRoot)
	}

	o := options{
		logger: slog.Default(),
		clock:  time.Now,
		newID:  idgen.Match(),
		grace:  1,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.id == "" {
		o.id = idgen.Watcher()()
	}

	w := &Watcher{
		id:       o.id,
		doc:      doc,
		root:     root,
		entity:   e,
		nest:     nestingOf(e),
		opts:     o,
		logger:   o.logger.With("watcher", o.id, "entity", e.Name()),
		known:    make(map[*html.Node]*entry),
		rejected: make(map[*html.Node]struct{}),
	}
	return w, nil
}

// ID returns the watcher's ID.
func (w *Watcher) ID() string { return w.id }

// Entity returns the watched entity.
func (w *Watcher) Entity() Entity { return w.entity }

// Root returns the watched root.
func (w *Watcher) Root() *html.Node { return w.root }

// Threshold returns the acceptance threshold.
func (w *Watcher) Threshold() float64 { return w.opts.threshold }

// Start runs the initial scan and begins observing the root. Events from
// the initial scan are delivered before Start returns.
func (w *Watcher) Start() error {
	w.mu.Lock()
	switch {
	case w.stopped:
		w.mu.Unlock()
		return ErrStopped
	case w.started:
		w.mu.Unlock()
		return ErrStarted
	}
	if !w.doc.Connected(w.root) {
		w.mu.Unlock()
		return fmt.Errorf("detect: start: %w: not attached to the document", ErrInvalidRoot)
	}
	obs, err := w.doc.Observe(w.root, dom.ObserveOptions{
		ChildList:     true,
		Attributes:    true,
		CharacterData: true,
		Subtree:       true,
	}, w.onBatch)
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("detect: start: %w", err)
	}
	w.started = true
	w.obs = obs
	w.unsettle = w.doc.OnSettle(w.onSettle)
	w.evaluate(w.find(w.root))
	tracked := len(w.known)
	w.mu.Unlock()

	w.logger.Debug("detect: watcher started", "tracked", tracked, "threshold", w.opts.threshold)
	w.dispatch()
	return nil
}

// Stop ends the watcher: it stops observing, reports Removed for every
// tracked match in first-seen order, then signals the end of the event
// sequence. Calling Stop again does nothing.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	obs, unsettle := w.obs, w.unsettle
	w.obs, w.unsettle = nil, nil
	removed := 0
	for _, e := range w.ordered() {
		if !e.pending {
			removed++
		}
		w.drop(e)
	}
	w.rejected = make(map[*html.Node]struct{})
	w.outbox = append(w.outbox, outItem{end: true})
	w.mu.Unlock()

	if obs != nil {
		obs.Disconnect()
	}
	if unsettle != nil {
		unsettle()
	}
	w.logger.Debug("detect: watcher stopped", "removed", removed)
	w.dispatch()
}

// Subscribe registers callbacks for events and for the end of the sequence.
// Subscribing after the end calls onEnd at once. Either callback may be nil.
func (w *Watcher) Subscribe(onEvent func(Event), onEnd func()) (unsubscribe func()) {
	w.mu.Lock()
	if w.ended {
		w.mu.Unlock()
		if onEnd != nil {
			w.call("end handler", onEnd)
		}
		return func() {}
	}
	s := &subscriber{onEvent: onEvent, onEnd: onEnd}
	w.subs = append(w.subs, s)
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		s.gone = true
		for i, x := range w.subs {
			if x == s {
				w.subs = append(w.subs[:i:i], w.subs[i+1:]...)
				break
			}
		}
	}
}

// Matches returns the announced matches in first-seen order. Matches whose
// Added is still deferred are left out.
func (w *Watcher) Matches() []Match {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Match, 0, len(w.known))
	for _, e := range w.ordered() {
		if !e.pending {
			out = append(out, e.match)
		}
	}
	return out
}

// Len returns the number of announced matches.
func (w *Watcher) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range w.known {
		if !e.pending {
			n++
		}
	}
	return n
}

func (w *Watcher) onBatch(records []dom.Record) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.batch++
	w.resolveHeld(false)
	w.sweep()
	w.scan(records)
	w.release()
	w.mu.Unlock()
	w.dispatch()
}

func (w *Watcher) onSettle() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.resolveHeld(true)
	w.release()
	w.mu.Unlock()
	w.dispatch()
}

// resolveHeld settles matches held since an earlier batch: reattached ones
// are tracked again, the rest are Removed. all ignores the grace.
func (w *Watcher) resolveHeld(all bool) {
	for _, e := range w.ordered() {
		if !e.held {
			continue
		}
		if !all && w.batch-e.heldAt < uint64(w.opts.grace) {
			continue
		}
		if w.inside(e.match.Node) && !safeGone(w.entity, e.match.Node) {
			e.held = false
			w.logger.Debug("detect: match reattached", "match", e.match.ID)
			continue
		}
		w.drop(e)
	}
}

// release emits the Added events deferred while a match was held, once no
// match is held any more.
func (w *Watcher) release() {
	entries := w.ordered()
	for _, e := range entries {
		if e.held {
			return
		}
	}
	for _, e := range entries {
		if e.pending {
			e.pending = false
			w.emit(Added, e.match)
		}
	}
}

// sweep notices tracked matches that left the root or tore down.
func (w *Watcher) sweep() {
	for _, e := range w.ordered() {
		if e.held {
			continue
		}
		n := e.match.Node
		if !w.inside(n) {
			if w.opts.grace == 0 || e.pending {
				w.drop(e)
				continue
			}
			e.held = true
			e.heldAt = w.batch
			continue
		}
		if safeGone(w.entity, n) {
			w.drop(e)
		}
	}
	for n := range w.rejected {
		if !w.inside(n) {
			delete(w.rejected, n)
		}
	}
}

// scan finds new candidates around the nodes a batch touched.
func (w *Watcher) scan(records []dom.Record) {
	contexts := make(map[*html.Node]struct{})
	var touched []*html.Node
	for _, r := range records {
		switch r.Type {
		case dom.ChildList:
			touched = append(touched, r.Target)
			for _, a := range r.AddedNodes {
				if _, ok := w.known[a]; ok {
					continue
				}
				if w.inside(a) {
					contexts[w.scope(a)] = struct{}{}
				}
			}
		case dom.Attributes:
			touched = append(touched, r.Target)
			if w.inside(r.Target) {
				contexts[w.scope(r.Target)] = struct{}{}
			}
		case dom.CharacterData:
			touched = append(touched, r.Target)
			if p := r.Target.Parent; p != nil && w.inside(p) {
				contexts[w.scope(p)] = struct{}{}
			}
		}
	}
	// Rejected candidates get another look when something inside them changed.
	for n := range w.rejected {
		for _, t := range touched {
			if dom.Contains(n, t) {
				contexts[w.scope(n)] = struct{}{}
				break
			}
		}
	}
	if len(contexts) == 0 {
		return
	}

	var roots []*html.Node
	for n := range contexts {
		covered := false
		for p := n.Parent; p != nil; p = p.Parent {
			if _, ok := contexts[p]; ok {
				covered = true
				break
			}
		}
		if !covered {
			roots = append(roots, n)
		}
	}
	dom.SortDocumentOrder(roots)

	var cands []*html.Node
	for _, ctx := range roots {
		cands = append(cands, w.find(ctx)...)
	}
	w.evaluate(cands)
}

type hit struct {
	node *html.Node
	rec  Record
}

// evaluate parses unknown candidates and tracks the accepted ones. Matches
// displaced by the nesting policy are Removed before any new match is Added.
// While a match is held, new matches stay pending until release.
func (w *Watcher) evaluate(cands []*html.Node) {
	holding := false
	for _, e := range w.known {
		if e.held {
			holding = true
			break
		}
	}
	seen := make(map[*html.Node]struct{}, len(cands))
	var hits []hit
	for _, n := range cands {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		if _, ok := w.known[n]; ok {
			continue
		}
		if !w.inside(n) {
			continue
		}
		if w.nest == NestOutermost && w.knownAncestor(n) != nil {
			continue
		}
		if safeGone(w.entity, n) {
			continue
		}
		rec := SafeParse(w.entity, n)
		_, again := w.rejected[n]
		if !again && !rec.OK() {
			probe.ReportFailures(w.logger, w.entity.Name(), rec.Probes, rec.Errors)
		}
		if rec.Score < w.opts.threshold {
			if !again {
				w.logger.Debug("detect: candidate below threshold", "score", rec.Score, "errors", len(rec.Errors))
			}
			w.rejected[n] = struct{}{}
			continue
		}
		delete(w.rejected, n)
		hits = append(hits, hit{node: n, rec: rec})
	}

	switch w.nest {
	case NestInnermost:
		for _, h := range hits {
			if e := w.knownAncestor(h.node); e != nil {
				w.drop(e)
			}
		}
	case NestOutermost:
		for _, h := range hits {
			for _, e := range w.ordered() {
				if e.match.Node != h.node && dom.Contains(h.node, e.match.Node) {
					w.drop(e)
				}
			}
		}
	}

	for _, h := range hits {
		w.order++
		e := &entry{
			match: Match{
				ID:        w.opts.newID(),
				Entity:    w.entity.Name(),
				Node:      h.node,
				Record:    h.rec,
				FirstSeen: w.opts.clock(),
			},
			order:   w.order,
			pending: holding,
		}
		w.known[h.node] = e
		if !holding {
			w.emit(Added, e.match)
		}
	}
}

func (w *Watcher) knownAncestor(n *html.Node) *entry {
	for p := n.Parent; p != nil; p = p.Parent {
		if e, ok := w.known[p]; ok && !e.held {
			return e
		}
		if p == w.root {
			break
		}
	}
	return nil
}

func (w *Watcher) find(ctx *html.Node) []*html.Node {
	cands, err := SafeFind(w.entity, ctx)
	if err != nil {
		w.logger.Warn("detect: finder failed", "error", err)
	}
	return cands
}

func (w *Watcher) scope(n *html.Node) *html.Node {
	s := safeScope(w.entity, n)
	if s == nil {
		s = n.Parent
	}
	if s == nil || !dom.Contains(w.root, s) {
		return w.root
	}
	return s
}

// inside reports whether n is in the watched subtree of the live document.
func (w *Watcher) inside(n *html.Node) bool {
	return dom.Contains(w.root, n) && w.doc.Connected(w.root)
}

func (w *Watcher) drop(e *entry) {
	if _, ok := w.known[e.match.Node]; !ok {
		return
	}
	delete(w.known, e.match.Node)
	if !e.pending {
		w.emit(Removed, e.match)
	}
}

func (w *Watcher) ordered() []*entry {
	out := make([]*entry, 0, len(w.known))
	for _, e := range w.known {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

func (w *Watcher) emit(t EventType, m Match) {
	w.outbox = append(w.outbox, outItem{ev: Event{Type: t, Match: m, At: w.opts.clock()}})
	w.logger.Debug("detect: "+t.String(), "match", m.ID, "score", m.Record.Score)
}

// dispatch delivers queued events. A dispatch started while another is in
// progress (a handler calling Stop, say) leaves its events to the running one.
func (w *Watcher) dispatch() {
	w.mu.Lock()
	if w.dispatching {
		w.mu.Unlock()
		return
	}
	w.dispatching = true
	for len(w.outbox) > 0 {
		item := w.outbox[0]
		w.outbox[0] = outItem{}
		w.outbox = w.outbox[1:]
		subs := make([]*subscriber, len(w.subs))
		copy(subs, w.subs)
		if item.end {
			w.ended = true
			w.subs = nil
		}
		w.mu.Unlock()

		for _, s := range subs {
			w.mu.Lock()
			gone := s.gone
			w.mu.Unlock()
			if gone {
				continue
			}
			switch {
			case item.end && s.onEnd != nil:
				w.call("end handler", s.onEnd)
			case !item.end && s.onEvent != nil:
				ev, fn := item.ev, s.onEvent
				w.call("event handler", func() { fn(ev) })
			}
		}
		w.mu.Lock()
	}
	w.dispatching = false
	w.mu.Unlock()
}

func (w *Watcher) call(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn("detect: handler panicked", "handler", what, "panic", r)
		}
	}()
	fn()
}
