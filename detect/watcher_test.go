package detect

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/dom"
	"github.com/hazyhaar/domsense/idgen"
	"github.com/hazyhaar/domsense/probe"
)

type recorder struct {
	events []Event
	ended  int
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) reset() { r.events = nil }

func watch(t *testing.T, d *dom.Document, root *html.Node, e Entity, opts ...Option) (*Watcher, *recorder) {
	t.Helper()
	opts = append([]Option{WithIDGenerator(idgen.Sequential("m"))}, opts...)
	w, err := NewWatcher(d, root, e, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	r := &recorder{}
	w.Subscribe(func(ev Event) { r.events = append(r.events, ev) }, func() { r.ended++ })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return w, r
}

func TestNewWatcher_Misuse(t *testing.T) {
	d := parsePage(t, cardsPage)
	detached := &html.Node{Type: html.ElementNode, Data: "div"}
	text := find(t, d, "h2").FirstChild

	if _, err := NewWatcher(nil, d.Root(), card); !errors.Is(err, ErrNilDocument) {
		t.Errorf("nil doc: got %v", err)
	}
	if _, err := NewWatcher(d, nil, card); !errors.Is(err, ErrInvalidRoot) {
		t.Errorf("nil root: got %v", err)
	}
	if _, err := NewWatcher(d, detached, card); !errors.Is(err, ErrInvalidRoot) {
		t.Errorf("detached root: got %v", err)
	}
	if _, err := NewWatcher(d, text, card); !errors.Is(err, ErrInvalidRoot) {
		t.Errorf("text root: got %v", err)
	}
	if _, err := NewWatcher(d, d.Root(), nil); !errors.Is(err, ErrInvalidEntity) {
		t.Errorf("nil entity: got %v", err)
	}
}

func TestWatcher_InitialPass(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)

	if len(r.events) != 2 {
		t.Fatalf("events: got %d, want 2", len(r.events))
	}
	if r.events[0].Type != Added || dom.AttrOr(r.events[0].Match.Node, "id", "") != "c1" {
		t.Errorf("event[0]: got %v %s", r.events[0].Type, dom.AttrOr(r.events[0].Match.Node, "id", ""))
	}
	if r.events[1].Match.Record.Score != 0.5 {
		t.Errorf("c2 score: got %v, want 0.5", r.events[1].Match.Record.Score)
	}
	if r.events[0].Match.ID != "m1" || r.events[0].Match.Entity != "card" {
		t.Errorf("match: id=%q entity=%q", r.events[0].Match.ID, r.events[0].Match.Entity)
	}
	if w.Len() != 2 {
		t.Errorf("Len: got %d, want 2", w.Len())
	}
	if err := w.Start(); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start: got %v", err)
	}
}

func TestWatcher_Liveness(t *testing.T) {
	d := parsePage(t, `<html><body><div id="list"></div></body></html>`)
	_, r := watch(t, d, d.Root(), card)
	if len(r.events) != 0 {
		t.Fatalf("initial events: got %d, want 0", len(r.events))
	}

	c := newCard("c3", false)
	if err := d.AppendChild(find(t, d, "#list"), c); err != nil {
		t.Fatal(err)
	}
	d.Flush()

	if len(r.events) != 1 || r.events[0].Type != Added {
		t.Fatalf("events: got %d, want one Added", len(r.events))
	}
	m := r.events[0].Match
	if m.Node != c {
		t.Error("match identity is not the inserted node")
	}
	direct := card.Parse(c)
	if m.Record.Score != direct.Score || len(m.Record.Errors) != len(direct.Errors) {
		t.Errorf("score: got %v, direct parse %v", m.Record.Score, direct.Score)
	}
}

func TestWatcher_NestedInsertion(t *testing.T) {
	d := parsePage(t, `<html><body><div id="list"></div></body></html>`)
	_, r := watch(t, d, d.Root(), card)

	wrapper := &html.Node{Type: html.ElementNode, Data: "section"}
	wrapper.AppendChild(newCard("deep", true))
	if err := d.AppendChild(find(t, d, "#list"), wrapper); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if r.count(Added) != 1 {
		t.Errorf("Added: got %d, want 1", r.count(Added))
	}
}

func TestWatcher_MoveWithinBatch(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)
	r.reset()

	if err := d.AppendChild(find(t, d, "#other"), find(t, d, "#c1")); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(r.events) != 0 {
		t.Errorf("events after move: got %d, want 0", len(r.events))
	}
	if w.Len() != 2 {
		t.Errorf("Len: got %d, want 2", w.Len())
	}
}

func TestWatcher_ReattachAcrossBatches(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)
	r.reset()
	c1, list := find(t, d, "#c1"), find(t, d, "#list")

	if err := d.Remove(c1); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if err := d.AppendChild(list, c1); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	// A later unrelated batch must not resurrect anything either.
	if err := d.SetAttr(list, "data-tick", "1"); err != nil {
		t.Fatal(err)
	}
	d.Flush()

	if len(r.events) != 0 {
		t.Errorf("events: got %d, want 0", len(r.events))
	}
	if w.Len() != 2 {
		t.Errorf("Len: got %d, want 2", w.Len())
	}
}

func TestWatcher_RemovalIsPrunedOnNextBatch(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)
	r.reset()
	c1, list := find(t, d, "#c1"), find(t, d, "#list")

	if err := d.Remove(c1); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(r.events) != 0 {
		t.Fatalf("events during grace: got %d, want 0", len(r.events))
	}

	if err := d.SetAttr(list, "data-tick", "1"); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(r.events) != 1 || r.events[0].Type != Removed || r.events[0].Match.Node != c1 {
		t.Fatalf("events: got %v, want one Removed for c1", r.events)
	}
	if w.Len() != 1 {
		t.Errorf("Len: got %d, want 1", w.Len())
	}
}

func TestWatcher_SettleResolvesHeld(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)
	r.reset()

	if err := d.Remove(find(t, d, "#c2")); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if w.Len() != 2 {
		t.Fatalf("Len during grace: got %d, want 2", w.Len())
	}
	d.Settle()
	if r.count(Removed) != 1 || w.Len() != 1 {
		t.Errorf("after settle: removed=%d len=%d", r.count(Removed), w.Len())
	}
}

func TestWatcher_NoGrace(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card, WithDetachGrace(0))
	r.reset()

	if err := d.Remove(find(t, d, "#c1")); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if r.count(Removed) != 1 || w.Len() != 1 {
		t.Errorf("removed=%d len=%d, want 1 and 1", r.count(Removed), w.Len())
	}
}

func TestWatcher_RemovedBeforeAdded(t *testing.T) {
	d := parsePage(t, cardsPage)
	_, r := watch(t, d, d.Root(), card, WithDetachGrace(0))
	r.reset()
	list := find(t, d, "#list")

	if err := d.AppendChild(list, newCard("c3", true)); err != nil {
		t.Fatal(err)
	}
	if err := d.Remove(find(t, d, "#c1")); err != nil {
		t.Fatal(err)
	}
	d.Flush()

	if len(r.events) != 2 {
		t.Fatalf("events: got %d, want 2", len(r.events))
	}
	if r.events[0].Type != Removed || r.events[1].Type != Added {
		t.Errorf("order: got %v then %v", r.events[0].Type, r.events[1].Type)
	}
}

func TestWatcher_ReplacementWaitsForHeldRemoval(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)
	r.reset()
	c1, list := find(t, d, "#c1"), find(t, d, "#list")
	c1b := newCard("c1b", true)

	if err := d.InsertBefore(list, c1b, c1); err != nil {
		t.Fatal(err)
	}
	if err := d.Remove(c1); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(r.events) != 0 {
		t.Fatalf("events during grace: got %v, want none", r.events)
	}
	if w.Len() != 2 {
		t.Fatalf("Len during grace: got %d, want 2", w.Len())
	}

	d.Settle()
	if len(r.events) != 2 {
		t.Fatalf("events after settle: got %d, want 2", len(r.events))
	}
	if r.events[0].Type != Removed || r.events[0].Match.Node != c1 {
		t.Errorf("event[0]: got %v %s, want Removed c1", r.events[0].Type, dom.AttrOr(r.events[0].Match.Node, "id", ""))
	}
	if r.events[1].Type != Added || r.events[1].Match.Node != c1b {
		t.Errorf("event[1]: got %v %s, want Added c1b", r.events[1].Type, dom.AttrOr(r.events[1].Match.Node, "id", ""))
	}
	if w.Len() != 2 {
		t.Errorf("Len: got %d, want 2", w.Len())
	}
}

func TestWatcher_DeferredAddedReleasedOnNextBatch(t *testing.T) {
	d := parsePage(t, cardsPage)
	_, r := watch(t, d, d.Root(), card)
	r.reset()
	list := find(t, d, "#list")

	if err := d.Remove(find(t, d, "#c2")); err != nil {
		t.Fatal(err)
	}
	if err := d.AppendChild(list, newCard("c3", true)); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if err := d.SetAttr(list, "data-tick", "1"); err != nil {
		t.Fatal(err)
	}
	d.Flush()

	if len(r.events) != 2 || r.events[0].Type != Removed || r.events[1].Type != Added {
		t.Fatalf("events: got %v, want Removed then Added", r.events)
	}
}

func TestWatcher_DeferredAddedAfterReattach(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)
	r.reset()
	c1, list := find(t, d, "#c1"), find(t, d, "#list")
	c3 := newCard("c3", true)

	if err := d.Remove(c1); err != nil {
		t.Fatal(err)
	}
	if err := d.AppendChild(list, c3); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if err := d.AppendChild(list, c1); err != nil {
		t.Fatal(err)
	}
	d.Flush()

	if len(r.events) != 1 || r.events[0].Type != Added || r.events[0].Match.Node != c3 {
		t.Fatalf("events: got %v, want one Added for c3", r.events)
	}
	if ms := w.Matches(); len(ms) != 3 || ms[2].Node != c3 {
		t.Errorf("Matches: got %d, want 3 ending with c3", len(ms))
	}
}

func TestWatcher_DeferredMatchGoneSilently(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)
	r.reset()
	list := find(t, d, "#list")
	c3 := newCard("c3", true)

	if err := d.Remove(find(t, d, "#c1")); err != nil {
		t.Fatal(err)
	}
	if err := d.AppendChild(list, c3); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if err := d.Remove(c3); err != nil {
		t.Fatal(err)
	}
	d.Settle()

	if len(r.events) != 1 || r.events[0].Type != Removed || dom.AttrOr(r.events[0].Match.Node, "id", "") != "c1" {
		t.Fatalf("events: got %v, want one Removed for c1", r.events)
	}
	if w.Len() != 1 {
		t.Errorf("Len: got %d, want 1", w.Len())
	}
}

func TestWatcher_LogsProbeFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := parsePage(t, cardsPage)
	watch(t, d, d.Root(), card, WithLogger(logger))

	out := buf.String()
	if !strings.Contains(out, `probe="ok flag"`) || !strings.Contains(out, "parser=card") {
		t.Fatalf("log: got %q, want the failed ok flag probe", out)
	}
	if strings.Contains(out, "level=WARN") {
		t.Errorf("log: got warn output for a degraded parse: %s", out)
	}
}

func TestWatcher_Teardown(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)
	r.reset()
	c1 := find(t, d, "#c1")

	if err := d.SetAttr(c1, "data-gone", "1"); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(r.events) != 1 || r.events[0].Type != Removed || r.events[0].Match.Node != c1 {
		t.Fatalf("events: got %v, want one Removed", r.events)
	}
	if w.Len() != 1 {
		t.Errorf("Len: got %d, want 1", w.Len())
	}
}

func TestWatcher_Threshold(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card, WithThreshold(1))
	if len(r.events) != 1 {
		t.Fatalf("initial events: got %d, want 1", len(r.events))
	}
	r.reset()

	// The rejected candidate gains its missing marker.
	if err := d.SetAttr(find(t, d, "#c2"), "data-ok", ""); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(r.events) != 1 || r.events[0].Type != Added || r.events[0].Match.Record.Score != 1 {
		t.Fatalf("events: got %v, want one Added with score 1", r.events)
	}
	if w.Threshold() != 1 || w.Len() != 2 {
		t.Errorf("threshold=%v len=%d", w.Threshold(), w.Len())
	}
}

func TestWatcher_RejectedReevaluatedOnInnerChange(t *testing.T) {
	d := parsePage(t, `<html><body><div id="list"><div class="card" id="c9" data-ok=""></div></div></body></html>`)
	_, r := watch(t, d, d.Root(), card, WithThreshold(1))
	if len(r.events) != 0 {
		t.Fatalf("initial events: got %d, want 0", len(r.events))
	}
	c9 := find(t, d, "#c9")
	h := &html.Node{Type: html.ElementNode, Data: "h2"}
	// The title lands two levels below the candidate.
	inner := &html.Node{Type: html.ElementNode, Data: "div"}
	if err := d.AppendChild(c9, inner); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if err := d.AppendChild(inner, h); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if r.count(Added) != 1 {
		t.Errorf("Added: got %d, want 1", r.count(Added))
	}
}

func TestWatcher_Stop(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)
	r.reset()

	w.Stop()
	if r.count(Removed) != 2 || len(r.events) != 2 {
		t.Fatalf("events: got %d (removed %d), want 2 Removed", len(r.events), r.count(Removed))
	}
	if r.ended != 1 {
		t.Fatalf("ended: got %d, want 1", r.ended)
	}
	if w.Len() != 0 {
		t.Errorf("Len: got %d, want 0", w.Len())
	}

	w.Stop()
	if len(r.events) != 2 || r.ended != 1 {
		t.Errorf("second Stop emitted: events=%d ended=%d", len(r.events), r.ended)
	}

	if err := d.AppendChild(find(t, d, "#list"), newCard("late", true)); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(r.events) != 2 {
		t.Errorf("events after Stop: got %d", len(r.events))
	}
	if err := w.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after Stop: got %v", err)
	}
}

func TestWatcher_StopIncludesHeld(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, r := watch(t, d, d.Root(), card)
	r.reset()
	if err := d.Remove(find(t, d, "#c1")); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	w.Stop()
	if r.count(Removed) != 2 {
		t.Errorf("Removed: got %d, want 2", r.count(Removed))
	}
}

func TestWatcher_StopFromHandler(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, err := NewWatcher(d, d.Root(), card)
	if err != nil {
		t.Fatal(err)
	}
	var types []EventType
	ended := 0
	w.Subscribe(func(ev Event) {
		types = append(types, ev.Type)
		w.Stop()
	}, func() { ended++ })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	want := []EventType{Added, Added, Removed, Removed}
	if len(types) != len(want) {
		t.Fatalf("events: got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, types[i], want[i])
		}
	}
	if ended != 1 {
		t.Errorf("ended: got %d, want 1", ended)
	}
}

func TestWatcher_HandlerPanicContained(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, err := NewWatcher(d, d.Root(), card)
	if err != nil {
		t.Fatal(err)
	}
	w.Subscribe(func(Event) { panic("handler") }, nil)
	got := 0
	w.Subscribe(func(Event) { got++ }, nil)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("events: got %d, want 2", got)
	}
}

func TestWatcher_Unsubscribe(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, err := NewWatcher(d, d.Root(), card)
	if err != nil {
		t.Fatal(err)
	}
	got := 0
	unsub := w.Subscribe(func(Event) { got++ }, nil)
	unsub()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("events after unsubscribe: got %d", got)
	}
}

func TestWatcher_SubscribeAfterEnd(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, _ := watch(t, d, d.Root(), card)
	w.Stop()
	ended := false
	w.Subscribe(nil, func() { ended = true })
	if !ended {
		t.Error("late subscriber did not get the end signal")
	}
}

func TestWatcher_OverlappingWatchers(t *testing.T) {
	d := parsePage(t, cardsPage)
	all, ra := watch(t, d, d.Root(), card)
	strict, rs := watch(t, d, find(t, d, "#list"), card, WithThreshold(1))
	if all.Len() != 2 || strict.Len() != 1 {
		t.Fatalf("Len: all=%d strict=%d", all.Len(), strict.Len())
	}
	ra.reset()
	rs.reset()

	if err := d.AppendChild(find(t, d, "#list"), newCard("c3", true)); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if ra.count(Added) != 1 || rs.count(Added) != 1 {
		t.Errorf("Added: all=%d strict=%d", ra.count(Added), rs.count(Added))
	}

	strict.Stop()
	if all.Len() != 3 {
		t.Errorf("stopping one watcher affected another: Len %d", all.Len())
	}
}

func TestWatcher_OutsideRootIgnored(t *testing.T) {
	d := parsePage(t, cardsPage)
	_, r := watch(t, d, find(t, d, "#list"), card)
	r.reset()
	if err := d.AppendChild(find(t, d, "#other"), newCard("c3", true)); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(r.events) != 0 {
		t.Errorf("events: got %d, want 0", len(r.events))
	}
}

func TestWatcher_PanickingEntityContained(t *testing.T) {
	d := parsePage(t, cardsPage)
	bad := MustDefine(Descriptor{
		Name:  "bad",
		Find:  MustSelect("div.card"),
		Parse: func(*html.Node) Record { panic("parser") },
	})
	w, r := watch(t, d, d.Root(), bad)
	if len(r.events) != 2 {
		t.Fatalf("events: got %d, want 2", len(r.events))
	}
	if r.events[0].Match.Record.Score != 0 {
		t.Errorf("score: got %v, want 0", r.events[0].Match.Record.Score)
	}
	w.Stop()

	broken := MustDefine(Descriptor{
		Name:  "broken",
		Find:  func(*html.Node) []*html.Node { panic("finder") },
		Parse: parseCard,
	})
	_, r = watch(t, d, d.Root(), broken)
	if len(r.events) != 0 {
		t.Errorf("events: got %d, want 0", len(r.events))
	}
}

func boxEntity(name string, policy NestingPolicy) Entity {
	return MustDefine(Descriptor{
		Name:    name,
		Find:    MustSelect("div.box"),
		Nesting: policy,
		Parse:   func(*html.Node) Record { return NewRecord(probe.NewCollector(name), nil, nil) },
	})
}

func newBox(id string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "div", Attr: []html.Attribute{{Key: "class", Val: "box"}, {Key: "id", Val: id}}}
}

func TestWatcher_OutermostAcrossBatches(t *testing.T) {
	d := parsePage(t, `<html><body><div class="box" id="outer"></div></body></html>`)
	_, r := watch(t, d, d.Root(), boxEntity("outer", NestOutermost))
	r.reset()
	if err := d.AppendChild(find(t, d, "#outer"), newBox("inner")); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(r.events) != 0 {
		t.Errorf("events: got %d, want 0", len(r.events))
	}
}

func TestWatcher_InnermostAcrossBatches(t *testing.T) {
	d := parsePage(t, `<html><body><div class="box" id="outer"></div></body></html>`)
	_, r := watch(t, d, d.Root(), boxEntity("inner", NestInnermost))
	r.reset()
	inner := newBox("inner")
	if err := d.AppendChild(find(t, d, "#outer"), inner); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(r.events) != 2 {
		t.Fatalf("events: got %d, want 2", len(r.events))
	}
	if r.events[0].Type != Removed || dom.AttrOr(r.events[0].Match.Node, "id", "") != "outer" {
		t.Errorf("event[0]: got %v %s", r.events[0].Type, dom.AttrOr(r.events[0].Match.Node, "id", ""))
	}
	if r.events[1].Type != Added || r.events[1].Match.Node != inner {
		t.Errorf("event[1]: got %v", r.events[1].Type)
	}
}

func TestWatcher_Clock(t *testing.T) {
	d := parsePage(t, cardsPage)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w, r := watch(t, d, d.Root(), card, WithClock(func() time.Time { return fixed }), WithID("wch_test"))
	if !r.events[0].Match.FirstSeen.Equal(fixed) || !r.events[0].At.Equal(fixed) {
		t.Errorf("times: %v %v", r.events[0].Match.FirstSeen, r.events[0].At)
	}
	if w.ID() != "wch_test" {
		t.Errorf("ID: got %q", w.ID())
	}
	ms := w.Matches()
	if len(ms) != 2 || ms[0].ID != "m1" || ms[1].ID != "m2" {
		t.Errorf("Matches: got %v", ms)
	}
}

func TestStream_DrainsThenEnds(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, err := NewWatcher(d, d.Root(), card)
	if err != nil {
		t.Fatal(err)
	}
	s := w.Stream()
	defer s.Close()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var types []EventType
	for ev := range s.All(ctx) {
		types = append(types, ev.Type)
	}
	if len(types) != 4 {
		t.Fatalf("events: got %v, want 4", types)
	}
	if _, err := s.Next(ctx); !errors.Is(err, ErrEnded) {
		t.Errorf("Next after end: got %v, want ErrEnded", err)
	}
}

func TestStream_NextWaits(t *testing.T) {
	d := parsePage(t, `<html><body><div id="list"></div></body></html>`)
	w, err := NewWatcher(d, d.Root(), card)
	if err != nil {
		t.Fatal(err)
	}
	s := w.Stream()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next on empty stream: got %v", err)
	}

	if err := d.AppendChild(find(t, d, "#list"), newCard("c1", true)); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	ev, err := s.Next(context.Background())
	if err != nil || ev.Type != Added {
		t.Fatalf("Next: got %v, %v", ev.Type, err)
	}

	s.Close()
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after Close: got %v", err)
	}
}

func TestStream_Channel(t *testing.T) {
	d := parsePage(t, cardsPage)
	w, err := NewWatcher(d, d.Root(), card)
	if err != nil {
		t.Fatal(err)
	}
	s := w.Stream()
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	ch := s.C()
	go w.Stop()

	n := 0
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if n != 4 {
					t.Errorf("events: got %d, want 4", n)
				}
				return
			}
			n++
		case <-timeout:
			t.Fatalf("channel not closed, got %d events", n)
		}
	}
}
