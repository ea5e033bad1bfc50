package event

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/domsense/detect"
	"github.com/hazyhaar/domsense/dom"
	"github.com/hazyhaar/domsense/idgen"
)

// Builder turns watcher events into Detections. It is safe for concurrent
// use.
type Builder struct {
	pageID  string
	maxLen  int
	preview bool
	ids     idgen.Generator
	policy  *bluemonday.Policy
	md      *converter.Converter
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPageID tags every detection with a page identifier.
func WithPageID(id string) BuilderOption {
	return func(b *Builder) { b.pageID = id }
}

// WithSnippetLimit caps snippet and preview length in bytes. 0 disables
// both. Default: 2048.
func WithSnippetLimit(n int) BuilderOption {
	return func(b *Builder) { b.maxLen = n }
}

// WithoutPreview skips the markdown preview.
func WithoutPreview() BuilderOption {
	return func(b *Builder) { b.preview = false }
}

// WithEventIDs sets the detection ID generator.
func WithEventIDs(gen idgen.Generator) BuilderOption {
	return func(b *Builder) { b.ids = gen }
}

// NewBuilder returns a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		maxLen:  2048,
		preview: true,
		ids:     idgen.Event(),
		policy:  bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Placement is where a match and its elements sat when it was added.
type Placement struct {
	XPath    string
	Elements map[string]*string
}

// Build flattens ev. A non-nil at overrides the computed paths; callers pass
// the placement recorded at Added time for Removed events, whose nodes are
// already detached. Removed events without one carry no element paths.
func (b *Builder) Build(watcherID string, ev detect.Event, at *Placement) Detection {
	m := ev.Match
	d := Detection{
		ID:         b.ids(),
		Type:       typeOf(ev.Type),
		Entity:     m.Entity,
		WatcherID:  watcherID,
		MatchID:    m.ID,
		PageID:     b.pageID,
		Score:      m.Record.Score,
		Probes:     m.Record.Probes,
		Errors:     m.Record.Errors,
		Attributes: m.Record.Attributes,
		FirstSeen:  m.FirstSeen.UnixMilli(),
		Timestamp:  ev.At.UnixMilli(),
	}
	if ev.At.IsZero() {
		d.Timestamp = time.Now().UnixMilli()
	}
	switch {
	case at != nil:
		d.XPath, d.Elements = at.XPath, at.Elements
	case ev.Type == detect.Removed:
		d.XPath = dom.XPath(m.Node)
		if len(m.Record.Elements) > 0 {
			d.Elements = make(map[string]*string, len(m.Record.Elements))
			for name := range m.Record.Elements {
				d.Elements[name] = nil
			}
		}
	default:
		p := Place(m)
		d.XPath, d.Elements = p.XPath, p.Elements
	}
	if ev.Type == detect.Added && b.maxLen > 0 {
		d.Snippet, d.Preview = b.render(dom.Render(m.Node))
	}
	return d
}

// Place computes the current placement of m.
func Place(m detect.Match) Placement {
	p := Placement{XPath: dom.XPath(m.Node)}
	if len(m.Record.Elements) > 0 {
		p.Elements = make(map[string]*string, len(m.Record.Elements))
		for name, n := range m.Record.Elements {
			if n == nil {
				p.Elements[name] = nil
				continue
			}
			x := dom.XPath(n)
			p.Elements[name] = &x
		}
	}
	return p
}

func (b *Builder) render(raw string) (snippet, preview string) {
	clean := b.policy.Sanitize(raw)
	snippet = truncate(clean, b.maxLen)
	if b.preview {
		if md, err := b.md.ConvertString(clean); err == nil {
			preview = truncate(strings.TrimSpace(md), b.maxLen)
		}
	}
	return snippet, preview
}

func typeOf(t detect.EventType) Type {
	if t == detect.Removed {
		return TypeRemoved
	}
	return TypeAdded
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
