// CLAUDE:SUMMARY Mutable host document over an x/net/html tree; every mutation queues observer records.
// Package dom is the host tree the detection engine watches. A Document
// owns a golang.org/x/net/html tree and exposes the mutation operations a
// page script would perform. Each mutation queues MutationObserver-style
// records which are delivered to observers in batches by Flush.
//
// A Document is single-threaded: tree reads and mutations must happen on
// one goroutine (the one calling Run, or the test goroutine). Post is the
// only goroutine-safe way to schedule work on that goroutine.
package dom

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

var (
	// ErrHierarchy is returned when a mutation would create a cycle or
	// references a node that is not where the caller claims it is.
	ErrHierarchy = errors.New("dom: hierarchy request error")
	// ErrNilNode is returned when a required node argument is nil.
	ErrNilNode = errors.New("dom: nil node")
)

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithBatching sets the debounce window and the record count that forces an
// immediate flush when the document is driven by Run.
func WithBatching(window time.Duration, maxBuffer int) Option {
	return func(d *Document) {
		d.batching.Window = window
		d.batching.MaxBuffer = maxBuffer
	}
}

// WithSettleAfter sets how long Run waits without new records before it
// calls Settle.
func WithSettleAfter(dur time.Duration) Option {
	return func(d *Document) { d.batching.SettleAfter = dur }
}

// WithMaxRounds caps the number of re-delivery rounds in one Flush, for
// observers whose callbacks mutate the tree. Default: 16.
func WithMaxRounds(n int) Option {
	return func(d *Document) {
		if n > 0 {
			d.maxRounds = n
		}
	}
}

// Document is a mutable HTML tree with observer support.
type Document struct {
	root      *html.Node
	logger    *slog.Logger
	batching  debounceConfig
	maxRounds int

	mu        sync.Mutex
	observers []*Observer
	settlers  map[int]func()
	nextHook  int
	later     []func()
	flushing  bool

	tasksMu sync.Mutex
	tasks   []func()
	wake    chan struct{}
}

// New wraps an existing tree. root is normally an html.DocumentNode but
// any parentless node is accepted.
func New(root *html.Node, opts ...Option) (*Document, error) {
	if root == nil {
		return nil, ErrNilNode
	}
	if root.Parent != nil {
		return nil, fmt.Errorf("dom: new: root has a parent: %w", ErrHierarchy)
	}
	d := &Document{
		root:      root,
		logger:    slog.Default(),
		maxRounds: 16,
		settlers:  make(map[int]func()),
		wake:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(d)
	}
	d.batching.defaults()
	return d, nil
}

// Parse reads an HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return New(root, opts...)
}

// ParseString is Parse over a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Logger returns the document's logger.
func (d *Document) Logger() *slog.Logger { return d.logger }

// Connected reports whether n is part of this document's tree.
func (d *Document) Connected(n *html.Node) bool {
	if n == nil {
		return false
	}
	for n.Parent != nil {
		n = n.Parent
	}
	return n == d.root
}

// AppendChild appends child to parent. A child that already has a parent is
// moved, which records a removal from the old parent first.
func (d *Document) AppendChild(parent, child *html.Node) error {
	return d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child into parent before ref. A nil ref appends.
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	if parent == nil || child == nil {
		return ErrNilNode
	}
	if ref != nil && ref.Parent != parent {
		return fmt.Errorf("dom: insert: reference is not a child of parent: %w", ErrHierarchy)
	}
	if Contains(child, parent) {
		return fmt.Errorf("dom: insert: node would contain itself: %w", ErrHierarchy)
	}
	if ref == child {
		return nil
	}
	if old := child.Parent; old != nil {
		prev, next := child.PrevSibling, child.NextSibling
		old.RemoveChild(child)
		d.queue(Record{Type: ChildList, Target: old, RemovedNodes: []*html.Node{child}, PreviousSibling: prev, NextSibling: next})
	}
	prev := parent.LastChild
	if ref != nil {
		prev = ref.PrevSibling
	}
	parent.InsertBefore(child, ref)
	d.queue(Record{Type: ChildList, Target: parent, AddedNodes: []*html.Node{child}, PreviousSibling: prev, NextSibling: ref})
	return nil
}

// RemoveChild detaches child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) error {
	if parent == nil || child == nil {
		return ErrNilNode
	}
	if child.Parent != parent {
		return fmt.Errorf("dom: remove: node is not a child of parent: %w", ErrHierarchy)
	}
	prev, next := child.PrevSibling, child.NextSibling
	parent.RemoveChild(child)
	d.queue(Record{Type: ChildList, Target: parent, RemovedNodes: []*html.Node{child}, PreviousSibling: prev, NextSibling: next})
	return nil
}

// Remove detaches n from its parent. Removing a parentless node is a no-op.
func (d *Document) Remove(n *html.Node) error {
	if n == nil {
		return ErrNilNode
	}
	if n.Parent == nil {
		return nil
	}
	return d.RemoveChild(n.Parent, n)
}

// ReplaceChildren removes every child of parent and appends nodes, recorded
// as a single childList record.
func (d *Document) ReplaceChildren(parent *html.Node, nodes ...*html.Node) error {
	if parent == nil {
		return ErrNilNode
	}
	for _, n := range nodes {
		if n == nil {
			return ErrNilNode
		}
		if Contains(n, parent) {
			return fmt.Errorf("dom: replace children: node would contain itself: %w", ErrHierarchy)
		}
	}
	for _, n := range nodes {
		if n.Parent != nil && n.Parent != parent {
			if err := d.Remove(n); err != nil {
				return err
			}
		}
	}
	var removed []*html.Node
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	if len(removed) == 0 && len(nodes) == 0 {
		return nil
	}
	d.queue(Record{Type: ChildList, Target: parent, AddedNodes: nodes, RemovedNodes: removed})
	return nil
}

// SetTextContent replaces the children of an element with one text node.
func (d *Document) SetTextContent(n *html.Node, text string) error {
	if n == nil {
		return ErrNilNode
	}
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		return d.SetData(n, text)
	}
	if text == "" {
		return d.ReplaceChildren(n)
	}
	return d.ReplaceChildren(n, &html.Node{Type: html.TextNode, Data: text})
}

// SetData changes the data of a text or comment node.
func (d *Document) SetData(n *html.Node, data string) error {
	if n == nil {
		return ErrNilNode
	}
	if n.Type != html.TextNode && n.Type != html.CommentNode {
		return fmt.Errorf("dom: set data on %s: %w", nodeLabel(n), ErrHierarchy)
	}
	old := n.Data
	n.Data = data
	d.queue(Record{Type: CharacterData, Target: n, OldValue: old})
	return nil
}

// SetAttr sets an attribute on an element. Setting an attribute to its
// current value still records a mutation, as browsers do.
func (d *Document) SetAttr(n *html.Node, key, val string) error {
	if n == nil {
		return ErrNilNode
	}
	if n.Type != html.ElementNode {
		return fmt.Errorf("dom: set attribute on %s: %w", nodeLabel(n), ErrHierarchy)
	}
	old := ""
	found := false
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			old = n.Attr[i].Val
			n.Attr[i].Val = val
			found = true
			break
		}
	}
	if !found {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	}
	d.queue(Record{Type: Attributes, Target: n, AttributeName: key, OldValue: old})
	return nil
}

// RemoveAttr removes an attribute. Removing an absent attribute records
// nothing.
func (d *Document) RemoveAttr(n *html.Node, key string) error {
	if n == nil {
		return ErrNilNode
	}
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			old := n.Attr[i].Val
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			d.queue(Record{Type: Attributes, Target: n, AttributeName: key, OldValue: old})
			return nil
		}
	}
	return nil
}

// Later schedules fn to run at the end of the next Flush, after all
// observer callbacks.
func (d *Document) Later(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.later = append(d.later, fn)
	d.mu.Unlock()
}

// OnSettle registers fn to be called by Settle. The returned function
// unregisters it.
func (d *Document) OnSettle(fn func()) (remove func()) {
	d.mu.Lock()
	id := d.nextHook
	d.nextHook++
	d.settlers[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.settlers, id)
		d.mu.Unlock()
	}
}

// Settle delivers pending records, then tells settle hooks that the tree
// has gone quiet. Run calls it after the settle delay.
func (d *Document) Settle() {
	d.Flush()
	d.mu.Lock()
	hooks := make([]func(), 0, len(d.settlers))
	for i := 0; i < d.nextHook; i++ {
		if fn, ok := d.settlers[i]; ok {
			hooks = append(hooks, fn)
		}
	}
	d.mu.Unlock()
	for _, fn := range hooks {
		d.safeCall("settle hook", fn)
	}
}

func (d *Document) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dom: callback panicked", "callback", what, "panic", r)
		}
	}()
	fn()
}

func nodeLabel(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return "<" + n.Data + ">"
	case html.TextNode:
		return "text node"
	case html.DocumentNode:
		return "document node"
	case html.CommentNode:
		return "comment node"
	default:
		return "node"
	}
}
