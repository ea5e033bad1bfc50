package dom

import (
	"errors"

	"golang.org/x/net/html"
)

// RecordType is the kind of a mutation record.
type RecordType int

const (
	ChildList RecordType = iota + 1
	Attributes
	CharacterData
)

func (t RecordType) String() string {
	switch t {
	case ChildList:
		return "childList"
	case Attributes:
		return "attributes"
	case CharacterData:
		return "characterData"
	default:
		return "unknown"
	}
}

// Record describes one mutation.
type Record struct {
	Type            RecordType
	Target          *html.Node
	AddedNodes      []*html.Node
	RemovedNodes    []*html.Node
	PreviousSibling *html.Node
	NextSibling     *html.Node
	AttributeName   string
	OldValue        string
}

// ObserveOptions selects the records an observer receives.
type ObserveOptions struct {
	ChildList       bool
	Attributes      bool
	CharacterData   bool
	Subtree         bool
	AttributeFilter []string
}

// ErrInvalidOptions is returned by Observe when no record type is selected.
var ErrInvalidOptions = errors.New("dom: observe: one of ChildList, Attributes or CharacterData is required")

// Observer receives batches of records for one subtree.
type Observer struct {
	doc    *Document
	root   *html.Node
	opts   ObserveOptions
	fn     func([]Record)
	queue  []Record
	active bool
}

// Observe registers fn for mutations at root (and its descendants when
// opts.Subtree is set). Records are delivered by Flush, never during the
// mutation itself.
func (d *Document) Observe(root *html.Node, opts ObserveOptions, fn func([]Record)) (*Observer, error) {
	if root == nil {
		return nil, ErrNilNode
	}
	if fn == nil {
		return nil, errors.New("dom: observe: nil callback")
	}
	if !opts.ChildList && !opts.Attributes && !opts.CharacterData {
		return nil, ErrInvalidOptions
	}
	o := &Observer{doc: d, root: root, opts: opts, fn: fn, active: true}
	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()
	return o, nil
}

// Disconnect stops delivery and discards queued records. Safe to call from
// any goroutine and more than once.
func (o *Observer) Disconnect() {
	d := o.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	if !o.active {
		return
	}
	o.active = false
	o.queue = nil
	for i, x := range d.observers {
		if x == o {
			d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
			break
		}
	}
}

// TakeRecords returns and clears the observer's queued records.
func (o *Observer) TakeRecords() []Record {
	o.doc.mu.Lock()
	defer o.doc.mu.Unlock()
	recs := o.queue
	o.queue = nil
	return recs
}

func (o *Observer) wants(rec *Record) bool {
	switch rec.Type {
	case ChildList:
		if !o.opts.ChildList {
			return false
		}
	case Attributes:
		if !o.opts.Attributes {
			return false
		}
		if len(o.opts.AttributeFilter) > 0 {
			ok := false
			for _, name := range o.opts.AttributeFilter {
				if name == rec.AttributeName {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
	case CharacterData:
		if !o.opts.CharacterData {
			return false
		}
	}
	if rec.Target == o.root {
		return true
	}
	return o.opts.Subtree && Contains(o.root, rec.Target)
}

func (d *Document) queue(rec Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.observers {
		if o.active && o.wants(&rec) {
			o.queue = append(o.queue, rec)
		}
	}
}

// Pending returns the number of records queued across all observers.
func (d *Document) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, o := range d.observers {
		n += len(o.queue)
	}
	return n
}

// Flush delivers queued records to observers, one batch per observer.
// Callbacks that mutate the tree cause further rounds, up to the configured
// cap. Tasks registered with Later run once delivery is done. A Flush
// started from inside a callback returns immediately; the outer Flush picks
// up the new records.
func (d *Document) Flush() {
	d.mu.Lock()
	if d.flushing {
		d.mu.Unlock()
		return
	}
	d.flushing = true
	d.mu.Unlock()

	rounds := 0
	for ; rounds < d.maxRounds; rounds++ {
		if !d.deliverRound() {
			break
		}
	}
	if rounds == d.maxRounds && d.Pending() > 0 {
		d.logger.Warn("dom: flush round cap reached, records left queued", "rounds", rounds, "pending", d.Pending())
	}

	d.mu.Lock()
	later := d.later
	d.later = nil
	d.flushing = false
	d.mu.Unlock()
	for _, fn := range later {
		d.safeCall("later task", fn)
	}
}

func (d *Document) deliverRound() bool {
	type batch struct {
		o    *Observer
		recs []Record
	}
	d.mu.Lock()
	var batches []batch
	for _, o := range d.observers {
		if o.active && len(o.queue) > 0 {
			batches = append(batches, batch{o: o, recs: compress(o.queue)})
			o.queue = nil
		}
	}
	d.mu.Unlock()

	for _, b := range batches {
		d.mu.Lock()
		active := b.o.active
		d.mu.Unlock()
		if !active {
			continue
		}
		fn, recs := b.o.fn, b.recs
		d.safeCall("observer", func() { fn(recs) })
	}
	return len(batches) > 0
}
