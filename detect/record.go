package detect

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/probe"
)

// Record is the outcome of parsing one candidate. Every element and
// attribute the parser declares is present as a key; missing values are nil.
type Record struct {
	Elements   map[string]*html.Node
	Attributes map[string]any
	Score      float64
	Errors     []probe.Failure
	Probes     int
}

// NewRecord builds a Record from a finished collector. The score is taken
// from the collector, so it is exactly 1 - len(Errors)/Probes.
func NewRecord(c *probe.Collector, elements map[string]*html.Node, attributes map[string]any) Record {
	if elements == nil {
		elements = map[string]*html.Node{}
	}
	if attributes == nil {
		attributes = map[string]any{}
	}
	return Record{
		Elements:   elements,
		Attributes: attributes,
		Score:      c.Score(),
		Errors:     c.Errors(),
		Probes:     c.RunCount(),
	}
}

// Element returns a named element, or nil.
func (r Record) Element(name string) *html.Node { return r.Elements[name] }

// Attr returns a named attribute value, or nil.
func (r Record) Attr(name string) any { return r.Attributes[name] }

// OK reports whether every probe passed.
func (r Record) OK() bool { return len(r.Errors) == 0 }

// failedRecord is what a parser that panicked outright is worth.
func failedRecord(msg string) Record {
	c := probe.NewCollector("parse")
	probe.Run(c, "parse", func() (struct{}, error) { panic(msg) })
	return NewRecord(c, nil, nil)
}
