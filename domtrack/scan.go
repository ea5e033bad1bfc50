package domtrack

import (
	"fmt"
	"io"

	"github.com/hazyhaar/domsense/detect"
	"github.com/hazyhaar/domsense/dom"
)

// Scan parses a page once and runs the named entities over it, or every
// registered entity when names is empty. Nothing is tracked.
func Scan(reg *detect.Registry, r io.Reader, names ...string) ([]MatchSummary, error) {
	doc, err := dom.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("domtrack: scan: %w", err)
	}
	if len(names) == 0 {
		names = reg.Names()
	}
	var out []MatchSummary
	for _, name := range names {
		e, ok := reg.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("domtrack: scan: %w: %s", detect.ErrUnknownEntity, name)
		}
		results, err := detect.Scan(e, doc.Root())
		if err != nil {
			return nil, fmt.Errorf("domtrack: scan %s: %w", name, err)
		}
		for _, res := range results {
			out = append(out, summarize(name, res.Node, res.Record))
		}
	}
	return out, nil
}
