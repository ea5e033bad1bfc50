package detect

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/dom"
)

// NestingPolicy decides what to keep when one candidate contains another.
type NestingPolicy int

const (
	// NestAll keeps every candidate.
	NestAll NestingPolicy = iota
	// NestInnermost drops candidates that contain another candidate.
	NestInnermost
	// NestOutermost drops candidates contained in another candidate.
	NestOutermost
)

func (p NestingPolicy) String() string {
	switch p {
	case NestInnermost:
		return "innermost"
	case NestOutermost:
		return "outermost"
	default:
		return "all"
	}
}

// Select returns a finder for the descendants of root matching a CSS
// selector group.
func Select(selector string) (FinderFunc, error) {
	sel, err := dom.Compile(selector)
	if err != nil {
		return nil, err
	}
	return func(root *html.Node) []*html.Node {
		return dom.QueryAll(root, sel)
	}, nil
}

// MustSelect is Select for selectors known at build time.
func MustSelect(selector string) FinderFunc {
	f, err := Select(selector)
	if err != nil {
		panic(err)
	}
	return f
}

// Where keeps the candidates of base for which pred holds.
func Where(base FinderFunc, pred func(*html.Node) bool) FinderFunc {
	return func(root *html.Node) []*html.Node {
		var out []*html.Node
		for _, n := range base(root) {
			if pred(n) {
				out = append(out, n)
			}
		}
		return out
	}
}

// Union merges finders, dropping duplicates and restoring document order.
func Union(finders ...FinderFunc) FinderFunc {
	return func(root *html.Node) []*html.Node {
		seen := make(map[*html.Node]struct{})
		var out []*html.Node
		for _, f := range finders {
			for _, n := range f(root) {
				if _, ok := seen[n]; ok {
					continue
				}
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
		if len(finders) > 1 {
			dom.SortDocumentOrder(out)
		}
		return out
	}
}

// Nest applies a nesting policy to the candidates of base.
func Nest(base FinderFunc, policy NestingPolicy) FinderFunc {
	if policy == NestAll {
		return base
	}
	return func(root *html.Node) []*html.Node {
		return applyNesting(base(root), policy)
	}
}

func applyNesting(cands []*html.Node, policy NestingPolicy) []*html.Node {
	if len(cands) < 2 {
		return cands
	}
	set := make(map[*html.Node]struct{}, len(cands))
	for _, n := range cands {
		set[n] = struct{}{}
	}
	drop := make(map[*html.Node]struct{})
	for _, n := range cands {
		for p := n.Parent; p != nil; p = p.Parent {
			if _, ok := set[p]; !ok {
				continue
			}
			switch policy {
			case NestOutermost:
				drop[n] = struct{}{}
			case NestInnermost:
				drop[p] = struct{}{}
			}
		}
	}
	out := make([]*html.Node, 0, len(cands)-len(drop))
	for _, n := range cands {
		if _, ok := drop[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Result is one parsed candidate from a one-shot Scan.
type Result struct {
	Node   *html.Node
	Record Record
}

// Scan runs the entity once over root without tracking anything. A nil
// root yields no results.
func Scan(e Entity, root *html.Node) ([]Result, error) {
	if err := checkEntity(e); err != nil {
		return nil, err
	}
	cands, err := SafeFind(e, root)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(cands))
	for _, n := range cands {
		out = append(out, Result{Node: n, Record: SafeParse(e, n)})
	}
	return out, nil
}
