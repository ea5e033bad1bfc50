package dom

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	// ErrNotFound is returned by QueryOne when nothing matches.
	ErrNotFound = errors.New("dom: no element matches")
	// ErrAmbiguous is returned by QueryOne when more than one element matches.
	ErrAmbiguous = errors.New("dom: more than one element matches")
)

// Selector is a compiled CSS selector group.
type Selector struct {
	src string
	sel cascadia.Selector
}

// Compile parses a CSS selector group.
func Compile(src string) (Selector, error) {
	sel, err := cascadia.Compile(src)
	if err != nil {
		return Selector{}, fmt.Errorf("dom: compile selector %q: %w", src, err)
	}
	return Selector{src: src, sel: sel}, nil
}

// MustCompile is Compile for selectors known at build time.
func MustCompile(src string) Selector {
	s, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Selector) String() string { return s.src }

// Match reports whether n is an element matching the selector.
func (s Selector) Match(n *html.Node) bool {
	return n != nil && s.sel != nil && n.Type == html.ElementNode && s.sel.Match(n)
}

// QueryAll returns the descendants of root matching sel, in document order.
// root itself is never included.
func QueryAll(root *html.Node, sel Selector) []*html.Node {
	if root == nil {
		return nil
	}
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if n != root && sel.Match(n) {
			out = append(out, n)
		}
	})
	return out
}

// QueryFirst returns the first descendant of root matching sel, or nil.
func QueryFirst(root *html.Node, sel Selector) *html.Node {
	if root == nil {
		return nil
	}
	var found *html.Node
	var visit func(*html.Node) bool
	visit = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if sel.Match(c) {
				found = c
				return true
			}
			if visit(c) {
				return true
			}
		}
		return false
	}
	visit(root)
	return found
}

// QueryOne returns the single descendant of root matching sel.
func QueryOne(root *html.Node, sel Selector) (*html.Node, error) {
	all := QueryAll(root, sel)
	switch len(all) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel)
	case 1:
		return all[0], nil
	default:
		return nil, fmt.Errorf("%w: %s (%d)", ErrAmbiguous, sel, len(all))
	}
}

// Closest returns n or its nearest ancestor matching sel.
func Closest(n *html.Node, sel Selector) *html.Node {
	for ; n != nil; n = n.Parent {
		if sel.Match(n) {
			return n
		}
	}
	return nil
}

// Contains reports whether b is a or a descendant of a.
func Contains(a, b *html.Node) bool {
	if a == nil || b == nil {
		return false
	}
	for n := b; n != nil; n = n.Parent {
		if n == a {
			return true
		}
	}
	return false
}

// Attr returns the value of an attribute and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the value of an attribute, or def when it is absent.
func AttrOr(n *html.Node, key, def string) string {
	if v, ok := Attr(n, key); ok {
		return v
	}
	return def
}

// HasAttr reports whether n carries the attribute.
func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

// Text returns the concatenated text of n and its descendants.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}

// Children returns the element children of n.
func Children(n *html.Node) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Render serialises n as HTML.
func Render(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}

// SortDocumentOrder sorts nodes in tree order. Nodes from different trees
// are compared by their child-index paths only.
func SortDocumentOrder(nodes []*html.Node) {
	if len(nodes) < 2 {
		return
	}
	paths := make(map[*html.Node][]int, len(nodes))
	for _, n := range nodes {
		paths[n] = treePath(n)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return comparePaths(paths[nodes[i]], paths[nodes[j]]) < 0
	})
}

// treePath lists child indexes from the top of the tree down to n.
func treePath(n *html.Node) []int {
	var rev []int
	for ; n != nil && n.Parent != nil; n = n.Parent {
		i := 0
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			i++
		}
		rev = append(rev, i)
	}
	out := make([]int, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}

func comparePaths(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}
