package dom

import (
	"golang.org/x/net/html"
)

// reconcileLookahead bounds how far Reconcile searches the existing children
// for a node it can reuse.
const reconcileLookahead = 8

// Reconcile mutates dst so that it mirrors src, reusing dst's nodes where
// the tag (and id, when set) still line up. Every change goes through the
// document's mutation methods, so observers see ordinary records and
// surviving nodes keep their identity. src is read-only and typically comes
// from a fresh parse of the same page.
func (d *Document) Reconcile(dst, src *html.Node) error {
	if dst == nil || src == nil {
		return ErrNilNode
	}
	if dst.Type == html.ElementNode {
		if err := d.syncAttrs(dst, src); err != nil {
			return err
		}
	}

	cur := dst.FirstChild
	for s := src.FirstChild; s != nil; s = s.NextSibling {
		m := findReusable(cur, s)
		if m == nil {
			if err := d.InsertBefore(dst, clone(s), cur); err != nil {
				return err
			}
			continue
		}
		for cur != m {
			next := cur.NextSibling
			if err := d.RemoveChild(dst, cur); err != nil {
				return err
			}
			cur = next
		}
		switch m.Type {
		case html.TextNode, html.CommentNode:
			if m.Data != s.Data {
				if err := d.SetData(m, s.Data); err != nil {
					return err
				}
			}
		case html.ElementNode, html.DocumentNode:
			if err := d.Reconcile(m, s); err != nil {
				return err
			}
		}
		cur = m.NextSibling
	}
	for cur != nil {
		next := cur.NextSibling
		if err := d.RemoveChild(dst, cur); err != nil {
			return err
		}
		cur = next
	}
	return nil
}

func findReusable(from, want *html.Node) *html.Node {
	i := 0
	for n := from; n != nil && i < reconcileLookahead; n = n.NextSibling {
		if sameKind(n, want) {
			return n
		}
		i++
	}
	return nil
}

func sameKind(a, b *html.Node) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case html.ElementNode:
		if a.Data != b.Data || a.Namespace != b.Namespace {
			return false
		}
		return AttrOr(a, "id", "") == AttrOr(b, "id", "")
	case html.DoctypeNode:
		return a.Data == b.Data
	default:
		return true
	}
}

func (d *Document) syncAttrs(dst, src *html.Node) error {
	want := make(map[string]string, len(src.Attr))
	for _, a := range src.Attr {
		if a.Namespace == "" {
			want[a.Key] = a.Val
		}
	}
	var stale []string
	for _, a := range dst.Attr {
		if a.Namespace != "" {
			continue
		}
		if _, ok := want[a.Key]; !ok {
			stale = append(stale, a.Key)
		}
	}
	for _, k := range stale {
		if err := d.RemoveAttr(dst, k); err != nil {
			return err
		}
	}
	for _, a := range src.Attr {
		if a.Namespace != "" {
			continue
		}
		if v, ok := Attr(dst, a.Key); ok && v == a.Val {
			continue
		}
		if err := d.SetAttr(dst, a.Key, a.Val); err != nil {
			return err
		}
	}
	return nil
}

// clone deep-copies a node from another tree.
func clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for k := n.FirstChild; k != nil; k = k.NextSibling {
		c.AppendChild(clone(k))
	}
	return c
}
