package dom

import (
	"fmt"

	"golang.org/x/net/html"
)

// XPath returns a positional path for n from the top of its tree, such as
// /html/body/div[2]/span. The index is only written when the parent has more
// than one child of the same tag. Nodes in a detached subtree get a path
// relative to the subtree's top. The document node has an empty path.
func XPath(n *html.Node) string {
	if n == nil || n.Type == html.DocumentNode {
		return ""
	}
	parentPath := XPath(n.Parent)

	switch n.Type {
	case html.DoctypeNode:
		return parentPath
	case html.TextNode:
		return parentPath + "/text()"
	case html.CommentNode:
		return parentPath + "/comment()"
	case html.ElementNode:
		// below
	default:
		return parentPath + "/" + n.Data
	}

	name := n.Data
	if n.Parent == nil {
		return "/" + name
	}

	idx, total := 1, 0
	for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
		if s.Type != html.ElementNode || s.Data != name {
			continue
		}
		total++
		if s == n {
			idx = total
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s/%s[%d]", parentPath, name, idx)
	}
	return parentPath + "/" + name
}
