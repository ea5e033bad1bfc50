// Package navitem detects the native items of the navigation menu (inbox,
// labels) with their route and unread count.
package navitem

import (
	"errors"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/detect"
	"github.com/hazyhaar/domsense/dom"
	"github.com/hazyhaar/domsense/probe"
)

// Name is the entity name.
const Name = "navitem"

var (
	selItem     = dom.MustCompile("div[data-tooltip]")
	selNav      = dom.MustCompile("[role=navigation]")
	selLink     = dom.MustCompile("a[href]")
	selCount    = dom.MustCompile(".bsU")
	selExpander = dom.MustCompile("[aria-expanded]")
)

// Entity is the navigation item entity. Label rows nest inside their
// parent label's container, so the innermost candidate wins.
var Entity = detect.MustDefine(detect.Descriptor{
	Name: Name,
	Find: detect.Where(detect.MustSelect(selItem.String()), func(n *html.Node) bool {
		return dom.Closest(n, selNav) != nil && dom.QueryFirst(n, selLink) != nil
	}),
	Parse:   Parse,
	Nesting: detect.NestInnermost,
	Scope:   scope,
})

// scope rescans from the parent of the nearest item holding changed, so a
// link filled into an existing item finds that item.
func scope(changed *html.Node) *html.Node {
	if item := dom.Closest(changed, selItem); item != nil {
		return item.Parent
	}
	return nil
}

// Register adds the entity to r.
func Register(r *detect.Registry) error { return r.Register(Entity) }

// Parse probes one navigation item.
func Parse(el *html.Node) detect.Record {
	c := probe.NewCollector(Name)

	link := probe.Run(c, "link", func() (*html.Node, error) {
		if a := dom.QueryFirst(el, selLink); a != nil {
			return a, nil
		}
		return nil, probe.Missing("link")
	})
	name := probe.Run(c, "name", func() (string, error) {
		for _, n := range []*html.Node{el, link} {
			for _, key := range []string{"data-tooltip", "title", "aria-label"} {
				if v := strings.TrimSpace(dom.AttrOr(n, key, "")); v != "" {
					return v, nil
				}
			}
		}
		return "", probe.Missing("name")
	})
	route := probe.Run(c, "route", func() (string, error) {
		if link == nil {
			return "", errors.New("no link")
		}
		return Route(dom.AttrOr(link, "href", ""))
	})

	expander := el
	if !dom.HasAttr(el, "aria-expanded") {
		expander = dom.QueryFirst(el, selExpander)
	}

	attrs := map[string]any{
		"name":      nil,
		"route":     nil,
		"collapsed": dom.AttrOr(expander, "aria-expanded", "") == "false",
		"count":     Count(dom.QueryFirst(el, selCount)),
	}
	if name != "" {
		attrs["name"] = name
	}
	if route != "" {
		attrs["route"] = route
	}
	return detect.NewRecord(c, map[string]*html.Node{"link": link}, attrs)
}

// Route returns the fragment of href, the part after '#'.
func Route(href string) (string, error) {
	i := strings.IndexByte(href, '#')
	if i < 0 || i == len(href)-1 {
		return "", errors.New("href has no fragment")
	}
	return href[i+1:], nil
}

// Count parses an unread badge such as "1,204". Absent or unreadable badges
// count as zero.
func Count(badge *html.Node) int {
	s := strings.ReplaceAll(strings.TrimSpace(dom.Text(badge)), ",", "")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
