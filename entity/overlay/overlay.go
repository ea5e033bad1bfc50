// Package overlay detects the attachment preview overlay.
package overlay

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/detect"
	"github.com/hazyhaar/domsense/dom"
	"github.com/hazyhaar/domsense/probe"
)

const Name = "overlay"

var (
	selDownload = dom.MustCompile(`[data-test-id="downloadButton"]`)
	selTitle    = dom.MustCompile(`[data-test-id=title]`)
	selClose    = dom.MustCompile(`[data-test-id=closeButton], [aria-label=Close][role=button]`)
)

var Entity = detect.MustDefine(detect.Descriptor{
	Name:    Name,
	Find:    detect.MustSelect(`[data-test-id=overlay]`),
	Parse:   Parse,
	Nesting: detect.NestOutermost,
})

func Register(r *detect.Registry) error { return r.Register(Entity) }

func Parse(el *html.Node) detect.Record {
	c := probe.NewCollector(Name)

	download := probe.Run(c, "download button", func() (*html.Node, error) {
		return dom.QueryOne(el, selDownload)
	})
	title := probe.Run(c, "title", func() (*html.Node, error) {
		t := dom.QueryFirst(el, selTitle)
		if t == nil {
			return nil, probe.Missing("title")
		}
		if strings.TrimSpace(dom.Text(t)) == "" {
			return nil, probe.Missing("title text")
		}
		return t, nil
	})
	closeBtn := probe.Run(c, "close button", func() (*html.Node, error) {
		if b := dom.QueryFirst(el, selClose); b != nil {
			return b, nil
		}
		return nil, probe.Missing("close button")
	})

	var filename any
	if title != nil {
		filename = strings.TrimSpace(dom.Text(title))
	}
	return detect.NewRecord(c,
		map[string]*html.Node{
			"downloadButton": download,
			"title":          title,
			"closeButton":    closeBtn,
		},
		map[string]any{"filename": filename})
}
