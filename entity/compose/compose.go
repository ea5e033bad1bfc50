// Package compose detects message compose areas, both inline replies and
// standalone compose dialogs.
package compose

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/detect"
	"github.com/hazyhaar/domsense/dom"
	"github.com/hazyhaar/domsense/probe"
)

// Name is the entity name.
const Name = "compose"

// Contact is one sender identity offered by the from menu.
type Contact struct {
	EmailAddress string `json:"email_address"`
	Name         string `json:"name"`
}

var (
	selCompose   = dom.MustCompile("div.M9")
	selForm      = dom.MustCompile("form")
	selSend      = dom.MustCompile("div.aoO[role=button]")
	selBottomBar = dom.MustCompile("table.IZ, [role=toolbar]")
	selSubject   = dom.MustCompile("input[name=subjectbox]")
	selBody      = dom.MustCompile("div[contenteditable=true][role=textbox]")
	selFromInput = dom.MustCompile(`input[name="from"]`)
	selFromMenu  = dom.MustCompile("div.J-M.jQjAxd.J-M-awS[role=menu] > div.SK.AX")
	selDialog    = dom.MustCompile("[role=dialog]")
)

// Entity is the compose entity: div.M9 containers holding a form.
var Entity = detect.MustDefine(detect.Descriptor{
	Name: Name,
	Find: detect.Where(detect.MustSelect(selCompose.String()), func(n *html.Node) bool {
		return dom.QueryFirst(n, selForm) != nil
	}),
	Parse:   Parse,
	Nesting: detect.NestOutermost,
	Scope:   scope,
})

// scope rescans from the parent of the outermost container holding changed,
// so a form arriving inside an existing container finds that container.
func scope(changed *html.Node) *html.Node {
	var top *html.Node
	for n := changed; n != nil; n = n.Parent {
		if selCompose.Match(n) {
			top = n
		}
	}
	if top == nil {
		return nil
	}
	return top.Parent
}

// Register adds the entity to r.
func Register(r *detect.Registry) error { return r.Register(Entity) }

// Parse probes one compose candidate.
func Parse(el *html.Node) detect.Record {
	c := probe.NewCollector(Name)

	send := probe.Run(c, "send button", func() (*html.Node, error) {
		return dom.QueryOne(el, selSend)
	})
	bar := probe.Run(c, "bottom bar", func() (*html.Node, error) {
		if b := dom.QueryFirst(el, selBottomBar); b != nil {
			return b, nil
		}
		return nil, probe.Missing("bottom bar")
	})
	subject := probe.Run(c, "subject", func() (*html.Node, error) {
		return dom.QueryOne(el, selSubject)
	})
	body := probe.Run(c, "body", func() (*html.Node, error) {
		return dom.QueryOne(el, selBody)
	})

	// The from field only exists for accounts with several identities.
	fromInput := dom.QueryFirst(el, selFromInput)
	fromMenu := dom.QueryFirst(el, selFromMenu)

	var fromAddress any
	if v := dom.AttrOr(fromInput, "value", ""); v != "" {
		fromAddress = v
	}
	var choices any
	if cs := FromChoices(fromMenu); len(cs) > 0 {
		choices = cs
	}

	return detect.NewRecord(c,
		map[string]*html.Node{
			"sendButton": send,
			"bottomBar":  bar,
			"subject":    subject,
			"body":       body,
			"fromInput":  fromInput,
			"fromMenu":   fromMenu,
		},
		map[string]any{
			"fromAddress": fromAddress,
			"fromChoices": choices,
			"inline":      dom.Closest(el, selDialog) == nil,
		})
}

// FromChoices lists the identities of a from menu. Item text looks like
// "Name <address>"; only the name part is kept.
func FromChoices(menu *html.Node) []Contact {
	if menu == nil {
		return nil
	}
	var out []Contact
	for _, item := range dom.Children(menu) {
		name := dom.Text(item)
		if i := strings.IndexByte(name, '<'); i >= 0 {
			name = name[:i]
		}
		out = append(out, Contact{
			EmailAddress: dom.AttrOr(item, "value", ""),
			Name:         strings.TrimSpace(name),
		})
	}
	return out
}
