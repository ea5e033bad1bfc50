// Package message detects thread messages: elements carrying a
// data-msg-id attribute, with a heading that names the sender and a body
// once the message is loaded.
package message

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/detect"
	"github.com/hazyhaar/domsense/dom"
	"github.com/hazyhaar/domsense/probe"
)

// Name is the entity name.
const Name = "message"

// ViewState is how much of a message is on screen.
type ViewState string

const (
	Expanded  ViewState = "EXPANDED"
	Collapsed ViewState = "COLLAPSED"
	// Hidden messages are folded into a "more messages" bar and have no body.
	Hidden ViewState = "HIDDEN"
)

var (
	selHeading = dom.MustCompile("div[role=heading]")
	selBody    = dom.MustCompile("div[role=heading] ~ div:not(:empty)")
	selSender  = dom.MustCompile("[email]:first-child")
	selToggle  = dom.MustCompile(`div[jsaction$=".message_toggle_collapse"]`)

	msgIDPattern = regexp.MustCompile(`msg-[^:]+:(\d+)`)
)

// Entity is the message entity. Candidates nest outermost; a message stops
// being one when it loses its data-msg-id.
var Entity = detect.MustDefine(detect.Descriptor{
	Name:    Name,
	Find:    detect.MustSelect("div[data-msg-id]"),
	Parse:   Parse,
	Nesting: detect.NestOutermost,
	Gone:    func(n *html.Node) bool { return !dom.HasAttr(n, "data-msg-id") },
})

// Register adds the entity to r.
func Register(r *detect.Registry) error { return r.Register(Entity) }

// Parse probes one candidate.
func Parse(el *html.Node) detect.Record {
	c := probe.NewCollector(Name)

	c.Check("tabindex", func() error {
		if !dom.HasAttr(el, "tabindex") {
			return errors.New("expected tabindex")
		}
		return nil
	})

	messageID := probe.Run(c, "message id", func() (string, error) {
		return parseMessageID(dom.AttrOr(el, "data-msg-id", ""))
	})

	heading := probe.Run(c, "heading", func() (*html.Node, error) {
		if h := dom.QueryFirst(el, selHeading); h != nil {
			return h, nil
		}
		return nil, probe.Missing("heading")
	})

	// Hidden messages have no body, so no sender is shown either.
	body := dom.QueryFirst(el, selBody)

	var sender *html.Node
	if body != nil {
		sender = probe.Run(c, "sender", func() (*html.Node, error) {
			if heading == nil {
				return nil, errors.New("no heading to search")
			}
			return dom.QueryOne(heading, selSender)
		})
	}

	// The last message of a thread is always loaded and has no toggle.
	toggle := dom.QueryFirst(el, selToggle)

	loaded := body != nil && (toggle == nil || dom.AttrOr(toggle, "role", "") == "heading")
	state := Hidden
	switch {
	case loaded:
		state = Expanded
	case body != nil:
		state = Collapsed
	}

	var id any
	if messageID != "" {
		id = messageID
	}
	return detect.NewRecord(c,
		map[string]*html.Node{
			"heading":        heading,
			"body":           body,
			"sender":         sender,
			"toggleCollapse": toggle,
		},
		map[string]any{
			"loaded":    loaded,
			"viewState": state,
			"messageId": id,
		})
}

// parseMessageID turns "msg-f:1234567890" into the hex message id.
func parseMessageID(attr string) (string, error) {
	m := msgIDPattern.FindStringSubmatch(attr)
	if m == nil {
		return "", fmt.Errorf("data-msg-id %q has no numeric id", attr)
	}
	n, ok := new(big.Int).SetString(m[1], 10)
	if !ok {
		return "", fmt.Errorf("data-msg-id %q: bad number", attr)
	}
	return n.Text(16), nil
}

// Sender returns the sender's address and display name from a record, if
// the sender probe succeeded.
func Sender(r detect.Record) (email, name string, ok bool) {
	s := r.Element("sender")
	if s == nil {
		return "", "", false
	}
	email = dom.AttrOr(s, "email", "")
	name = dom.AttrOr(s, "name", dom.Text(s))
	return email, name, email != ""
}
