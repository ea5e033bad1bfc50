package navitem

import (
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/domsense/detect"
	"github.com/hazyhaar/domsense/dom"
)

const menu = `<html><body><div role="navigation">
<div data-tooltip="Inbox" id="inbox"><a href="https://mail.example.com/#inbox">Inbox</a><div class="bsU">1,204</div></div>
<div data-tooltip="Labels" id="labels" aria-expanded="false">
  <a href="#labels">Labels</a>
  <div data-tooltip="Work" id="work"><a href="#label/Work">Work</a></div>
</div>
</div>
<div data-tooltip="Outside"><a href="#outside">x</a></div>
</body></html>`

func TestFind_InnermostInsideNavigation(t *testing.T) {
	d, err := dom.ParseString(menu)
	if err != nil {
		t.Fatal(err)
	}
	cands := Entity.Find(d.Root())
	var ids []string
	for _, c := range cands {
		ids = append(ids, dom.AttrOr(c, "id", ""))
	}
	if len(ids) != 2 || ids[0] != "inbox" || ids[1] != "work" {
		t.Fatalf("Find: got %v, want [inbox work]", ids)
	}
}

func TestWatch_LinkFilledIntoExistingItem(t *testing.T) {
	d, err := dom.ParseString(`<html><body><div role="navigation"><div data-tooltip="Inbox" id="inbox"></div></div></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	w, err := detect.NewWatcher(d, d.Root(), Entity)
	if err != nil {
		t.Fatal(err)
	}
	var added []detect.Match
	w.Subscribe(func(ev detect.Event) {
		if ev.Type == detect.Added {
			added = append(added, ev.Match)
		}
	}, nil)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if len(added) != 0 {
		t.Fatalf("initial Added: got %d, want 0", len(added))
	}

	item := dom.QueryFirst(d.Root(), dom.MustCompile("#inbox"))
	a := &html.Node{Type: html.ElementNode, Data: "a", Attr: []html.Attribute{{Key: "href", Val: "#inbox"}}}
	if err := d.AppendChild(item, a); err != nil {
		t.Fatal(err)
	}
	d.Flush()
	if len(added) != 1 || added[0].Node != item {
		t.Fatalf("Added: got %d, want #inbox", len(added))
	}
	if got := added[0].Record.Attr("route"); got != "inbox" {
		t.Errorf("route: got %v, want inbox", got)
	}
}

func TestParse(t *testing.T) {
	d, err := dom.ParseString(menu)
	if err != nil {
		t.Fatal(err)
	}
	inbox := dom.QueryFirst(d.Root(), dom.MustCompile("#inbox"))
	r := Parse(inbox)
	if r.Score != 1 || r.Probes != 3 {
		t.Fatalf("score=%v probes=%d errors=%v", r.Score, r.Probes, r.Errors)
	}
	if r.Attr("name") != "Inbox" || r.Attr("route") != "inbox" {
		t.Errorf("name/route: got %v %v", r.Attr("name"), r.Attr("route"))
	}
	if r.Attr("count") != 1204 || r.Attr("collapsed") != false {
		t.Errorf("count/collapsed: got %v %v", r.Attr("count"), r.Attr("collapsed"))
	}

	labels := dom.QueryFirst(d.Root(), dom.MustCompile("#labels"))
	r = Parse(labels)
	if r.Attr("collapsed") != true || r.Attr("count") != 0 {
		t.Errorf("labels: collapsed=%v count=%v", r.Attr("collapsed"), r.Attr("count"))
	}
}

func TestParse_NoLink(t *testing.T) {
	d, err := dom.ParseString(`<html><body><div data-tooltip="Empty" id="e"></div></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	r := Parse(dom.QueryFirst(d.Root(), dom.MustCompile("#e")))
	if r.Probes != 3 || len(r.Errors) != 2 {
		t.Fatalf("probes=%d errors=%v", r.Probes, r.Errors)
	}
	if r.Errors[0].Probe != "link" || r.Errors[1].Probe != "route" {
		t.Errorf("Errors: got %v", r.Errors)
	}
	if r.Attr("route") != nil {
		t.Errorf("route: got %v, want nil", r.Attr("route"))
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"#inbox", "inbox", true},
		{"https://x/#label/A", "label/A", true},
		{"https://x/", "", false},
		{"https://x/#", "", false},
	}
	for _, tt := range tests {
		got, err := Route(tt.href)
		if got != tt.want || (err == nil) != tt.ok {
			t.Errorf("Route(%q): got %q, %v", tt.href, got, err)
		}
	}
}

func TestCount(t *testing.T) {
	if Count(nil) != 0 {
		t.Error("Count(nil) should be 0")
	}
}
