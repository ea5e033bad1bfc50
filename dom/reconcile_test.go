package dom

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parseTree(t *testing.T, s string) *html.Node {
	t.Helper()
	n, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("html.Parse: %v", err)
	}
	return n
}

func TestReconcile_KeepsIdentity(t *testing.T) {
	d := mustParse(t, page)
	a := byID(t, d, "a")

	next := parseTree(t, `<html><head></head><body>
<div id="list"><div class="item" id="a" data-new="1">one!</div><div class="item" id="c">three</div></div>
<p>tail</p>
</body></html>`)

	var recs []Record
	if _, err := d.Observe(d.Root(), ObserveOptions{ChildList: true, Attributes: true, CharacterData: true, Subtree: true}, func(r []Record) {
		recs = append(recs, r...)
	}); err != nil {
		t.Fatal(err)
	}
	if err := d.Reconcile(d.Root(), next); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	d.Flush()

	if byID(t, d, "a") != a {
		t.Error("#a lost its identity")
	}
	if AttrOr(a, "data-new", "") != "1" {
		t.Error("attribute not synced")
	}
	if Text(a) != "one!" {
		t.Errorf("text: got %q", Text(a))
	}
	if QueryFirst(d.Root(), MustCompile("#b")) != nil {
		t.Error("#b should be gone")
	}
	if QueryFirst(d.Root(), MustCompile("#c")) == nil {
		t.Error("#c should exist")
	}
	if Render(d.Root()) != Render(next) {
		t.Errorf("trees differ:\n%s\n%s", Render(d.Root()), Render(next))
	}

	var sawAttr, sawText, sawRemove, sawAdd bool
	for _, r := range recs {
		switch {
		case r.Type == Attributes && r.AttributeName == "data-new":
			sawAttr = true
		case r.Type == CharacterData:
			sawText = true
		case r.Type == ChildList && len(r.RemovedNodes) > 0:
			sawRemove = true
		case r.Type == ChildList && len(r.AddedNodes) > 0:
			sawAdd = true
		}
	}
	if !sawAttr || !sawText || !sawRemove || !sawAdd {
		t.Errorf("records: attr=%v text=%v remove=%v add=%v", sawAttr, sawText, sawRemove, sawAdd)
	}
}

func TestReconcile_NoChangeNoRecords(t *testing.T) {
	d := mustParse(t, page)
	calls := 0
	if _, err := d.Observe(d.Root(), ObserveOptions{ChildList: true, Attributes: true, CharacterData: true, Subtree: true}, func([]Record) { calls++ }); err != nil {
		t.Fatal(err)
	}
	if err := d.Reconcile(d.Root(), parseTree(t, page)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	d.Flush()
	if calls != 0 {
		t.Errorf("calls: got %d, want 0", calls)
	}
}
