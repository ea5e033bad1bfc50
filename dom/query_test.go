package dom

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestQueryAll_ExcludesRoot(t *testing.T) {
	d := mustParse(t, page)
	list := byID(t, d, "list")
	got := QueryAll(list, MustCompile("div"))
	if len(got) != 2 {
		t.Fatalf("QueryAll: got %d, want 2", len(got))
	}
	if AttrOr(got[0], "id", "") != "a" || AttrOr(got[1], "id", "") != "b" {
		t.Errorf("order: got %s, %s", AttrOr(got[0], "id", ""), AttrOr(got[1], "id", ""))
	}
}

func TestQueryOne(t *testing.T) {
	d := mustParse(t, page)
	if _, err := QueryOne(d.Root(), MustCompile(".item")); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("ambiguous: got %v", err)
	}
	if _, err := QueryOne(d.Root(), MustCompile(".nope")); !errors.Is(err, ErrNotFound) {
		t.Errorf("not found: got %v", err)
	}
	n, err := QueryOne(d.Root(), MustCompile("#b"))
	if err != nil {
		t.Fatalf("QueryOne: %v", err)
	}
	if Text(n) != "two" {
		t.Errorf("Text: got %q, want %q", Text(n), "two")
	}
}

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile("div[["); err == nil {
		t.Error("expected compile error")
	}
}

func TestSiblingAndNegation(t *testing.T) {
	d := mustParse(t, `<div id="m"><div role="heading">h</div><div></div><div>body</div></div>`)
	m := byID(t, d, "m")
	got := QueryFirst(m, MustCompile("div[role=heading] ~ div:not(:empty)"))
	if got == nil || Text(got) != "body" {
		t.Fatalf("sibling query: got %v", got)
	}
}

func TestClosestAndContains(t *testing.T) {
	d := mustParse(t, page)
	a := byID(t, d, "a")
	list := Closest(a.FirstChild, MustCompile("#list"))
	if list == nil {
		t.Fatal("Closest: nil")
	}
	if !Contains(list, a.FirstChild) {
		t.Error("list should contain the text of a")
	}
	if Contains(a, list) {
		t.Error("a should not contain list")
	}
}

func TestSortDocumentOrder(t *testing.T) {
	d := mustParse(t, page)
	a, b, list := byID(t, d, "a"), byID(t, d, "b"), byID(t, d, "list")
	nodes := []*html.Node{b, a, list}
	SortDocumentOrder(nodes)
	if nodes[0] != list || nodes[1] != a || nodes[2] != b {
		t.Errorf("order: got %s %s %s", AttrOr(nodes[0], "id", ""), AttrOr(nodes[1], "id", ""), AttrOr(nodes[2], "id", ""))
	}
}

func TestXPath(t *testing.T) {
	d := mustParse(t, page)
	tests := []struct {
		id   string
		want string
	}{
		{"list", "/html/body/div"},
		{"a", "/html/body/div/div[1]"},
		{"b", "/html/body/div/div[2]"},
	}
	for _, tt := range tests {
		if got := XPath(byID(t, d, tt.id)); got != tt.want {
			t.Errorf("XPath(#%s): got %q, want %q", tt.id, got, tt.want)
		}
	}
	if got := XPath(byID(t, d, "a").FirstChild); got != "/html/body/div/div[1]/text()" {
		t.Errorf("XPath(text): got %q", got)
	}
	if XPath(d.Root()) != "" {
		t.Error("document path should be empty")
	}
}

func TestRender(t *testing.T) {
	d := mustParse(t, page)
	if got := Render(byID(t, d, "a")); !strings.Contains(got, `id="a"`) {
		t.Errorf("Render: got %q", got)
	}
}
