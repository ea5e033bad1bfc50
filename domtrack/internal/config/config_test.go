package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
page_id: inbox
source:
  type: browser
  url: https://mail.example.com/
  resource_blocking: [images, fonts]
debounce:
  window: 50ms
watchers:
  - entity: message
    root: "div[role=main]"
    threshold: 0.5
    detach_grace: 0
  - entity: overlay
sinks:
  - type: webhook
    url: http://localhost:9000/hook
  - type: sqlite
    path: data/detections.db
http:
  addr: ":8087"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Type != "browser" || cfg.Source.Stealth != "headless" {
		t.Errorf("source: %+v", cfg.Source)
	}
	if cfg.Debounce.Window != 50*time.Millisecond || cfg.Debounce.SettleAfter != 200*time.Millisecond {
		t.Errorf("debounce: %+v", cfg.Debounce)
	}
	if cfg.Debounce.MaxBuffer != 1000 {
		t.Errorf("MaxBuffer: got %d", cfg.Debounce.MaxBuffer)
	}
	if len(cfg.Watchers) != 2 || cfg.Watchers[1].Root != "body" {
		t.Fatalf("watchers: %+v", cfg.Watchers)
	}
	if g := cfg.Watchers[0].DetachGrace; g == nil || *g != 0 {
		t.Errorf("detach_grace: got %v, want explicit 0", g)
	}
	if cfg.Watchers[1].DetachGrace != nil {
		t.Error("unset detach_grace should stay nil")
	}
	if cfg.Sinks[0].Retries != 3 || cfg.Sinks[0].Buffer != 256 {
		t.Errorf("sink defaults: %+v", cfg.Sinks[0])
	}
	if cfg.Snippet.MaxLen != 2048 {
		t.Errorf("snippet: %+v", cfg.Snippet)
	}
}

func TestParse_DefaultSink(t *testing.T) {
	cfg, err := Parse([]byte("source: {path: page.html}\nwatchers: [{entity: message}]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Sinks) != 1 || cfg.Sinks[0].Type != "stdout" {
		t.Errorf("sinks: %+v", cfg.Sinks)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no path", "watchers: [{entity: a}]", "file needs a path"},
		{"bad source", "source: {type: ftp}\nwatchers: [{entity: a}]", `unknown type "ftp"`},
		{"no watchers", "source: {path: x}", "at least one"},
		{"threshold", "source: {path: x}\nwatchers: [{entity: a, threshold: 2}]", "out of [0,1]"},
		{"webhook url", "source: {path: x}\nwatchers: [{entity: a}]\nsinks: [{type: webhook}]", "webhook needs a url"},
	}
	for _, tt := range tests {
		_, err := Parse([]byte(tt.yaml))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %v, want error containing %q", tt.name, err, tt.want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domtrack.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PageID != "inbox" {
		t.Errorf("PageID: got %q", cfg.PageID)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
