package browser

import "testing"

func TestShouldBlock(t *testing.T) {
	set := blockSet([]string{"Images", "fonts", "media"})
	tests := []struct {
		typ  string
		want bool
	}{
		{"Image", true},
		{"Font", true},
		{"Media", true},
		{"Stylesheet", false},
		{"Document", false},
		{"XHR", false},
	}
	for _, tt := range tests {
		if got := shouldBlock(set, tt.typ); got != tt.want {
			t.Errorf("shouldBlock(%s): got %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestManager_ClosedBeforeStart(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(t.Context()); err != ErrClosed {
		t.Errorf("Start after Close: got %v, want ErrClosed", err)
	}
	if m.Browser() != nil {
		t.Error("Browser should be nil")
	}
}
