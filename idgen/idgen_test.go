package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	// UUID format: 8-4-4-4-12
	if parts := strings.Split(id, "-"); len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		id := gen()
		if id <= prev {
			t.Fatalf("UUIDv7: %q not after %q", id, prev)
		}
		prev = id
	}
}

func TestPrefixedDefaults(t *testing.T) {
	tests := []struct {
		gen    Generator
		prefix string
	}{
		{Watcher(), "wch_"},
		{Match(), "mat_"},
		{Event(), "evt_"},
	}
	for _, tt := range tests {
		id := tt.gen()
		if !strings.HasPrefix(id, tt.prefix) {
			t.Errorf("got %q, want prefix %q", id, tt.prefix)
		}
	}
}

func TestSequential(t *testing.T) {
	gen := Sequential("m")
	if got := gen(); got != "m1" {
		t.Fatalf("first: got %q, want m1", got)
	}
	if got := gen(); got != "m2" {
		t.Fatalf("second: got %q, want m2", got)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	gen := Sequential("x")
	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate %q", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 800 {
		t.Errorf("ids: got %d, want 800", len(seen))
	}
}
