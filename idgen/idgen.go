// Package idgen provides pluggable ID generation for watchers, matches and
// detection events.
//
// Constructors across domsense (detect, domtrack) accept a Generator, making
// the ID strategy a startup-time decision rather than a compile-time one.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// Prefixes for the IDs domsense hands out.
const (
	WatcherPrefix = "wch_"
	MatchPrefix   = "mat_"
	EventPrefix   = "evt_"
)

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, so detection logs order naturally by ID.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequential returns a Generator producing prefix1, prefix2, ... Safe for
// concurrent use. Meant for tests and reproducible reports.
func Sequential(prefix string) Generator {
	var n atomic.Uint64
	return func() string {
		return prefix + strconv.FormatUint(n.Add(1), 10)
	}
}

// Default is UUIDv7. Prefixed variants compose on top.
var Default Generator = UUIDv7()

// Watcher, Match and Event return the prefixed default generators.
func Watcher() Generator { return Prefixed(WatcherPrefix, Default) }
func Match() Generator   { return Prefixed(MatchPrefix, Default) }
func Event() Generator   { return Prefixed(EventPrefix, Default) }
