// Package sink defines output backends for domtrack detections.
package sink

import (
	"context"

	"github.com/hazyhaar/domsense/domtrack/event"
)

// Sink is the output interface. Implementations deliver detections to
// different backends (stdout, webhook, SQLite, in-process callback).
type Sink interface {
	Send(ctx context.Context, d event.Detection) error
	Close() error
}
