// CLAUDE:SUMMARY In-process callback sink delivering detections via Go function calls with zero serialization.
package sink

import (
	"context"

	"github.com/hazyhaar/domsense/domtrack/event"
)

// Func is called for each detection.
type Func func(ctx context.Context, d event.Detection) error

// Callback delivers detections via Go function calls, for embedding
// domtrack in a larger process.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn Func) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, d event.Detection) error {
	if c.fn != nil {
		return c.fn(ctx, d)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
