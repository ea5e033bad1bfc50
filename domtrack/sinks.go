package domtrack

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/domsense/domtrack/event"
	"github.com/hazyhaar/domsense/domtrack/internal/sink"
	"github.com/hazyhaar/domsense/domtrack/internal/store"
)

// Sink is the output interface for detections.
type Sink = sink.Sink

// Store is the SQLite detection log.
type Store = store.Store

// EntityStats summarises the log for one entity.
type EntityStats = store.EntityStats

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, retries int, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookRetries(retries), sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink.
func NewCallbackSink(fn func(ctx context.Context, d event.Detection) error) Sink {
	return sink.NewCallback(fn)
}

// OpenStore opens the SQLite detection log at path.
func OpenStore(path string) (*Store, error) {
	return store.Open(path)
}

// BuildSinks creates the sinks a configuration lists. Each one is wrapped
// in a bounded queue so delivery never blocks the document loop. The SQLite
// store, when configured, is also returned for statistics.
func BuildSinks(cfg *Config, logger *slog.Logger) ([]Sink, *Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var out []Sink
	var st *Store
	closeAll := func() {
		for _, s := range out {
			s.Close()
		}
	}
	for i, sc := range cfg.Sinks {
		var s Sink
		switch sc.Type {
		case "stdout":
			s = sink.NewStdout(nil)
		case "webhook":
			s = NewWebhookSink(sc.URL, sc.Retries, logger)
		case "sqlite":
			db, err := store.Open(sc.Path)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("domtrack: sinks[%d]: %w", i, err)
			}
			if st == nil {
				st = db
			}
			s = db
		default:
			closeAll()
			return nil, nil, fmt.Errorf("domtrack: sinks[%d]: unknown type %q", i, sc.Type)
		}
		out = append(out, sink.NewAsync(s, sc.Buffer, logger))
	}
	return out, st, nil
}
