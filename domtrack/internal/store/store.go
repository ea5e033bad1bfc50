// CLAUDE:SUMMARY SQLite detection log: a write-only sink recording every detection and its failed probes, plus score statistics.
// Package store persists domtrack detections in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/domsense/dbopen"
	"github.com/hazyhaar/domsense/domtrack/event"
)

// Store is the detection log. It implements sink.Sink.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the log at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{DB: db}, nil
}

// New wraps an open database. The schema must already be applied.
func New(db *sql.DB) *Store { return &Store{DB: db} }

// Close closes the database.
func (s *Store) Close() error { return s.DB.Close() }

// Send records one detection with its failed probes.
func (s *Store) Send(ctx context.Context, d event.Detection) error {
	attrs, err := json.Marshal(d.Attributes)
	if err != nil {
		return fmt.Errorf("store: marshal attributes: %w", err)
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO detections
			  (id, type, entity, watcher_id, match_id, page_id, xpath, score, probes, attributes, snippet, first_seen, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, string(d.Type), d.Entity, d.WatcherID, d.MatchID, d.PageID, d.XPath,
			d.Score, d.Probes, string(attrs), d.Snippet, d.FirstSeen, d.Timestamp,
		); err != nil {
			return fmt.Errorf("store: insert detection: %w", err)
		}
		for _, f := range d.Errors {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO probe_failures (detection_id, entity, probe, message) VALUES (?, ?, ?, ?)`,
				d.ID, d.Entity, f.Probe, f.Message,
			); err != nil {
				return fmt.Errorf("store: insert failure: %w", err)
			}
		}
		return nil
	})
}

// EntityStats summarises the log for one entity.
type EntityStats struct {
	Entity    string         `json:"entity"`
	Added     int            `json:"added"`
	Removed   int            `json:"removed"`
	MeanScore float64        `json:"mean_score"` // over added detections
	MinScore  float64        `json:"min_score"`
	Failures  map[string]int `json:"failures"` // probe name -> count
}

// Stats returns per-entity statistics, sorted by entity name.
func (s *Store) Stats(ctx context.Context) ([]EntityStats, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT entity,
		       SUM(CASE WHEN type = 'added' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN type = 'removed' THEN 1 ELSE 0 END),
		       COALESCE(AVG(CASE WHEN type = 'added' THEN score END), 0),
		       COALESCE(MIN(CASE WHEN type = 'added' THEN score END), 0)
		FROM detections GROUP BY entity ORDER BY entity`)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	var out []EntityStats
	index := make(map[string]int)
	for rows.Next() {
		st := EntityStats{Failures: make(map[string]int)}
		if err := rows.Scan(&st.Entity, &st.Added, &st.Removed, &st.MeanScore, &st.MinScore); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: stats scan: %w", err)
		}
		index[st.Entity] = len(out)
		out = append(out, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}

	frows, err := s.DB.QueryContext(ctx,
		`SELECT entity, probe, COUNT(*) FROM probe_failures GROUP BY entity, probe`)
	if err != nil {
		return nil, fmt.Errorf("store: failures: %w", err)
	}
	defer frows.Close()
	for frows.Next() {
		var entity, probe string
		var n int
		if err := frows.Scan(&entity, &probe, &n); err != nil {
			return nil, fmt.Errorf("store: failures scan: %w", err)
		}
		if i, ok := index[entity]; ok {
			out[i].Failures[probe] = n
		}
	}
	return out, frows.Err()
}

// Recent returns the latest detections for entity, newest first. An empty
// entity matches all. Errors and elements are not restored.
func (s *Store) Recent(ctx context.Context, entity string, limit int) ([]event.Detection, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, type, entity, watcher_id, match_id, page_id, xpath, score, probes, attributes, snippet, first_seen, created_at
		FROM detections
		WHERE ? = '' OR entity = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, entity, entity, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []event.Detection
	for rows.Next() {
		var d event.Detection
		var typ, attrs string
		if err := rows.Scan(&d.ID, &typ, &d.Entity, &d.WatcherID, &d.MatchID, &d.PageID, &d.XPath,
			&d.Score, &d.Probes, &attrs, &d.Snippet, &d.FirstSeen, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		d.Type = event.Type(typ)
		if err := json.Unmarshal([]byte(attrs), &d.Attributes); err != nil {
			return nil, fmt.Errorf("store: recent attributes: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
