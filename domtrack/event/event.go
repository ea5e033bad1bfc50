// CLAUDE:SUMMARY Public wire types for detection events: one JSON record per match added to or removed from a watcher.
// Package event defines the structured detections emitted by domtrack.
// These are the public API contract: sinks, webhooks and the SQLite log
// all carry Detection values.
package event

import (
	"encoding/json"

	"github.com/hazyhaar/domsense/probe"
)

// Type is the kind of detection.
type Type string

const (
	TypeAdded   Type = "added"   // match entered the tracked set
	TypeRemoved Type = "removed" // match confirmed detached or torn down
)

// Detection is one match event, flattened for the wire. Element values are
// XPaths; a nil entry means the element was not found.
type Detection struct {
	ID         string             `json:"id"` // UUIDv7, evt_ prefix
	Type       Type               `json:"type"`
	Entity     string             `json:"entity"`
	WatcherID  string             `json:"watcher_id"`
	MatchID    string             `json:"match_id"`
	PageID     string             `json:"page_id,omitempty"`
	XPath      string             `json:"xpath"`
	Score      float64            `json:"score"`
	Probes     int                `json:"probes"`
	Errors     []probe.Failure    `json:"errors,omitempty"`
	Elements   map[string]*string `json:"elements,omitempty"`
	Attributes map[string]any     `json:"attributes,omitempty"`
	Snippet    string             `json:"snippet,omitempty"` // sanitised outer HTML
	Preview    string             `json:"preview,omitempty"` // markdown rendering
	FirstSeen  int64              `json:"first_seen"`        // epoch milliseconds
	Timestamp  int64              `json:"timestamp"`         // epoch milliseconds
}

// Marshal serialises a Detection to JSON.
func Marshal(d *Detection) ([]byte, error) {
	return json.Marshal(d)
}

// Unmarshal deserialises a Detection from JSON.
func Unmarshal(data []byte) (*Detection, error) {
	var d Detection
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
