package store

// Schema contains the DDL for the detection log.
const Schema = `
-- One row per Added or Removed detection.
CREATE TABLE IF NOT EXISTS detections (
    id          TEXT PRIMARY KEY,
    type        TEXT NOT NULL,
    entity      TEXT NOT NULL,
    watcher_id  TEXT NOT NULL,
    match_id    TEXT NOT NULL,
    page_id     TEXT NOT NULL DEFAULT '',
    xpath       TEXT NOT NULL DEFAULT '',
    score       REAL NOT NULL,
    probes      INTEGER NOT NULL,
    attributes  TEXT NOT NULL DEFAULT '{}',
    snippet     TEXT NOT NULL DEFAULT '',
    first_seen  INTEGER NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_detections_entity ON detections(entity, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_detections_match ON detections(match_id);

-- Failed probes of each detection, for drift statistics.
CREATE TABLE IF NOT EXISTS probe_failures (
    detection_id TEXT NOT NULL REFERENCES detections(id) ON DELETE CASCADE,
    entity       TEXT NOT NULL,
    probe        TEXT NOT NULL,
    message      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_probe_failures_entity ON probe_failures(entity, probe);
`
