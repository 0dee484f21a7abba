package storage

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS history_records (
  id               TEXT PRIMARY KEY,
  position         INTEGER NOT NULL,
  latex            TEXT NOT NULL,
  title            TEXT NOT NULL,
  is_favorite      BOOLEAN NOT NULL DEFAULT FALSE,
  confidence_score INTEGER NOT NULL DEFAULT 0,
  created_at       TIMESTAMPTZ NOT NULL,
  record           JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS history_records_position_idx ON history_records(position);

CREATE TABLE IF NOT EXISTS history_meta (
  id         INTEGER PRIMARY KEY,
  updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS stage_calls (
  call_id        UUID PRIMARY KEY,
  recognition_id TEXT NOT NULL,
  stage          TEXT NOT NULL,
  provider_name  TEXT NOT NULL,
  model          TEXT NOT NULL,
  status         TEXT NOT NULL,
  error_type     TEXT,
  image_sha256   TEXT,
  duration_ms    BIGINT NOT NULL DEFAULT 0,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS stage_calls_recognition_idx ON stage_calls(recognition_id);
`

// EnsureSchema creates the tables used by the Postgres history backend and the
// stage-call audit log.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
