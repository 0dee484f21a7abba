package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"latexlens/internal/models"
	"latexlens/internal/util"
)

// PostgresHistory stores one row per record; history_meta.updated_at plays
// the role of the file modification time.
type PostgresHistory struct {
	db *DB
}

func NewPostgresHistory(db *DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

func (r *PostgresHistory) Load(ctx context.Context) ([]models.HistoryRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT record FROM history_records ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]models.HistoryRecord, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		var rec models.HistoryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode history record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

var historyColumns = []string{"id", "position", "latex", "title", "is_favorite", "confidence_score", "created_at", "record"}

// historyRows lays records out in historyColumns order; position keeps the
// newest-first list order.
func historyRows(records []models.HistoryRecord) ([][]any, error) {
	rows := make([][]any, 0, len(records))
	for i, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode history record %s: %w", rec.ID, err)
		}
		rows = append(rows, []any{
			rec.ID, i, rec.Latex, util.SanitizeTitle(rec.Title), rec.IsFavorite, rec.ConfidenceScore, rec.CreatedAt, raw,
		})
	}
	return rows, nil
}

// Save replaces the stored list and bumps the modification stamp in the same
// transaction.
func (r *PostgresHistory) Save(ctx context.Context, records []models.HistoryRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx save history: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM history_records`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	rows, err := historyRows(records)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"history_records"}, historyColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy history records: %w", err)
		}
	}
	_, err = tx.Exec(ctx, `
INSERT INTO history_meta (id, updated_at) VALUES (1, clock_timestamp())
ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("bump history stamp: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

func (r *PostgresHistory) ModTime(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := r.db.Pool.QueryRow(ctx, `SELECT updated_at FROM history_meta WHERE id = 1`).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read history stamp: %w", err)
	}
	return ts, nil
}
