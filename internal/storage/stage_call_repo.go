package storage

import (
	"context"
	"fmt"
)

type StageCallRecord struct {
	CallID        string `json:"call_id"`
	RecognitionID string `json:"recognition_id"`
	Stage         string `json:"stage"`
	ProviderName  string `json:"provider_name"`
	Model         string `json:"model"`
	Status        string `json:"status"`
	ErrorType     string `json:"error_type,omitempty"`
	ImageSHA256   string `json:"image_sha256,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
}

// StageCallRepo is the per-stage audit log of backend calls.
type StageCallRepo struct {
	db *DB
}

func NewStageCallRepo(db *DB) *StageCallRepo {
	return &StageCallRepo{db: db}
}

func (r *StageCallRepo) Insert(ctx context.Context, rec StageCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO stage_calls(call_id, recognition_id, stage, provider_name, model, status, error_type, image_sha256, duration_ms)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, NULLIF($7,''), NULLIF($8,''), $9)`,
		rec.CallID, rec.RecognitionID, rec.Stage, rec.ProviderName, rec.Model, rec.Status, rec.ErrorType, rec.ImageSHA256, rec.DurationMS)
	if err != nil {
		return fmt.Errorf("insert stage call: %w", err)
	}
	return nil
}

func (r *StageCallRepo) ListByRecognition(ctx context.Context, recognitionID string) ([]StageCallRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT call_id::text, recognition_id, stage, provider_name, model, status, COALESCE(error_type, ''), COALESCE(image_sha256, ''), duration_ms
FROM stage_calls WHERE recognition_id = $1 ORDER BY created_at ASC`, recognitionID)
	if err != nil {
		return nil, fmt.Errorf("list stage calls: %w", err)
	}
	defer rows.Close()

	out := make([]StageCallRecord, 0)
	for rows.Next() {
		var c StageCallRecord
		if err := rows.Scan(&c.CallID, &c.RecognitionID, &c.Stage, &c.ProviderName, &c.Model, &c.Status, &c.ErrorType, &c.ImageSHA256, &c.DurationMS); err != nil {
			return nil, fmt.Errorf("scan stage call: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage calls: %w", err)
	}
	return out, nil
}
