package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"latexlens/internal/models"
	"latexlens/internal/util"
)

var ErrHistoryItemNotFound = errors.New("history item not found")

// HistoryBackend persists the full ordered history list. ModTime returns the
// zero time when nothing has been written yet.
type HistoryBackend interface {
	Load(ctx context.Context) ([]models.HistoryRecord, error)
	Save(ctx context.Context, records []models.HistoryRecord) error
	ModTime(ctx context.Context) (time.Time, error)
}

const historyFilename = "history.json"

// FileHistory keeps the history as one JSON array on disk.
type FileHistory struct {
	path string
}

func NewFileHistory(dataDir string) *FileHistory {
	return &FileHistory{path: filepath.Join(dataDir, historyFilename)}
}

func (f *FileHistory) Path() string { return f.path }

func (f *FileHistory) Load(ctx context.Context) ([]models.HistoryRecord, error) {
	_ = ctx
	out := make([]models.HistoryRecord, 0)
	if _, err := util.ReadJSONFile(f.path, &out); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}

func (f *FileHistory) Save(ctx context.Context, records []models.HistoryRecord) error {
	_ = ctx
	if records == nil {
		records = []models.HistoryRecord{}
	}
	if err := util.WriteJSONAtomic(f.path, records); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (f *FileHistory) ModTime(ctx context.Context) (time.Time, error) {
	_ = ctx
	st, err := os.Stat(f.path)
	if os.IsNotExist(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("stat history: %w", err)
	}
	return st.ModTime(), nil
}
