package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"latexlens/internal/models"
	"latexlens/internal/util"
)

// HistoryCache is a read-through cache in front of a HistoryBackend. One
// mutex guards both the snapshot and the modification time it was taken at.
type HistoryCache struct {
	backend HistoryBackend

	mu      sync.Mutex
	loaded  bool
	modTime time.Time
	data    []models.HistoryRecord
}

func NewHistoryCache(backend HistoryBackend) *HistoryCache {
	return &HistoryCache{backend: backend}
}

// Get returns a copy of the history, newest first.
func (c *HistoryCache) Get(ctx context.Context) ([]models.HistoryRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return cloneRecords(c.data), nil
}

func (c *HistoryCache) Append(ctx context.Context, rec models.HistoryRecord) error {
	return c.mutate(ctx, func(list []models.HistoryRecord) ([]models.HistoryRecord, error) {
		out := make([]models.HistoryRecord, 0, len(list)+1)
		out = append(out, rec)
		return append(out, list...), nil
	})
}

func (c *HistoryCache) UpdateTitle(ctx context.Context, id, title string) error {
	title = util.SanitizeTitle(title)
	return c.mutate(ctx, func(list []models.HistoryRecord) ([]models.HistoryRecord, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, fmt.Errorf("update title %s: %w", id, ErrHistoryItemNotFound)
		}
		list[i].Title = title
		return list, nil
	})
}

func (c *HistoryCache) SetFavorite(ctx context.Context, id string, favorite bool) error {
	return c.mutate(ctx, func(list []models.HistoryRecord) ([]models.HistoryRecord, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, fmt.Errorf("set favorite %s: %w", id, ErrHistoryItemNotFound)
		}
		list[i].IsFavorite = favorite
		return list, nil
	})
}

func (c *HistoryCache) Delete(ctx context.Context, id string) error {
	return c.mutate(ctx, func(list []models.HistoryRecord) ([]models.HistoryRecord, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, fmt.Errorf("delete %s: %w", id, ErrHistoryItemNotFound)
		}
		return append(list[:i], list[i+1:]...), nil
	})
}

// mutate applies fn to a private copy, writes it through and only then swaps
// the snapshot, so a failed write leaves the cache untouched.
func (c *HistoryCache) mutate(ctx context.Context, fn func([]models.HistoryRecord) ([]models.HistoryRecord, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshLocked(ctx); err != nil {
		return err
	}
	next, err := fn(cloneRecords(c.data))
	if err != nil {
		return err
	}
	if err := c.backend.Save(ctx, next); err != nil {
		return err
	}
	mt, err := c.backend.ModTime(ctx)
	if err != nil {
		// Saved, but the stamp is unknown: reload on next access.
		c.loaded = false
		return err
	}
	c.data = next
	c.modTime = mt
	c.loaded = true
	return nil
}

func (c *HistoryCache) refreshLocked(ctx context.Context) error {
	mt, err := c.backend.ModTime(ctx)
	if err != nil {
		return err
	}
	if c.loaded && mt.Equal(c.modTime) {
		return nil
	}
	data, err := c.backend.Load(ctx)
	if err != nil {
		return err
	}
	c.data = data
	c.modTime = mt
	c.loaded = true
	return nil
}

func indexOf(list []models.HistoryRecord, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneRecords(in []models.HistoryRecord) []models.HistoryRecord {
	out := make([]models.HistoryRecord, len(in))
	copy(out, in)
	return out
}
