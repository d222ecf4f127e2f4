package deadletters

import (
	"context"
	"sort"
	"sync"
	"time"
)

// QueueRemover deletes an export queue item.
type QueueRemover interface {
	Remove(ctx context.Context, id string) error
}

// MemoryRepo stores entries in memory. Move removes the queue item first so
// a failed removal leaves no entry behind.
type MemoryRepo struct {
	mu      sync.RWMutex
	queue   QueueRemover
	entries map[string]Entry
}

// NewMemoryRepo constructs a MemoryRepo over the queue it drains.
func NewMemoryRepo(queue QueueRemover) *MemoryRepo {
	return &MemoryRepo{queue: queue, entries: make(map[string]Entry)}
}

func (r *MemoryRepo) Move(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queue != nil {
		if err := r.queue.Remove(ctx, entry.ExportID); err != nil {
			return err
		}
	}
	r.entries[entry.ID] = entry
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Entry, 0)
	for _, e := range r.entries {
		if filter.CustomerUUID != "" && e.CustomerUUID != filter.CustomerUUID {
			continue
		}
		if filter.DocumentID != "" && e.DocumentID != filter.DocumentID {
			continue
		}
		if !filter.IncludeResolved && e.Resolved() {
			continue
		}
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].MovedAt.Equal(out[j].MovedAt) {
			return out[i].MovedAt.After(out[j].MovedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Offset >= len(out) {
		return []Entry{}, nil
	}
	if filter.Offset > 0 {
		out = out[filter.Offset:]
	}
	if n := filter.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (r *MemoryRepo) MarkResolved(ctx context.Context, id, resolvedBy, requeuedExportID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.Resolved() {
		return ErrAlreadyResolved
	}
	e.ResolvedAt = &at
	e.ResolvedBy = resolvedBy
	e.RequeuedExportID = requeuedExportID
	r.entries[id] = e
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
