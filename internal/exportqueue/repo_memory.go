package exportqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo stores export items in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[string]Item)}
}

func (r *MemoryRepo) Enqueue(ctx context.Context, in EnqueueInput, now time.Time) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if _, err := ParseExportType(string(in.ExportType)); err != nil {
		return Item{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.pendingLocked(in.DocumentID, in.ExportType, ""); ok {
		existing.Attempts = 0
		existing.MaxAttempts = in.maxAttempts()
		existing.Priority = in.Priority
		existing.ScheduledAt = now
		existing.CustomerUUID = in.CustomerUUID
		existing.RequestID = in.RequestID
		existing.UserAgent = in.UserAgent
		existing.LastError = ""
		existing.UpdatedAt = now
		r.items[existing.ID] = existing
		return existing, nil
	}
	item := Item{
		ID:           uuid.NewString(),
		DocumentID:   in.DocumentID,
		ExportType:   in.ExportType,
		Status:       StatusPending,
		MaxAttempts:  in.maxAttempts(),
		Priority:     in.Priority,
		ScheduledAt:  now,
		CustomerUUID: in.CustomerUUID,
		RequestID:    in.RequestID,
		UserAgent:    in.UserAgent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.items[item.ID] = item
	return item, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (r *MemoryRepo) ListByDocument(ctx context.Context, documentID string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Item, 0)
	for _, item := range r.items {
		if item.DocumentID == documentID {
			out = append(out, item)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ExportType < out[j].ExportType
	})
	return out, nil
}

func (r *MemoryRepo) NextDue(ctx context.Context, now time.Time) (Item, bool, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		best  Item
		found bool
	)
	for _, item := range r.items {
		if item.Status != StatusPending || item.ScheduledAt.After(now) {
			continue
		}
		if !found || before(item, best) {
			best, found = item, true
		}
	}
	return best, found, nil
}

// before orders due items by priority, then schedule, then age.
func before(a, b Item) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.ScheduledAt.Equal(b.ScheduledAt) {
		return a.ScheduledAt.Before(b.ScheduledAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *MemoryRepo) Claim(ctx context.Context, id string, now time.Time) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	if item.Status != StatusPending {
		return Item{}, ErrNotPending
	}
	item.Status = StatusProcessing
	item.UpdatedAt = now
	r.items[id] = item
	return item, nil
}

func (r *MemoryRepo) Reschedule(ctx context.Context, id string, attempts int, at time.Time, lastError string, now time.Time) error {
	return r.update(ctx, id, func(item *Item) error {
		if _, ok := r.pendingLocked(item.DocumentID, item.ExportType, item.ID); ok {
			return ErrSuperseded
		}
		item.Status = StatusPending
		item.Attempts = attempts
		item.ScheduledAt = at
		item.LastError = lastError
		item.UpdatedAt = now
		return nil
	})
}

func (r *MemoryRepo) Complete(ctx context.Context, id string, now, deleteAfter time.Time) error {
	return r.update(ctx, id, func(item *Item) error {
		item.Status = StatusCompleted
		item.LastError = ""
		item.UpdatedAt = now
		item.CompletedAt = &now
		item.DeleteAfter = &deleteAfter
		return nil
	})
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, id string, attempts int, lastError string, now time.Time) error {
	return r.update(ctx, id, func(item *Item) error {
		item.Status = StatusFailed
		item.Attempts = attempts
		item.LastError = lastError
		item.UpdatedAt = now
		return nil
	})
}

func (r *MemoryRepo) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryRepo) Cancel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	if item.Status != StatusPending {
		return ErrNotPending
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryRepo) ResetProcessing(ctx context.Context, now, staleBefore time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, item := range r.items {
		if item.Status != StatusProcessing || item.UpdatedAt.After(staleBefore) {
			continue
		}
		if _, ok := r.pendingLocked(item.DocumentID, item.ExportType, id); ok {
			delete(r.items, id)
			continue
		}
		item.Status = StatusPending
		item.ScheduledAt = now
		item.UpdatedAt = now
		r.items[id] = item
		n++
	}
	return n, nil
}

func (r *MemoryRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, item := range r.items {
		if item.Status == StatusCompleted && item.DeleteAfter != nil && !item.DeleteAfter.After(now) {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) update(ctx context.Context, id string, fn func(*Item) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&item); err != nil {
		return err
	}
	r.items[id] = item
	return nil
}

func (r *MemoryRepo) pendingLocked(documentID string, t ExportType, exceptID string) (Item, bool) {
	for id, item := range r.items {
		if id != exceptID && item.DocumentID == documentID && item.ExportType == t && item.Status == StatusPending {
			return item, true
		}
	}
	return Item{}, false
}

var _ Repo = (*MemoryRepo)(nil)
