package generateddocs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type docKey struct {
	parent     string
	exportType string
}

// MemoryRepo stores generated documents in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu      sync.RWMutex
	docs    map[docKey]GeneratedDocument
	orphans map[string]Orphan
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:    make(map[docKey]GeneratedDocument),
		orphans: make(map[string]Orphan),
	}
}

func (r *MemoryRepo) Replace(ctx context.Context, doc GeneratedDocument) (*GeneratedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := docKey{doc.ParentDocumentID, doc.ExportType}
	var prev *GeneratedDocument
	if old, ok := r.docs[key]; ok {
		prev = &old
	}
	doc.Tags = append([]string(nil), doc.Tags...)
	r.docs[key] = doc
	return prev, nil
}

func (r *MemoryRepo) Get(ctx context.Context, parentDocumentID, exportType string) (GeneratedDocument, error) {
	if err := ctx.Err(); err != nil {
		return GeneratedDocument{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[docKey{parentDocumentID, exportType}]
	if !ok {
		return GeneratedDocument{}, ErrNotFound
	}
	return doc, nil
}

func (r *MemoryRepo) ListByParent(ctx context.Context, parentDocumentID string) ([]GeneratedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]GeneratedDocument, 0, 2)
	for key, doc := range r.docs {
		if key.parent == parentDocumentID {
			out = append(out, doc)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ExportType < out[j].ExportType })
	return out, nil
}

func (r *MemoryRepo) RecordOrphan(ctx context.Context, filePath, reason string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orphans[filePath]
	if !ok {
		o = Orphan{ID: uuid.NewString(), FilePath: filePath, CreatedAt: at}
	} else {
		o.Attempts++
		o.LastAttemptAt = &at
	}
	o.Reason = reason
	r.orphans[filePath] = o
	return nil
}

func (r *MemoryRepo) ListOrphans(ctx context.Context, limit int) ([]Orphan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Orphan, 0, len(r.orphans))
	for _, o := range r.orphans {
		out = append(out, o)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) DeleteOrphan(ctx context.Context, filePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orphans, filePath)
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
