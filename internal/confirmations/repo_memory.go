package confirmations

import (
	"context"
	"errors"
	"sync"
	"time"

	"assessment-backend/internal/documents"
	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/overrides"
	"assessment-backend/internal/shared/util"
)

// DocumentStore is the slice of the documents repo an accept touches.
type DocumentStore interface {
	GetByID(ctx context.Context, documentID string) (documents.Document, error)
	ListQuestions(ctx context.Context, documentID string) ([]documents.Question, error)
	ConsensusForDocument(ctx context.Context, documentID string) (map[string]documents.AIConsensusResult, error)
	UpdateReviewStatus(ctx context.Context, documentID string, status documents.ReviewStatus, at time.Time) error
}

// OverrideReader lists a document's active overrides.
type OverrideReader interface {
	ActiveForDocument(ctx context.Context, documentID string) (map[string]overrides.Event, error)
}

// QueueWriter schedules export jobs.
type QueueWriter interface {
	Enqueue(ctx context.Context, in exportqueue.EnqueueInput, now time.Time) (exportqueue.Item, error)
	Remove(ctx context.Context, id string) error
}

// MemoryRepo keeps snapshots in memory. Accepts for one document are
// serialized by a keyed mutex.
type MemoryRepo struct {
	locks     util.KeyedMutex
	mu        sync.RWMutex
	docs      DocumentStore
	overrides OverrideReader
	queue     QueueWriter
	snapshots map[string]ConfirmedAnalysis
}

// dequeue drops the items an undone accept created. Pending items it only
// refreshed were there before the accept and stay.
func (r *MemoryRepo) dequeue(ctx context.Context, items []exportqueue.Item, now time.Time) {
	for _, it := range items {
		if it.CreatedAt.Equal(now) {
			_ = r.queue.Remove(ctx, it.ID)
		}
	}
}

// NewMemoryRepo constructs a MemoryRepo over the other in-memory stores.
func NewMemoryRepo(docs DocumentStore, ov OverrideReader, queue QueueWriter) *MemoryRepo {
	return &MemoryRepo{
		docs:      docs,
		overrides: ov,
		queue:     queue,
		snapshots: make(map[string]ConfirmedAnalysis),
	}
}

func (r *MemoryRepo) Accept(ctx context.Context, documentID string, now time.Time, plan PlanFunc) (AcceptResult, error) {
	if err := ctx.Err(); err != nil {
		return AcceptResult{}, err
	}
	unlock := r.locks.Lock(documentID)
	defer unlock()

	doc, err := r.docs.GetByID(ctx, documentID)
	if errors.Is(err, documents.ErrNotFound) {
		return AcceptResult{}, ErrDocumentNotFound
	}
	if err != nil {
		return AcceptResult{}, err
	}
	in := Inputs{Document: doc}
	if in.Questions, err = r.docs.ListQuestions(ctx, documentID); err != nil {
		return AcceptResult{}, err
	}
	if in.Consensus, err = r.docs.ConsensusForDocument(ctx, documentID); err != nil {
		return AcceptResult{}, err
	}
	if in.Overrides, err = r.overrides.ActiveForDocument(ctx, documentID); err != nil {
		return AcceptResult{}, err
	}

	analysis, exports, err := plan(in)
	if err != nil {
		return AcceptResult{}, err
	}

	// Past this point the writes run to completion or are undone together;
	// a cancel can no longer leave the document half accepted.
	if err := ctx.Err(); err != nil {
		return AcceptResult{}, err
	}
	wctx := context.WithoutCancel(ctx)

	r.mu.Lock()
	prev, hadPrev := r.snapshots[documentID]
	r.snapshots[documentID] = cloneAnalysis(analysis)
	r.mu.Unlock()
	undo := func() {
		r.mu.Lock()
		if hadPrev {
			r.snapshots[documentID] = prev
		} else {
			delete(r.snapshots, documentID)
		}
		r.mu.Unlock()
		_ = r.docs.UpdateReviewStatus(wctx, documentID, doc.ReviewStatus, doc.UpdatedAt)
	}

	if err := r.docs.UpdateReviewStatus(wctx, documentID, analysis.ReviewStatus(), now); err != nil {
		undo()
		return AcceptResult{}, err
	}
	res := AcceptResult{Analysis: analysis}
	for _, e := range exports {
		item, err := r.queue.Enqueue(wctx, e, now)
		if err != nil {
			r.dequeue(wctx, res.Enqueued, now)
			undo()
			return AcceptResult{}, err
		}
		res.Enqueued = append(res.Enqueued, item)
	}
	return res, nil
}

func (r *MemoryRepo) Get(ctx context.Context, documentID string) (ConfirmedAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return ConfirmedAnalysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.snapshots[documentID]
	if !ok {
		return ConfirmedAnalysis{}, ErrNotFound
	}
	return cloneAnalysis(a), nil
}

var _ Repo = (*MemoryRepo)(nil)
