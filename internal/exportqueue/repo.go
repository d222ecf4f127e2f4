package exportqueue

import (
	"context"
	"time"
)

// Repo persists export jobs. At most one pending item exists per
// (document, type); Enqueue refreshes it instead of adding another.
type Repo interface {
	Enqueue(ctx context.Context, in EnqueueInput, now time.Time) (Item, error)
	Get(ctx context.Context, id string) (Item, error)
	ListByDocument(ctx context.Context, documentID string) ([]Item, error)
	// NextDue returns the highest priority pending item whose scheduled time has passed.
	NextDue(ctx context.Context, now time.Time) (Item, bool, error)
	// Claim moves a pending item to processing. ErrNotPending if another run got there first.
	Claim(ctx context.Context, id string, now time.Time) (Item, error)
	Reschedule(ctx context.Context, id string, attempts int, at time.Time, lastError string, now time.Time) error
	Complete(ctx context.Context, id string, now, deleteAfter time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string, now time.Time) error
	Remove(ctx context.Context, id string) error
	// Cancel deletes a pending item. ErrNotPending once work has started.
	Cancel(ctx context.Context, id string) error
	// ResetProcessing returns items claimed at or before staleBefore and still
	// in processing to pending, due at now. Fresher claims are left to
	// whoever holds them.
	ResetProcessing(ctx context.Context, now, staleBefore time.Time) (int, error)
	// DeleteExpired drops completed items past their DeleteAfter.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Notifier is told about freshly enqueued items so a worker can pick them
// up before its next poll. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, items []Item)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, items []Item)

func (f NotifierFunc) Notify(ctx context.Context, items []Item) { f(ctx, items) }

// Notifiers fans out to every non-nil notifier.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, items []Item) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, items)
		}
	}
}
