package confirmations

import (
	"context"
	"time"

	"assessment-backend/internal/exportqueue"
)

// PlanFunc turns the locked inputs into the snapshot to store and the
// exports to schedule alongside it.
type PlanFunc func(in Inputs) (ConfirmedAnalysis, []exportqueue.EnqueueInput, error)

// AcceptResult is what one accept committed.
type AcceptResult struct {
	Analysis ConfirmedAnalysis
	Enqueued []exportqueue.Item
}

// Repo stores confirmed analyses.
type Repo interface {
	// Accept serializes on documentID, loads Inputs, runs plan, then replaces
	// the snapshot, sets the review status and enqueues the exports as one unit.
	Accept(ctx context.Context, documentID string, now time.Time, plan PlanFunc) (AcceptResult, error)
	Get(ctx context.Context, documentID string) (ConfirmedAnalysis, error)
}
