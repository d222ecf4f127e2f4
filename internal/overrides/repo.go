package overrides

import (
	"context"
	"time"
)

// Repo stores the override event log and the per-question state pointer.
type Repo interface {
	// Append writes an override event and makes it the question's active
	// override in one atomic step, superseding any previous one.
	Append(ctx context.Context, ev Event) error
	// Revert appends a revert event for the active override and marks the
	// question reverted. Returns ErrNoActiveOverride when nothing is active.
	Revert(ctx context.Context, questionID, customerUUID, eventID string, at time.Time) (Event, error)
	Active(ctx context.Context, questionID string) (Event, bool, error)
	// ActiveForDocument maps question id to active override for a document.
	ActiveForDocument(ctx context.Context, documentID string) (map[string]Event, error)
	// History returns every event for the question, newest first, with derived flags.
	History(ctx context.Context, questionID string) ([]Event, error)
}
