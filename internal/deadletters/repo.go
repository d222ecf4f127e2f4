package deadletters

import (
	"context"
	"time"
)

// Repo persists dead letter entries.
type Repo interface {
	// Move inserts entry and deletes its export queue item as one unit.
	Move(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	MarkResolved(ctx context.Context, id, resolvedBy, requeuedExportID string, at time.Time) error
}
