package generateddocs

import (
	"context"
	"time"
)

// Repo persists generated document records and orphaned blobs.
type Repo interface {
	// Replace swaps in doc as the only record for its (parent, type) and
	// returns the record it displaced, if any.
	Replace(ctx context.Context, doc GeneratedDocument) (*GeneratedDocument, error)
	Get(ctx context.Context, parentDocumentID, exportType string) (GeneratedDocument, error)
	ListByParent(ctx context.Context, parentDocumentID string) ([]GeneratedDocument, error)

	// RecordOrphan notes a blob that still needs deleting, bumping its attempt count.
	RecordOrphan(ctx context.Context, filePath, reason string, at time.Time) error
	ListOrphans(ctx context.Context, limit int) ([]Orphan, error)
	DeleteOrphan(ctx context.Context, filePath string) error
}
