package exports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"assessment-backend/internal/confirmations"
	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/generateddocs"
	"assessment-backend/internal/shared/metrics"
	"assessment-backend/internal/shared/storage/object"
	"assessment-backend/internal/shared/telemetry"
)

// Requester identifies who asked for exports.
type Requester struct {
	CustomerUUID string
	RequestID    string
	UserAgent    string
}

// DocumentExports is the export state of one document.
type DocumentExports struct {
	Items     []exportqueue.Item
	Generated []generateddocs.GeneratedDocument
}

// Service answers export requests from the API.
type Service struct {
	Queue       exportqueue.Repo
	Generated   generateddocs.Repo
	Snapshots   SnapshotReader
	Store       object.Store
	Notifier    exportqueue.Notifier
	MaxAttempts int
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// RequestExports schedules regeneration of the given types, or all types
// when none are named. The document must have been accepted.
func (s *Service) RequestExports(ctx context.Context, documentID string, types []exportqueue.ExportType, who Requester) ([]exportqueue.Item, error) {
	if _, err := s.Snapshots.Get(ctx, documentID); err != nil {
		if errors.Is(err, confirmations.ErrNotFound) {
			return nil, ErrNotAccepted
		}
		return nil, err
	}
	if len(types) == 0 {
		types = exportqueue.AllExportTypes
	}
	now := s.now()
	items := make([]exportqueue.Item, 0, len(types))
	for _, t := range types {
		item, err := s.Queue.Enqueue(ctx, exportqueue.EnqueueInput{
			DocumentID:   documentID,
			ExportType:   t,
			CustomerUUID: who.CustomerUUID,
			RequestID:    who.RequestID,
			UserAgent:    who.UserAgent,
			MaxAttempts:  s.MaxAttempts,
		}, now)
		if err != nil {
			return items, fmt.Errorf("enqueue %s: %w", t, err)
		}
		metrics.IncExportEnqueued(string(t))
		items = append(items, item)
	}
	if s.Notifier != nil {
		s.Notifier.Notify(ctx, items)
	}
	telemetry.Info("export.requested", map[string]any{
		"document_id": documentID,
		"customer_id": who.CustomerUUID,
		"request_id":  who.RequestID,
		"count":       len(items),
	})
	return items, nil
}

// ForDocument lists queue items and generated artifacts for a document.
func (s *Service) ForDocument(ctx context.Context, documentID string) (DocumentExports, error) {
	items, err := s.Queue.ListByDocument(ctx, documentID)
	if err != nil {
		return DocumentExports{}, err
	}
	generated, err := s.Generated.ListByParent(ctx, documentID)
	if err != nil {
		return DocumentExports{}, err
	}
	return DocumentExports{Items: items, Generated: generated}, nil
}

// Get returns one queue item.
func (s *Service) Get(ctx context.Context, exportID string) (exportqueue.Item, error) {
	item, err := s.Queue.Get(ctx, exportID)
	if errors.Is(err, exportqueue.ErrNotFound) {
		return exportqueue.Item{}, ErrNotFound
	}
	return item, err
}

// Cancel removes a pending item. Items already processing cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, exportID string) error {
	err := s.Queue.Cancel(ctx, exportID)
	if errors.Is(err, exportqueue.ErrNotFound) {
		return ErrNotFound
	}
	if err == nil {
		telemetry.Info("export.cancelled", map[string]any{"export_id": exportID})
	}
	return err
}

// Download opens the current artifact for a document and type.
func (s *Service) Download(ctx context.Context, documentID string, t exportqueue.ExportType) (generateddocs.GeneratedDocument, io.ReadCloser, error) {
	doc, err := s.Generated.Get(ctx, documentID, string(t))
	if errors.Is(err, generateddocs.ErrNotFound) {
		return generateddocs.GeneratedDocument{}, nil, ErrNotGenerated
	}
	if err != nil {
		return generateddocs.GeneratedDocument{}, nil, err
	}
	body, err := s.Store.Open(ctx, doc.FilePath)
	if errors.Is(err, object.ErrNotFound) {
		return generateddocs.GeneratedDocument{}, nil, ErrNotGenerated
	}
	if err != nil {
		return generateddocs.GeneratedDocument{}, nil, err
	}
	return doc, body, nil
}
