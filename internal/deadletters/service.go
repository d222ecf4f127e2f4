package deadletters

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/shared/metrics"
	"assessment-backend/internal/shared/telemetry"
)

// Enqueuer schedules a fresh export job.
type Enqueuer interface {
	Enqueue(ctx context.Context, in exportqueue.EnqueueInput, now time.Time) (exportqueue.Item, error)
}

// Service records exhausted exports and lets operators retry them.
type Service struct {
	Repo     Repo
	Queue    Enqueuer
	Notifier exportqueue.Notifier
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// MoveToDeadLetterQueue records the failure and removes the queue item atomically.
func (s *Service) MoveToDeadLetterQueue(ctx context.Context, in MoveInput) (Entry, error) {
	e := Entry{
		ID:           uuid.NewString(),
		ExportID:     in.ExportID,
		DocumentID:   in.DocumentID,
		ExportType:   in.ExportType,
		CustomerUUID: in.CustomerUUID,
		Actor:        in.Actor,
		ErrorMessage: in.Error,
		FailureKind:  in.FailureKind,
		Attempts:     in.Attempts,
		RequestID:    in.RequestID,
		UserAgent:    in.UserAgent,
		MovedAt:      s.now(),
	}
	if err := s.Repo.Move(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("move export %s to dead letter queue: %w", in.ExportID, err)
	}
	metrics.IncExportDeadLettered(in.ExportType)
	telemetry.Error("export.dead_lettered", map[string]any{
		"export_id":    in.ExportID,
		"document_id":  in.DocumentID,
		"export_type":  in.ExportType,
		"attempts":     in.Attempts,
		"failure_kind": in.FailureKind,
		"error":        in.Error,
		"request_id":   in.RequestID,
	})
	return e, nil
}

// List returns entries matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	return s.Repo.List(ctx, filter)
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id string) (Entry, error) {
	return s.Repo.Get(ctx, id)
}

// Requeue schedules the entry's (document, type) again and marks the entry resolved.
func (s *Service) Requeue(ctx context.Context, id, operator string) (Entry, exportqueue.Item, error) {
	e, err := s.Repo.Get(ctx, id)
	if err != nil {
		return Entry{}, exportqueue.Item{}, err
	}
	if e.Resolved() {
		return Entry{}, exportqueue.Item{}, ErrAlreadyResolved
	}
	exportType, err := exportqueue.ParseExportType(e.ExportType)
	if err != nil {
		return Entry{}, exportqueue.Item{}, err
	}

	now := s.now()
	item, err := s.Queue.Enqueue(ctx, exportqueue.EnqueueInput{
		DocumentID:   e.DocumentID,
		ExportType:   exportType,
		CustomerUUID: e.CustomerUUID,
		RequestID:    e.RequestID,
		UserAgent:    "dlq-requeue/" + operator,
	}, now)
	if err != nil {
		return Entry{}, exportqueue.Item{}, fmt.Errorf("requeue export: %w", err)
	}
	if err := s.Repo.MarkResolved(ctx, id, operator, item.ID, now); err != nil {
		return Entry{}, exportqueue.Item{}, err
	}
	metrics.IncExportEnqueued(string(exportType))
	if s.Notifier != nil {
		s.Notifier.Notify(ctx, []exportqueue.Item{item})
	}

	e.ResolvedAt = &now
	e.ResolvedBy = operator
	e.RequeuedExportID = item.ID
	telemetry.Info("export.dlq_requeued", map[string]any{
		"dlq_id":      id,
		"export_id":   item.ID,
		"document_id": e.DocumentID,
		"export_type": e.ExportType,
		"operator":    operator,
	})
	return e, item, nil
}
