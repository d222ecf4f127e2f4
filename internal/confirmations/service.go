package confirmations

import (
	"context"
	"errors"
	"time"

	"assessment-backend/internal/documents"
	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/generateddocs"
	"assessment-backend/internal/shared/metrics"
	"assessment-backend/internal/shared/telemetry"
)

// QuestionReader reads a document's live questions and consensus.
type QuestionReader interface {
	ListQuestions(ctx context.Context, documentID string) ([]documents.Question, error)
	ConsensusForDocument(ctx context.Context, documentID string) (map[string]documents.AIConsensusResult, error)
}

// GeneratedLister lists a document's current artifacts.
type GeneratedLister interface {
	ListByParent(ctx context.Context, parentDocumentID string) ([]generateddocs.GeneratedDocument, error)
}

// Queue is the export queue surface used for repairs.
type Queue interface {
	QueueWriter
	ListByDocument(ctx context.Context, documentID string) ([]exportqueue.Item, error)
}

// Service freezes reviewed documents into confirmed analyses.
type Service struct {
	Repo        Repo
	Questions   QuestionReader
	Overrides   OverrideReader
	Generated   GeneratedLister
	Queue       Queue
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

// AcceptDocument snapshots the document's effective values and schedules
// regeneration of every export type. Concurrent accepts of one document
// run one after the other.
func (s *Service) AcceptDocument(ctx context.Context, documentID string, actor Actor) (ConfirmedAnalysis, error) {
	now := s.now()
	res, err := s.Repo.Accept(ctx, documentID, now, func(in Inputs) (ConfirmedAnalysis, []exportqueue.EnqueueInput, error) {
		resolved, count := Resolve(in.Questions, in.Consensus, in.Overrides)
		if !hasAnalysis(resolved) {
			return ConfirmedAnalysis{}, nil, ErrNoAnalysisAvailable
		}
		analysis := ConfirmedAnalysis{
			DocumentID:    in.Document.ID,
			CustomerUUID:  in.Document.CustomerUUID,
			FileName:      in.Document.FileName,
			Questions:     resolved,
			OverrideCount: count,
			AcceptedBy:    actor.CustomerUUID,
			CreatedAt:     now,
		}
		exports := make([]exportqueue.EnqueueInput, 0, len(exportqueue.AllExportTypes))
		for _, t := range exportqueue.AllExportTypes {
			exports = append(exports, s.enqueueInput(documentID, t, actor))
		}
		return analysis, exports, nil
	})
	if err != nil {
		return ConfirmedAnalysis{}, err
	}

	metrics.IncAccepted()
	for _, item := range res.Enqueued {
		metrics.IncExportEnqueued(string(item.ExportType))
	}
	s.notify(ctx, res.Enqueued)
	telemetry.Info("document.accepted", map[string]any{
		"document_id":    documentID,
		"customer_id":    actor.CustomerUUID,
		"request_id":     actor.RequestID,
		"override_count": res.Analysis.OverrideCount,
		"questions":      len(res.Analysis.Questions),
		"review_status":  string(res.Analysis.ReviewStatus()),
		"exports":        len(res.Enqueued),
	})
	return res.Analysis, nil
}

// Get returns the document's current snapshot.
func (s *Service) Get(ctx context.Context, documentID string) (ConfirmedAnalysis, error) {
	return s.Repo.Get(ctx, documentID)
}

// EffectiveValues resolves every question by the full priority order:
// confirmed analysis, then active override, then AI consensus, then not analyzed.
func (s *Service) EffectiveValues(ctx context.Context, documentID string) ([]QuestionResolution, error) {
	snapshot, err := s.Repo.Get(ctx, documentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	questions, err := s.Questions.ListQuestions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	consensus, err := s.Questions.ConsensusForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	active, err := s.Overrides.ActiveForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	live, _ := Resolve(questions, consensus, active)
	for id := range live {
		if frozen, ok := snapshot.Questions[id]; ok {
			frozen.Source = SourceConfirmed
			live[id] = frozen
		}
	}
	return ConfirmedAnalysis{Questions: live}.Ordered(), nil
}

// RepairMissing enqueues only the export types that have neither a
// generated document nor an outstanding job. Accept always regenerates;
// this is the operator's gap filler.
func (s *Service) RepairMissing(ctx context.Context, documentID string, actor Actor) ([]exportqueue.Item, error) {
	snapshot, err := s.Repo.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	generated, err := s.Generated.ListByParent(ctx, documentID)
	if err != nil {
		return nil, err
	}
	items, err := s.Queue.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	covered := make(map[exportqueue.ExportType]bool)
	for _, g := range generated {
		covered[exportqueue.ExportType(g.ExportType)] = true
	}
	for _, it := range items {
		if it.Status == exportqueue.StatusPending || it.Status == exportqueue.StatusProcessing {
			covered[it.ExportType] = true
		}
	}

	if actor.CustomerUUID == "" {
		actor.CustomerUUID = snapshot.CustomerUUID
	}
	now := s.now()
	var enqueued []exportqueue.Item
	for _, t := range exportqueue.AllExportTypes {
		if covered[t] {
			continue
		}
		item, err := s.Queue.Enqueue(ctx, s.enqueueInput(documentID, t, actor), now)
		if err != nil {
			return enqueued, err
		}
		metrics.IncExportEnqueued(string(t))
		enqueued = append(enqueued, item)
	}
	s.notify(ctx, enqueued)
	telemetry.Info("document.exports_repaired", map[string]any{
		"document_id": documentID,
		"enqueued":    len(enqueued),
	})
	return enqueued, nil
}

func (s *Service) enqueueInput(documentID string, t exportqueue.ExportType, actor Actor) exportqueue.EnqueueInput {
	return exportqueue.EnqueueInput{
		DocumentID:   documentID,
		ExportType:   t,
		CustomerUUID: actor.CustomerUUID,
		RequestID:    actor.RequestID,
		UserAgent:    actor.UserAgent,
		MaxAttempts:  s.MaxAttempts,
	}
}

func (s *Service) notify(ctx context.Context, items []exportqueue.Item) {
	if s.Notifier != nil && len(items) > 0 {
		s.Notifier.Notify(ctx, items)
	}
}
