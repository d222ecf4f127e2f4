package exports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"assessment-backend/internal/artifacts"
	"assessment-backend/internal/confirmations"
	"assessment-backend/internal/deadletters"
	"assessment-backend/internal/documents"
	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/generateddocs"
	"assessment-backend/internal/shared/metrics"
	"assessment-backend/internal/shared/storage/object"
	"assessment-backend/internal/shared/telemetry"
)

const (
	workerActor              = "export-worker"
	defaultGenerationTimeout = 2 * time.Minute
)

// DocumentReader loads the parent document of an export.
type DocumentReader interface {
	GetByID(ctx context.Context, documentID string) (documents.Document, error)
}

// SnapshotReader loads a document's confirmed analysis.
type SnapshotReader interface {
	Get(ctx context.Context, documentID string) (confirmations.ConfirmedAnalysis, error)
}

// ArtifactGenerator renders an export from a snapshot.
type ArtifactGenerator interface {
	Generate(ctx context.Context, a confirmations.ConfirmedAnalysis, t exportqueue.ExportType) (artifacts.Artifact, error)
}

// DeadLetterMover hands exhausted exports to the dead letter queue.
type DeadLetterMover interface {
	MoveToDeadLetterQueue(ctx context.Context, in deadletters.MoveInput) (deadletters.Entry, error)
}

// Outcome is what ProcessExport did with an item.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeRetried      Outcome = "retried"
	OutcomeDeadLettered Outcome = "dead_lettered"
	OutcomeFailed       Outcome = "failed"
	// OutcomeSkipped means the item was not pending or was superseded.
	OutcomeSkipped Outcome = "skipped"
)

// Processor runs one export job end to end.
type Processor struct {
	Queue             exportqueue.Repo
	Documents         DocumentReader
	Snapshots         SnapshotReader
	Generator         ArtifactGenerator
	Store             object.Store
	Generated         generateddocs.Repo
	DeadLetters       DeadLetterMover
	GenerationTimeout time.Duration
	Now               func() time.Time
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// ProcessExport claims a pending item and generates it. Items that are not
// pending are left alone, so repeated calls for one id are harmless. A
// failed attempt is retried with backoff and dead-lettered once attempts
// run out; the returned error is only for storage failures while doing so.
func (p *Processor) ProcessExport(ctx context.Context, id string) (Outcome, error) {
	item, err := p.Queue.Claim(ctx, id, p.now())
	if errors.Is(err, exportqueue.ErrNotPending) || errors.Is(err, exportqueue.ErrNotFound) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("claim export %s: %w", id, err)
	}

	fields := map[string]any{
		"export_id":   item.ID,
		"document_id": item.DocumentID,
		"export_type": string(item.ExportType),
		"attempt":     item.Attempts + 1,
		"request_id":  item.RequestID,
	}
	telemetry.Info("export.started", fields)

	start := time.Now()
	genErr := p.generate(ctx, item)
	metrics.ObserveGeneration(time.Since(start))
	if genErr == nil {
		now := p.now()
		if err := p.Queue.Complete(ctx, item.ID, now, now.Add(exportqueue.CompletedRetention)); err != nil {
			return "", fmt.Errorf("complete export %s: %w", item.ID, err)
		}
		metrics.IncExportCompleted(string(item.ExportType))
		telemetry.Info("export.completed", fields)
		return OutcomeCompleted, nil
	}
	return p.fail(ctx, item, genErr)
}

func (p *Processor) generate(ctx context.Context, item exportqueue.Item) error {
	doc, err := p.Documents.GetByID(ctx, item.DocumentID)
	if errors.Is(err, documents.ErrNotFound) {
		return precondition(fmt.Errorf("document %s no longer exists", item.DocumentID))
	}
	if err != nil {
		return transient(fmt.Errorf("load document: %w", err))
	}
	snapshot, err := p.Snapshots.Get(ctx, item.DocumentID)
	if errors.Is(err, confirmations.ErrNotFound) {
		return precondition(fmt.Errorf("document %s has no confirmed analysis", item.DocumentID))
	}
	if err != nil {
		return transient(fmt.Errorf("load confirmed analysis: %w", err))
	}

	art, err := p.render(ctx, snapshot, item.ExportType)
	if err != nil {
		return err
	}

	key, err := object.NewKey(doc.CustomerUUID, art.FileName, "exports", doc.ID, string(item.ExportType))
	if err != nil {
		return precondition(fmt.Errorf("build storage key: %w", err))
	}
	size, err := p.Store.SaveWithKey(ctx, key, art.MimeType, bytes.NewReader(art.Data))
	if err != nil {
		return transient(fmt.Errorf("store artifact: %w", err))
	}

	prev, err := p.Generated.Replace(ctx, generateddocs.GeneratedDocument{
		ID:               uuid.NewString(),
		ParentDocumentID: doc.ID,
		ExportType:       string(item.ExportType),
		FilePath:         key,
		FileName:         art.FileName,
		MimeType:         art.MimeType,
		SizeBytes:        size,
		Tags:             []string{"export", string(item.ExportType), string(snapshot.ReviewStatus())},
		SnapshotAt:       snapshot.CreatedAt,
		CreatedAt:        p.now(),
	})
	if err != nil {
		p.deleteBlob(ctx, key, "record replace failed")
		return transient(fmt.Errorf("record generated document: %w", err))
	}
	if prev != nil && prev.FilePath != key {
		p.deleteBlob(ctx, prev.FilePath, "superseded by "+key)
	}
	return nil
}

// render runs the generator under the generation timeout. A generator that
// ignores its context is abandoned when the deadline passes.
func (p *Processor) render(ctx context.Context, a confirmations.ConfirmedAnalysis, t exportqueue.ExportType) (artifacts.Artifact, error) {
	timeout := p.GenerationTimeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		art artifacts.Artifact
		err error
	}
	done := make(chan result, 1)
	go func() {
		art, err := p.Generator.Generate(genCtx, a, t)
		done <- result{art, err}
	}()

	select {
	case r := <-done:
		switch {
		case r.err == nil:
			return r.art, nil
		case errors.Is(r.err, artifacts.ErrUnknownExportType):
			return artifacts.Artifact{}, precondition(r.err)
		default:
			return artifacts.Artifact{}, transient(fmt.Errorf("generate %s: %w", t, r.err))
		}
	case <-genCtx.Done():
		return artifacts.Artifact{}, transient(fmt.Errorf("generation timed out after %s: %w", timeout, genCtx.Err()))
	}
}

// deleteBlob removes a blob, recording it for the sweeper when that fails.
func (p *Processor) deleteBlob(ctx context.Context, key, reason string) {
	err := p.Store.Delete(ctx, key)
	if err == nil {
		return
	}
	metrics.IncOrphanBlob()
	telemetry.Warn("export.blob_delete_failed", map[string]any{"file_path": key, "reason": reason, "error": err})
	if recErr := p.Generated.RecordOrphan(ctx, key, reason+": "+err.Error(), p.now()); recErr != nil {
		telemetry.Error("export.orphan_record_failed", map[string]any{"file_path": key, "error": recErr})
	}
}

func (p *Processor) fail(ctx context.Context, item exportqueue.Item, genErr error) (Outcome, error) {
	attempts := item.Attempts + 1
	kind := KindOf(genErr)
	msg := genErr.Error()
	now := p.now()
	fields := map[string]any{
		"export_id":    item.ID,
		"document_id":  item.DocumentID,
		"export_type":  string(item.ExportType),
		"attempts":     attempts,
		"max_attempts": item.MaxAttempts,
		"failure_kind": string(kind),
		"error":        genErr,
		"request_id":   item.RequestID,
	}

	if attempts < item.MaxAttempts {
		next := now.Add(Backoff(attempts))
		err := p.Queue.Reschedule(ctx, item.ID, attempts, next, msg, now)
		if errors.Is(err, exportqueue.ErrSuperseded) {
			telemetry.Info("export.superseded", fields)
			if err := p.Queue.Remove(ctx, item.ID); err != nil && !errors.Is(err, exportqueue.ErrNotFound) {
				return "", fmt.Errorf("remove superseded export %s: %w", item.ID, err)
			}
			return OutcomeSkipped, nil
		}
		if err != nil {
			return "", fmt.Errorf("reschedule export %s: %w", item.ID, err)
		}
		fields["next_attempt_at"] = next
		metrics.IncExportRetried(string(item.ExportType))
		telemetry.Warn("export.retry_scheduled", fields)
		return OutcomeRetried, nil
	}

	_, err := p.DeadLetters.MoveToDeadLetterQueue(ctx, deadletters.MoveInput{
		ExportID:     item.ID,
		DocumentID:   item.DocumentID,
		ExportType:   string(item.ExportType),
		CustomerUUID: item.CustomerUUID,
		Actor:        workerActor,
		Error:        msg,
		FailureKind:  string(kind),
		Attempts:     attempts,
		RequestID:    item.RequestID,
		UserAgent:    item.UserAgent,
	})
	if err == nil {
		return OutcomeDeadLettered, nil
	}

	fields["dlq_error"] = err
	telemetry.Error("export.dlq_move_failed", fields)
	if markErr := p.Queue.MarkFailed(ctx, item.ID, attempts, msg, now); markErr != nil {
		return "", fmt.Errorf("mark export %s failed: %w", item.ID, markErr)
	}
	metrics.IncExportFailed(string(item.ExportType))
	return OutcomeFailed, nil
}
