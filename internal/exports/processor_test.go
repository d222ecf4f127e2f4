package exports

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"assessment-backend/internal/artifacts"
	"assessment-backend/internal/confirmations"
	"assessment-backend/internal/deadletters"
	"assessment-backend/internal/exportqueue"
)

func TestBackoffSchedule(t *testing.T) {
	want := []time.Duration{time.Minute, 4 * time.Minute, 16 * time.Minute, 64 * time.Minute}
	for i, d := range want {
		if got := Backoff(i + 1); got != d {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, d, got)
		}
	}
}

func TestRetriesWithBackoffThenDeadLetters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.Generator = generatorFunc(func(context.Context, confirmations.ConfirmedAnalysis, exportqueue.ExportType) (artifacts.Artifact, error) {
		return artifacts.Artifact{}, errors.New("renderer unavailable")
	})
	f.accept(t)
	rubricID := f.pendingID(t, exportqueue.TypeRubric)

	for i, wait := range []time.Duration{time.Minute, 4 * time.Minute, 16 * time.Minute} {
		res := f.worker.DrainPending(ctx)
		if res.Retried != 2 {
			t.Fatalf("drain %d: expected 2 retries, got %+v", i+1, res)
		}
		item, err := f.queue.Get(ctx, rubricID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if item.Attempts != i+1 || item.Status != exportqueue.StatusPending {
			t.Fatalf("drain %d: unexpected item %+v", i+1, item)
		}
		if !item.ScheduledAt.Equal(f.clock.Now().Add(wait)) {
			t.Fatalf("drain %d: expected retry at +%s, got %s", i+1, wait, item.ScheduledAt)
		}
		if !strings.Contains(item.LastError, "renderer unavailable") {
			t.Fatalf("expected last error recorded, got %q", item.LastError)
		}

		// Nothing is due until the backoff elapses.
		if res := f.worker.DrainPending(ctx); res.Processed != 0 {
			t.Fatalf("expected idle drain before backoff, got %+v", res)
		}
		f.clock.Advance(wait)
	}

	res := f.worker.DrainPending(ctx)
	if res.DeadLettered != 2 {
		t.Fatalf("expected both exports dead-lettered, got %+v", res)
	}
	if _, err := f.queue.Get(ctx, rubricID); !errors.Is(err, exportqueue.ErrNotFound) {
		t.Fatalf("expected queue item removed, got %v", err)
	}
	entries, err := f.dlq.List(ctx, deadletters.ListFilter{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 dead letters, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Attempts != 4 || e.Actor != "export-worker" || e.FailureKind != string(FailureTransient) || e.CustomerUUID != "cust-1" {
			t.Fatalf("unexpected entry %+v", e)
		}
	}
}

func TestSuccessOnLastAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var calls atomic.Int32
	f.processor.Generator = generatorFunc(func(ctx context.Context, a confirmations.ConfirmedAnalysis, typ exportqueue.ExportType) (artifacts.Artifact, error) {
		if calls.Add(1) <= 3 {
			return artifacts.Artifact{}, errors.New("flaky")
		}
		return artifacts.Generator{}.Generate(ctx, a, typ)
	})
	f.accept(t)
	rubricID := f.pendingID(t, exportqueue.TypeRubric)
	if err := f.queue.Cancel(ctx, f.pendingID(t, exportqueue.TypeCoverSheet)); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	for _, wait := range []time.Duration{time.Minute, 4 * time.Minute, 16 * time.Minute} {
		outcome, err := f.processor.ProcessExport(ctx, rubricID)
		if err != nil || outcome != OutcomeRetried {
			t.Fatalf("expected retry, got %s %v", outcome, err)
		}
		f.clock.Advance(wait)
	}
	outcome, err := f.processor.ProcessExport(ctx, rubricID)
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("expected completion, got %s %v", outcome, err)
	}
	item, err := f.queue.Get(ctx, rubricID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.Status != exportqueue.StatusCompleted || item.Attempts != 3 || item.LastError != "" {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.DeleteAfter == nil || !item.DeleteAfter.Equal(f.clock.Now().Add(exportqueue.CompletedRetention)) {
		t.Fatalf("expected retention deadline, got %v", item.DeleteAfter)
	}
}

func TestProcessExportSkipsNonPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t)
	id := f.pendingID(t, exportqueue.TypeRubric)

	if outcome, err := f.processor.ProcessExport(ctx, id); err != nil || outcome != OutcomeCompleted {
		t.Fatalf("first run: %s %v", outcome, err)
	}
	if outcome, err := f.processor.ProcessExport(ctx, id); err != nil || outcome != OutcomeSkipped {
		t.Fatalf("second run should skip, got %s %v", outcome, err)
	}
	if outcome, err := f.processor.ProcessExport(ctx, "missing"); err != nil || outcome != OutcomeSkipped {
		t.Fatalf("missing id should skip, got %s %v", outcome, err)
	}
}

func TestRegenerationReplacesArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t)
	if res := f.worker.DrainPending(ctx); res.Completed != 2 {
		t.Fatalf("expected 2 completions, got %+v", res)
	}
	first, err := f.generated.Get(ctx, "doc-1", string(exportqueue.TypeRubric))
	if err != nil {
		t.Fatalf("get generated: %v", err)
	}
	if first.FileName != "Unit_3_Quiz-rubric.pdf" || first.MimeType != artifacts.MimePDF || first.SizeBytes == 0 {
		t.Fatalf("unexpected generated doc %+v", first)
	}

	f.clock.Advance(time.Minute)
	if _, err := f.svc.RequestExports(ctx, "doc-1", nil, Requester{CustomerUUID: "cust-1"}); err != nil {
		t.Fatalf("request: %v", err)
	}
	if res := f.worker.DrainPending(ctx); res.Completed != 2 {
		t.Fatalf("expected 2 completions, got %+v", res)
	}

	docs, err := f.generated.ListByParent(ctx, "doc-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected one generated doc per type, got %d", len(docs))
	}
	second, err := f.generated.Get(ctx, "doc-1", string(exportqueue.TypeRubric))
	if err != nil {
		t.Fatalf("get generated: %v", err)
	}
	if second.ID == first.ID || second.FilePath == first.FilePath {
		t.Fatalf("expected a fresh artifact, got %+v", second)
	}
	if n := f.blobCount(t); n != 2 {
		t.Fatalf("expected superseded blobs deleted, found %d files", n)
	}
}

func TestGenerationTimeoutIsTransient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	f.processor.GenerationTimeout = 20 * time.Millisecond
	f.processor.Generator = generatorFunc(func(context.Context, confirmations.ConfirmedAnalysis, exportqueue.ExportType) (artifacts.Artifact, error) {
		<-release
		return artifacts.Artifact{}, nil
	})
	f.accept(t)
	id := f.pendingID(t, exportqueue.TypeRubric)

	outcome, err := f.processor.ProcessExport(ctx, id)
	if err != nil || outcome != OutcomeRetried {
		t.Fatalf("expected retry after timeout, got %s %v", outcome, err)
	}
	item, _ := f.queue.Get(ctx, id)
	if !strings.Contains(item.LastError, "timed out") || !strings.HasPrefix(item.LastError, string(FailureTransient)) {
		t.Fatalf("unexpected last error %q", item.LastError)
	}
}

func TestUnknownTypeIsPrecondition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.processor.Generator = generatorFunc(func(context.Context, confirmations.ConfirmedAnalysis, exportqueue.ExportType) (artifacts.Artifact, error) {
		return artifacts.Artifact{}, artifacts.ErrUnknownExportType
	})
	f.accept(t)
	id := f.pendingID(t, exportqueue.TypeCoverSheet)

	if outcome, _ := f.processor.ProcessExport(ctx, id); outcome != OutcomeRetried {
		t.Fatalf("expected retry, got %s", outcome)
	}
	item, _ := f.queue.Get(ctx, id)
	if !strings.HasPrefix(item.LastError, string(FailurePrecondition)) {
		t.Fatalf("expected precondition failure, got %q", item.LastError)
	}
}

func TestMissingSnapshotIsPrecondition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item, err := f.queue.Enqueue(ctx, exportqueue.EnqueueInput{DocumentID: "doc-1", ExportType: exportqueue.TypeRubric}, base)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if outcome, _ := f.processor.ProcessExport(ctx, item.ID); outcome != OutcomeRetried {
		t.Fatalf("expected retry, got %s", outcome)
	}
	got, _ := f.queue.Get(ctx, item.ID)
	if !strings.HasPrefix(got.LastError, string(FailurePrecondition)) || !strings.Contains(got.LastError, "no confirmed analysis") {
		t.Fatalf("unexpected last error %q", got.LastError)
	}
}

type failingMover struct{}

func (failingMover) MoveToDeadLetterQueue(context.Context, deadletters.MoveInput) (deadletters.Entry, error) {
	return deadletters.Entry{}, errors.New("dlq down")
}

func TestDeadLetterFailureMarksItemFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirm.MaxAttempts = 1
	f.processor.DeadLetters = failingMover{}
	f.processor.Generator = generatorFunc(func(context.Context, confirmations.ConfirmedAnalysis, exportqueue.ExportType) (artifacts.Artifact, error) {
		return artifacts.Artifact{}, errors.New("boom")
	})
	f.accept(t)
	id := f.pendingID(t, exportqueue.TypeRubric)

	outcome, err := f.processor.ProcessExport(ctx, id)
	if err != nil || outcome != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s %v", outcome, err)
	}
	item, err := f.queue.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.Status != exportqueue.StatusFailed || item.Attempts != 1 {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestRetrySupersededByNewRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t)
	id := f.pendingID(t, exportqueue.TypeRubric)
	f.processor.Generator = generatorFunc(func(ctx context.Context, _ confirmations.ConfirmedAnalysis, _ exportqueue.ExportType) (artifacts.Artifact, error) {
		if _, err := f.svc.RequestExports(ctx, "doc-1", []exportqueue.ExportType{exportqueue.TypeRubric}, Requester{CustomerUUID: "cust-1"}); err != nil {
			t.Errorf("request: %v", err)
		}
		return artifacts.Artifact{}, errors.New("stale")
	})

	outcome, err := f.processor.ProcessExport(ctx, id)
	if err != nil || outcome != OutcomeSkipped {
		t.Fatalf("expected superseded retry to be skipped, got %s %v", outcome, err)
	}
	if _, err := f.queue.Get(ctx, id); !errors.Is(err, exportqueue.ErrNotFound) {
		t.Fatalf("expected stale item removed, got %v", err)
	}
	if fresh := f.pendingID(t, exportqueue.TypeRubric); fresh == id {
		t.Fatalf("expected a different pending item")
	}
}
