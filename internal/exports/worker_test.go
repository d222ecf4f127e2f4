package exports

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"assessment-backend/internal/artifacts"
	"assessment-backend/internal/confirmations"
	"assessment-backend/internal/deadletters"
	"assessment-backend/internal/exportqueue"
)

func TestConcurrentDrainIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	f.processor.Generator = generatorFunc(func(ctx context.Context, a confirmations.ConfirmedAnalysis, typ exportqueue.ExportType) (artifacts.Artifact, error) {
		started <- struct{}{}
		<-release
		return artifacts.Generator{}.Generate(ctx, a, typ)
	})
	f.accept(t)

	done := make(chan DrainResult, 1)
	go func() { done <- f.worker.DrainPending(ctx) }()
	<-started

	if res := f.worker.DrainPending(ctx); !res.Skipped {
		t.Fatalf("expected overlapping drain to be skipped, got %+v", res)
	}
	if res := f.worker.Drain(ctx); !res.Skipped {
		t.Fatalf("expected Drain to be skipped while draining, got %+v", res)
	}

	close(release)
	res := <-done
	if res.Skipped || res.Completed != 2 {
		t.Fatalf("expected first drain to finish both exports, got %+v", res)
	}
}

func TestRunDrainsOnKick(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan error, 1)
	go func() { stopped <- f.worker.Run(ctx) }()

	f.confirm.Notifier = f.worker
	f.accept(t)

	deadline := time.Now().Add(5 * time.Second)
	for {
		docs, err := f.generated.ListByParent(ctx, "doc-1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(docs) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker did not generate exports after kick, have %d", len(docs))
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestDrainRunsInlineWithoutActor(t *testing.T) {
	f := newFixture(t)
	f.accept(t)
	res := f.worker.Drain(context.Background())
	if res.Skipped || res.Completed != 2 {
		t.Fatalf("expected inline drain, got %+v", res)
	}
}

func TestRunRecoversStaleClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t)
	id := f.pendingID(t, exportqueue.TypeRubric)
	if _, err := f.queue.Claim(ctx, id, base); err != nil {
		t.Fatalf("claim: %v", err)
	}
	f.clock.Advance(10 * time.Minute)

	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan error, 1)
	go func() { stopped <- f.worker.Run(runCtx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		item, err := f.queue.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if item.Status == exportqueue.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stranded item not recovered: %+v", item)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-stopped
}

func TestDrainLeavesFreshClaimAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.accept(t)
	id := f.pendingID(t, exportqueue.TypeRubric)
	if _, err := f.queue.Claim(ctx, id, base); err != nil {
		t.Fatalf("claim: %v", err)
	}
	f.clock.Advance(time.Minute)

	res := f.worker.DrainPending(ctx)
	if res.Completed != 1 {
		t.Fatalf("expected only the cover sheet to run, got %+v", res)
	}
	item, err := f.queue.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.Status != exportqueue.StatusProcessing {
		t.Fatalf("claim held by another process was taken back: %+v", item)
	}
}

// rescheduleFailsOnce loses the first Reschedule write.
type rescheduleFailsOnce struct {
	*exportqueue.MemoryRepo
	failed atomic.Bool
}

func (r *rescheduleFailsOnce) Reschedule(ctx context.Context, id string, attempts int, at time.Time, lastError string, now time.Time) error {
	if r.failed.CompareAndSwap(false, true) {
		return errors.New("connection reset")
	}
	return r.MemoryRepo.Reschedule(ctx, id, attempts, at, lastError, now)
}

func TestFailedRescheduleStillReachesDeadLetters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flaky := &rescheduleFailsOnce{MemoryRepo: f.queue}
	f.processor.Queue = flaky
	f.worker.Queue = flaky
	f.processor.Generator = generatorFunc(func(context.Context, confirmations.ConfirmedAnalysis, exportqueue.ExportType) (artifacts.Artifact, error) {
		return artifacts.Artifact{}, errors.New("renderer unavailable")
	})
	f.accept(t)

	first := f.worker.DrainPending(ctx)
	if first.Processed != 0 {
		t.Fatalf("expected the lost write to stop the drain, got %+v", first)
	}
	stuck := 0
	items, _ := f.queue.ListByDocument(ctx, "doc-1")
	for _, it := range items {
		if it.Status == exportqueue.StatusProcessing {
			stuck++
		}
	}
	if stuck != 1 {
		t.Fatalf("expected one item left in processing, got %+v", items)
	}

	for i := 0; i < 6; i++ {
		f.clock.Advance(24 * time.Hour)
		f.worker.DrainPending(ctx)
	}

	if items, _ := f.queue.ListByDocument(ctx, "doc-1"); len(items) != 0 {
		t.Fatalf("expected queue drained into dead letters, got %+v", items)
	}
	entries, err := f.dlq.List(ctx, deadletters.ListFilter{DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both exports dead-lettered, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Attempts != 4 {
			t.Fatalf("expected 4 attempts, got %+v", e)
		}
	}
}
