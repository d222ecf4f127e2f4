package exports

import (
	"context"
	"sync/atomic"
	"time"

	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/shared/metrics"
	"assessment-backend/internal/shared/telemetry"
)

const (
	defaultPollInterval = 15 * time.Second
	// staleClaimMargin covers the queue and store writes around generation.
	staleClaimMargin = time.Minute
)

// DrainResult summarizes one drain.
type DrainResult struct {
	Skipped      bool
	Processed    int
	Completed    int
	Retried      int
	DeadLettered int
	Failed       int
}

func (r *DrainResult) add(o Outcome) {
	r.Processed++
	switch o {
	case OutcomeCompleted:
		r.Completed++
	case OutcomeRetried:
		r.Retried++
	case OutcomeDeadLettered:
		r.DeadLettered++
	case OutcomeFailed:
		r.Failed++
	}
}

// DueLister finds the next item to run and recovers stranded ones.
type DueLister interface {
	NextDue(ctx context.Context, now time.Time) (exportqueue.Item, bool, error)
	ResetProcessing(ctx context.Context, now, staleBefore time.Time) (int, error)
}

// Worker owns export processing. Run is the actor loop; the poll ticker,
// Kick and Drain all funnel into DrainPending, and only one drain runs at a
// time. A drain requested while another is running returns Skipped.
type Worker struct {
	Processor    *Processor
	Queue        DueLister
	PollInterval time.Duration
	// StaleAfter is how long an item may sit in processing before a drain
	// takes it back. Defaults to the generation timeout plus a minute.
	StaleAfter time.Duration
	Now        func() time.Time

	draining atomic.Bool
	running  atomic.Bool
	kicks    chan struct{}
	requests chan chan DrainResult
}

// NewWorker constructs a Worker.
func NewWorker(p *Processor, queue DueLister, poll time.Duration) *Worker {
	return &Worker{
		Processor:    p,
		Queue:        queue,
		PollInterval: poll,
		kicks:        make(chan struct{}, 1),
		requests:     make(chan chan DrainResult),
	}
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

// Run drains once, then on every tick, kick and drain request until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		telemetry.Warn("export.worker_already_running", nil)
		return nil
	}
	defer w.running.Store(false)

	interval := w.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	telemetry.Info("export.worker_started", map[string]any{"poll_interval": interval.String()})
	w.DrainPending(ctx)
	for {
		select {
		case <-ctx.Done():
			telemetry.Info("export.worker_stopped", nil)
			return nil
		case <-ticker.C:
			w.DrainPending(ctx)
		case <-w.kicks:
			w.DrainPending(ctx)
		case reply := <-w.requests:
			reply <- w.DrainPending(ctx)
		}
	}
}

// Kick asks the actor to drain soon. Kicks coalesce and never block.
func (w *Worker) Kick() {
	select {
	case w.kicks <- struct{}{}:
	default:
	}
}

// Notify lets the worker act as an exportqueue.Notifier.
func (w *Worker) Notify(_ context.Context, _ []exportqueue.Item) {
	w.Kick()
}

// Drain runs a drain and waits for it. With the actor running the request
// goes through it; otherwise the drain runs on the caller's goroutine.
func (w *Worker) Drain(ctx context.Context) DrainResult {
	if w.draining.Load() {
		metrics.IncDrainSkipped()
		return DrainResult{Skipped: true}
	}
	if !w.running.Load() {
		return w.DrainPending(ctx)
	}
	reply := make(chan DrainResult, 1)
	select {
	case w.requests <- reply:
	case <-ctx.Done():
		return DrainResult{Skipped: true}
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return DrainResult{Skipped: true}
	}
}

// DrainPending takes back stale claims, then processes due items one at a
// time until none are due. An item whose queue write failed mid-run stays in
// processing and is picked up by a later drain once its claim is stale.
func (w *Worker) DrainPending(ctx context.Context) DrainResult {
	if !w.draining.CompareAndSwap(false, true) {
		metrics.IncDrainSkipped()
		telemetry.Debug("export.drain_skipped", nil)
		return DrainResult{Skipped: true}
	}
	defer w.draining.Store(false)

	w.reclaimStale(ctx)
	var res DrainResult
	for ctx.Err() == nil {
		item, ok, err := w.Queue.NextDue(ctx, w.now())
		if err != nil {
			telemetry.Error("export.next_due_failed", map[string]any{"error": err})
			break
		}
		if !ok {
			break
		}
		outcome, err := w.Processor.ProcessExport(ctx, item.ID)
		if err != nil {
			telemetry.Error("export.process_failed", map[string]any{"export_id": item.ID, "error": err})
			break
		}
		res.add(outcome)
	}
	if res.Processed > 0 {
		telemetry.Info("export.drained", map[string]any{
			"processed":     res.Processed,
			"completed":     res.Completed,
			"retried":       res.Retried,
			"dead_lettered": res.DeadLettered,
			"failed":        res.Failed,
		})
	}
	return res
}

func (w *Worker) staleAfter() time.Duration {
	if w.StaleAfter > 0 {
		return w.StaleAfter
	}
	timeout := defaultGenerationTimeout
	if w.Processor != nil && w.Processor.GenerationTimeout > 0 {
		timeout = w.Processor.GenerationTimeout
	}
	return timeout + staleClaimMargin
}

// reclaimStale only touches claims older than staleAfter, so work another
// process is still doing is left alone.
func (w *Worker) reclaimStale(ctx context.Context) {
	now := w.now()
	n, err := w.Queue.ResetProcessing(ctx, now, now.Add(-w.staleAfter()))
	if err != nil {
		telemetry.Error("export.reset_processing_failed", map[string]any{"error": err})
		return
	}
	if n > 0 {
		telemetry.Warn("export.reset_processing", map[string]any{"count": n})
	}
}

var _ exportqueue.Notifier = (*Worker)(nil)
