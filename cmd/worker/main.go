package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"assessment-backend/internal/bootstrap"
	"assessment-backend/internal/queue"
	"assessment-backend/internal/shared/config"
	"assessment-backend/internal/shared/metrics"
	"assessment-backend/internal/shared/telemetry"
	"assessment-backend/internal/workerproc"
)

const receiveErrorBackoff = 5 * time.Second

// The worker runs the export drain loop and sweeper. When EXPORT_QUEUE_URL is
// set it also consumes SQS nudges so new exports start without waiting for
// the next poll.
func main() {
	cfg := config.Load()
	telemetry.Configure(cfg.LogLevel)
	defer telemetry.Sync()
	cfg.Export.InProcessWorker = false

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		telemetry.Error("worker.bootstrap_failed", map[string]any{"error": err})
		os.Exit(1)
	}
	defer app.Close()
	if app.DB == nil {
		telemetry.Warn("worker.memory_repos", map[string]any{"note": "in-memory queue is not shared with the API process"})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.RunBackground(gctx) })
	if app.Queue != nil {
		telemetry.Info("worker.consuming", map[string]any{"queue_url": app.Queue.QueueURL()})
		g.Go(func() error { return consume(gctx, app.Queue, app.Worker) })
	}
	if err := g.Wait(); err != nil {
		telemetry.Error("worker.stopped", map[string]any{"error": err})
		os.Exit(1)
	}
	telemetry.Info("worker.stopped", nil)
}

// consume receives nudges until ctx is cancelled.
func consume(ctx context.Context, r queue.Receiver, d workerproc.Drainer) error {
	for ctx.Err() == nil {
		deliveries, err := r.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(receiveErrorBackoff):
			}
			continue
		}
		for _, dl := range deliveries {
			handleDelivery(ctx, r, d, dl)
		}
	}
	return nil
}

// handleDelivery drains for a valid nudge and acknowledges it. Malformed
// nudges are deleted since redelivery cannot fix them.
func handleDelivery(ctx context.Context, r queue.Receiver, d workerproc.Drainer, dl queue.Delivery) {
	metrics.IncNudgeReceived()
	fields := map[string]any{
		"sqs_message_id": dl.MessageID,
		"receive_count":  dl.ReceiveCount,
	}
	msg, res, err := workerproc.HandleMessage(ctx, d, dl.Body)
	if err != nil {
		if !workerproc.Unrecoverable(err) {
			fields["error"] = err
			telemetry.Error("worker.nudge_failed", fields)
			return
		}
		fp := workerproc.FingerprintOf(dl.Body)
		fields["body_len"] = fp.Len
		fields["body_sha256"] = fp.SHA256
		fields["error"] = err
		telemetry.Error("worker.nudge_invalid", fields)
		metrics.IncNudgeDiscarded()
	} else {
		fields["document_id"] = msg.DocumentID
		fields["request_id"] = msg.RequestID
		fields["processed"] = res.Processed
		fields["skipped"] = res.Skipped
		telemetry.Info("worker.nudge_handled", fields)
	}
	if err := r.Delete(ctx, dl.ReceiptHandle); err != nil {
		telemetry.Error("worker.delete_failed", map[string]any{"sqs_message_id": dl.MessageID, "error": err})
	}
}
