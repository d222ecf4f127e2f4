// Command lambda-worker processes export nudges delivered by an SQS event
// source mapping.
//
//	GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker
package main

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"assessment-backend/internal/bootstrap"
	"assessment-backend/internal/shared/config"
	"assessment-backend/internal/shared/metrics"
	"assessment-backend/internal/shared/telemetry"
	"assessment-backend/internal/workerproc"
)

var worker = sync.OnceValues(func() (workerproc.Drainer, error) {
	cfg := config.Load()
	telemetry.Configure(cfg.LogLevel)
	// Each invocation drains explicitly; no background actor is started.
	cfg.Export.InProcessWorker = false
	app, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return app.Worker, nil
})

// handler drains the export queue once per batch. Malformed nudges are
// dropped. The rest are reported back as failures only when the drain was cut
// short, so SQS redelivers them.
func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	d, err := worker()
	if err != nil {
		telemetry.Error("lambda_worker.bootstrap_failed", map[string]any{"error": err.Error()})
		return events.SQSEventResponse{BatchItemFailures: allFailed(event)}, err
	}
	return handleBatch(ctx, d, event), nil
}

func allFailed(event events.SQSEvent) []events.SQSBatchItemFailure {
	out := make([]events.SQSBatchItemFailure, len(event.Records))
	for i, record := range event.Records {
		out[i] = events.SQSBatchItemFailure{ItemIdentifier: record.MessageId}
	}
	return out
}

func handleBatch(ctx context.Context, d workerproc.Drainer, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	drained := false
	for _, record := range event.Records {
		metrics.IncNudgeReceived()
		msg, fp, err := workerproc.ParseMessage(record.Body)
		if err != nil {
			metrics.IncNudgeDiscarded()
			telemetry.Error("lambda_worker.invalid_message", map[string]any{
				"sqs_message_id": record.MessageId,
				"body_len":       fp.Len,
				"body_sha256":    fp.SHA256,
				"error":          err,
			})
			continue
		}
		if drained {
			continue
		}
		res := d.Drain(ctx)
		drained = true
		telemetry.Info("lambda_worker.drained", map[string]any{
			"sqs_message_id": record.MessageId,
			"document_id":    msg.DocumentID,
			"request_id":     msg.RequestID,
			"processed":      res.Processed,
			"skipped":        res.Skipped,
		})
		if ctx.Err() != nil {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
