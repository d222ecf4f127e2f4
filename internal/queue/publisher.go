package queue

import (
	"context"
	"time"

	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/shared/metrics"
	"assessment-backend/internal/shared/telemetry"
)

// Publisher turns enqueue notifications into SQS nudges, one per document.
// A lost nudge only delays work until the worker's next poll, so send
// failures are logged and not returned.
type Publisher struct {
	Client Client
	Now    func() time.Time
}

func (p *Publisher) Notify(ctx context.Context, items []exportqueue.Item) {
	if p == nil || p.Client == nil || len(items) == 0 {
		return
	}
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	var order []string
	byDoc := make(map[string][]exportqueue.Item)
	for _, it := range items {
		if _, ok := byDoc[it.DocumentID]; !ok {
			order = append(order, it.DocumentID)
		}
		byDoc[it.DocumentID] = append(byDoc[it.DocumentID], it)
	}
	for _, docID := range order {
		msg := NewMessage(byDoc[docID], now)
		if err := p.Client.Send(ctx, msg); err != nil {
			metrics.IncNudgeFailed()
			telemetry.Warn("queue.nudge_failed", map[string]any{
				"document_id": docID,
				"request_id":  msg.RequestID,
				"error":       err,
			})
			continue
		}
		metrics.IncNudgeSent()
	}
}

var _ exportqueue.Notifier = (*Publisher)(nil)
