package queue

import "context"

// Client sends nudges to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Delivery is one received message.
type Delivery struct {
	MessageID     string
	ReceiptHandle string
	Body          string
	ReceiveCount  int
}

// Receiver pulls nudges and acknowledges them once handled.
type Receiver interface {
	Receive(ctx context.Context) ([]Delivery, error)
	Delete(ctx context.Context, receiptHandle string) error
}
