package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"assessment-backend/internal/exportqueue"
)

type fakeSQS struct {
	sent     []string
	deleted  []string
	messages []sqstypes.Message
	sendErr  error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestPublisherSendsOneNudgePerDocument(t *testing.T) {
	fake := &fakeSQS{}
	client := &SQSClient{client: fake, queueURL: "https://sqs.local/q"}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &Publisher{Client: client, Now: func() time.Time { return now }}

	p.Notify(context.Background(), []exportqueue.Item{
		{ID: "e-1", DocumentID: "doc-1", RequestID: "req-1"},
		{ID: "e-2", DocumentID: "doc-1"},
		{ID: "e-3", DocumentID: "doc-2"},
	})

	if len(fake.sent) != 2 {
		t.Fatalf("expected 2 nudges, got %d", len(fake.sent))
	}
	msg, err := DecodeMessage([]byte(fake.sent[0]))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.DocumentID != "doc-1" || len(msg.ExportIDs) != 2 || msg.RequestID != "req-1" || msg.Version != MessageVersion || msg.EnqueuedAt != "2026-06-01T12:00:00Z" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestPublisherSwallowsSendErrors(t *testing.T) {
	fake := &fakeSQS{sendErr: errors.New("throttled")}
	p := &Publisher{Client: &SQSClient{client: fake, queueURL: "q"}}
	p.Notify(context.Background(), []exportqueue.Item{{ID: "e-1", DocumentID: "doc-1"}})
	if len(fake.sent) != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestReceiveAndDelete(t *testing.T) {
	fake := &fakeSQS{messages: []sqstypes.Message{{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("r-1"),
		Body:          aws.String(`{"exportIds":["e-1"],"documentId":"doc-1","version":1}`),
		Attributes:    map[string]string{"ApproximateReceiveCount": "3"},
	}}}
	client := &SQSClient{client: fake, queueURL: "q"}

	got, err := client.Receive(context.Background())
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(got) != 1 || got[0].ReceiveCount != 3 || got[0].ReceiptHandle != "r-1" {
		t.Fatalf("unexpected deliveries %+v", got)
	}
	if err := client.Delete(context.Background(), "r-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := client.Delete(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty receipt handle")
	}
	if len(fake.deleted) != 1 {
		t.Fatalf("expected one delete, got %v", fake.deleted)
	}
}
