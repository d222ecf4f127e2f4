package documents

import (
	"context"
	"time"
)

// Repo persists documents, their questions and AI consensus results.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, documentID string) (Document, error)
	ListByCustomer(ctx context.Context, customerUUID string, limit, offset int) ([]Document, error)
	// AddQuestions stores questions and their consensus atomically. Any
	// question number already present for the document fails the whole batch.
	AddQuestions(ctx context.Context, questions []Question, consensus []AIConsensusResult) error
	GetQuestion(ctx context.Context, questionID string) (Question, error)
	// ListQuestions returns a document's questions ordered by question number.
	ListQuestions(ctx context.Context, documentID string) ([]Question, error)
	GetConsensus(ctx context.Context, questionID string) (AIConsensusResult, bool, error)
	// ConsensusForDocument maps question id to consensus for every analyzed question.
	ConsensusForDocument(ctx context.Context, documentID string) (map[string]AIConsensusResult, error)
	UpdateReviewStatus(ctx context.Context, documentID string, status ReviewStatus, at time.Time) error
}
