package documents

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"assessment-backend/internal/shared/storage/object"
)

// Service contains business logic for documents and their ingested questions.
type Service struct {
	Store object.Store
	Repo  Repo
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Upload saves the file to object storage and records the document as pending review.
func (s *Service) Upload(ctx context.Context, customerUUID, fileName string, r io.Reader) (Document, error) {
	if strings.TrimSpace(customerUUID) == "" || strings.TrimSpace(fileName) == "" {
		return Document{}, ErrInvalidInput
	}
	obj, err := s.Store.Save(ctx, customerUUID, fileName, r)
	if err != nil {
		return Document{}, fmt.Errorf("store upload: %w", err)
	}

	now := s.now()
	doc := Document{
		ID:           uuid.NewString(),
		CustomerUUID: customerUUID,
		FileName:     fileName,
		MimeType:     obj.MimeType,
		SizeBytes:    obj.Size,
		StorageKey:   obj.Key,
		ReviewStatus: StatusPendingReview,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		_ = s.Store.Delete(ctx, obj.Key)
		return Document{}, err
	}
	return doc, nil
}

// Get returns the document when customerUUID owns it. Foreign documents look missing.
func (s *Service) Get(ctx context.Context, customerUUID, documentID string) (Document, error) {
	doc, err := s.Repo.GetByID(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.CustomerUUID != customerUUID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// List returns the customer's documents, newest first.
func (s *Service) List(ctx context.Context, customerUUID string, limit, offset int) ([]Document, error) {
	return s.Repo.ListByCustomer(ctx, customerUUID, limit, offset)
}

// AuthorizeDocument fails with ErrNotFound unless customerUUID owns documentID.
func (s *Service) AuthorizeDocument(ctx context.Context, customerUUID, documentID string) error {
	_, err := s.Get(ctx, customerUUID, documentID)
	return err
}

// AuthorizeQuestion fails with ErrQuestionNotFound unless the question's document belongs to customerUUID.
func (s *Service) AuthorizeQuestion(ctx context.Context, customerUUID, questionID string) error {
	q, err := s.Repo.GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if _, err := s.Get(ctx, customerUUID, q.DocumentID); err != nil {
		return ErrQuestionNotFound
	}
	return nil
}

// IngestQuestions records the extraction pipeline's questions and AI consensus.
// Questions are immutable: re-sending a known question number is rejected.
func (s *Service) IngestQuestions(ctx context.Context, customerUUID, documentID string, inputs []QuestionInput) ([]QuestionView, error) {
	if _, err := s.Get(ctx, customerUUID, documentID); err != nil {
		return nil, err
	}
	if err := validateInputs(inputs); err != nil {
		return nil, err
	}

	now := s.now()
	questions := make([]Question, 0, len(inputs))
	var consensus []AIConsensusResult
	views := make([]QuestionView, 0, len(inputs))
	for _, in := range inputs {
		q := Question{
			ID:             uuid.NewString(),
			DocumentID:     documentID,
			QuestionNumber: in.QuestionNumber,
			Text:           strings.TrimSpace(in.Text),
			Context:        in.Context,
			CreatedAt:      now,
		}
		questions = append(questions, q)
		view := QuestionView{Question: q}
		if in.Consensus != nil {
			c := AIConsensusResult{
				QuestionID:      q.ID,
				Standards:       cleanCodes(in.Consensus.Standards),
				RigorLevel:      in.Consensus.RigorLevel,
				ConfidenceScore: in.Consensus.ConfidenceScore,
				Justification:   in.Consensus.Justification,
				CreatedAt:       now,
			}
			consensus = append(consensus, c)
			view.Consensus = &c
		}
		views = append(views, view)
	}
	if err := s.Repo.AddQuestions(ctx, questions, consensus); err != nil {
		return nil, err
	}
	return views, nil
}

// Questions lists a document's questions with their consensus.
func (s *Service) Questions(ctx context.Context, customerUUID, documentID string) ([]QuestionView, error) {
	if _, err := s.Get(ctx, customerUUID, documentID); err != nil {
		return nil, err
	}
	questions, err := s.Repo.ListQuestions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	consensus, err := s.Repo.ConsensusForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	out := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		v := QuestionView{Question: q}
		if c, ok := consensus[q.ID]; ok {
			c := c
			v.Consensus = &c
		}
		out = append(out, v)
	}
	return out, nil
}

func validateInputs(inputs []QuestionInput) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrInvalidInput)
	}
	seen := make(map[int]bool, len(inputs))
	for _, in := range inputs {
		if in.QuestionNumber <= 0 {
			return fmt.Errorf("%w: questionNumber must be positive", ErrInvalidInput)
		}
		if seen[in.QuestionNumber] {
			return fmt.Errorf("%w: duplicate questionNumber %d", ErrInvalidInput, in.QuestionNumber)
		}
		seen[in.QuestionNumber] = true
		if strings.TrimSpace(in.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", ErrInvalidInput, in.QuestionNumber)
		}
		if c := in.Consensus; c != nil {
			if !c.RigorLevel.Valid() {
				return fmt.Errorf("%w: question %d has unknown rigor level %q", ErrInvalidInput, in.QuestionNumber, c.RigorLevel)
			}
			if c.ConfidenceScore < 0 || c.ConfidenceScore > 1 {
				return fmt.Errorf("%w: question %d confidence must be within [0,1]", ErrInvalidInput, in.QuestionNumber)
			}
		}
	}
	return nil
}

func cleanCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
