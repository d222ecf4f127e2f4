package overrides

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"assessment-backend/internal/documents"
	"assessment-backend/internal/shared/telemetry"
)

// QuestionSource is the slice of the documents repo the override store reads.
type QuestionSource interface {
	GetQuestion(ctx context.Context, questionID string) (documents.Question, error)
	GetConsensus(ctx context.Context, questionID string) (documents.AIConsensusResult, bool, error)
}

// Service layers teacher corrections over AI consensus.
type Service struct {
	Repo      Repo
	Questions QuestionSource
	Standards StandardsService
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateOverride validates the correction and makes it the question's active override.
func (s *Service) CreateOverride(ctx context.Context, questionID, customerUUID string, in OverrideInput) (Event, error) {
	if _, err := s.question(ctx, questionID); err != nil {
		return Event{}, err
	}
	if !in.RigorLevel.Valid() {
		return Event{}, &ValidationError{Field: "rigorLevel", Message: fmt.Sprintf("must be mild, medium or spicy, got %q", in.RigorLevel)}
	}
	if in.ConfidenceLevel < 0 || in.ConfidenceLevel > 1 {
		return Event{}, &ValidationError{Field: "confidenceLevel", Message: "must be within [0,1]"}
	}
	standards := cleanCodes(in.Standards)
	if len(standards) > 0 {
		verdict, err := s.Standards.ValidateStandardsList(ctx, standards)
		if err != nil {
			return Event{}, fmt.Errorf("validate standards: %w", err)
		}
		if len(verdict.Invalid) > 0 {
			return Event{}, &ValidationError{
				Field:       "standards",
				Message:     "unknown standard codes",
				Invalid:     verdict.Invalid,
				Suggestions: verdict.Suggestions,
			}
		}
	}

	var original []string
	consensus, ok, err := s.Questions.GetConsensus(ctx, questionID)
	if err != nil {
		return Event{}, err
	}
	if ok {
		original = consensus.Standards
	}
	change, err := s.Standards.DetectDomainChange(ctx, original, standards)
	if err != nil {
		return Event{}, fmt.Errorf("detect domain change: %w", err)
	}

	ev := Event{
		ID:                  uuid.NewString(),
		QuestionID:          questionID,
		CustomerUUID:        customerUUID,
		Kind:                KindOverride,
		Standards:           standards,
		RigorLevel:          in.RigorLevel,
		Justification:       strings.TrimSpace(in.Justification),
		ConfidenceLevel:     in.ConfidenceLevel,
		HasDomainChange:     change.HasSignificantChange,
		DomainChangeDetails: &change,
		CreatedAt:           s.now(),
	}
	if err := s.Repo.Append(ctx, ev); err != nil {
		return Event{}, err
	}
	ev.IsActive = true

	telemetry.Info("override.created", map[string]any{
		"question_id":       questionID,
		"customer_id":       customerUUID,
		"override_id":       ev.ID,
		"rigor_level":       string(ev.RigorLevel),
		"has_domain_change": ev.HasDomainChange,
	})
	return ev, nil
}

// RevertToAI deactivates the active override so reads fall through to AI consensus.
func (s *Service) RevertToAI(ctx context.Context, questionID, customerUUID string) (Event, error) {
	if _, err := s.question(ctx, questionID); err != nil {
		return Event{}, err
	}
	ev, err := s.Repo.Revert(ctx, questionID, customerUUID, uuid.NewString(), s.now())
	if err != nil {
		return Event{}, err
	}
	telemetry.Info("override.reverted", map[string]any{
		"question_id": questionID,
		"customer_id": customerUUID,
		"override_id": ev.RevertsEventID,
	})
	return ev, nil
}

// GetActiveOverride returns the question's active override, if any.
func (s *Service) GetActiveOverride(ctx context.Context, questionID string) (Event, bool, error) {
	if _, err := s.question(ctx, questionID); err != nil {
		return Event{}, false, err
	}
	return s.Repo.Active(ctx, questionID)
}

// GetHistory returns the full audit trail for a question, newest first.
func (s *Service) GetHistory(ctx context.Context, questionID string) ([]Event, error) {
	if _, err := s.question(ctx, questionID); err != nil {
		return nil, err
	}
	return s.Repo.History(ctx, questionID)
}

func (s *Service) question(ctx context.Context, questionID string) (documents.Question, error) {
	q, err := s.Questions.GetQuestion(ctx, questionID)
	if errors.Is(err, documents.ErrQuestionNotFound) {
		return documents.Question{}, ErrQuestionNotFound
	}
	return q, err
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
