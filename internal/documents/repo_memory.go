package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for local development and tests.
type MemoryRepo struct {
	mu        sync.RWMutex
	docs      map[string]Document
	questions map[string]Question
	byDoc     map[string][]string // documentID -> question ids
	consensus map[string]AIConsensusResult
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:      make(map[string]Document),
		questions: make(map[string]Question),
		byDoc:     make(map[string][]string),
		consensus: make(map[string]AIConsensusResult),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// ListByCustomer returns the customer's documents, newest first.
func (r *MemoryRepo) ListByCustomer(ctx context.Context, customerUUID string, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var docs []Document
	for _, d := range r.docs {
		if d.CustomerUUID == customerUUID {
			docs = append(docs, d)
		}
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return []Document{}, nil
	}
	end := len(docs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end], nil
}

func (r *MemoryRepo) AddQuestions(ctx context.Context, questions []Question, consensus []AIConsensusResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	taken := make(map[string]map[int]bool)
	for _, q := range questions {
		if _, ok := r.docs[q.DocumentID]; !ok {
			return ErrNotFound
		}
		if taken[q.DocumentID] == nil {
			taken[q.DocumentID] = make(map[int]bool)
			for _, id := range r.byDoc[q.DocumentID] {
				taken[q.DocumentID][r.questions[id].QuestionNumber] = true
			}
		}
		if taken[q.DocumentID][q.QuestionNumber] {
			return ErrQuestionsExist
		}
		taken[q.DocumentID][q.QuestionNumber] = true
	}

	for _, q := range questions {
		r.questions[q.ID] = q
		r.byDoc[q.DocumentID] = append(r.byDoc[q.DocumentID], q.ID)
	}
	for _, c := range consensus {
		c.Standards = append([]string(nil), c.Standards...)
		r.consensus[c.QuestionID] = c
	}
	return nil
}

func (r *MemoryRepo) GetQuestion(ctx context.Context, questionID string) (Question, error) {
	if err := ctx.Err(); err != nil {
		return Question{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.questions[questionID]
	if !ok {
		return Question{}, ErrQuestionNotFound
	}
	return q, nil
}

func (r *MemoryRepo) ListQuestions(ctx context.Context, documentID string) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Question, 0, len(r.byDoc[documentID]))
	for _, id := range r.byDoc[documentID] {
		out = append(out, r.questions[id])
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNumber < out[j].QuestionNumber })
	return out, nil
}

func (r *MemoryRepo) GetConsensus(ctx context.Context, questionID string) (AIConsensusResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return AIConsensusResult{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consensus[questionID]
	if !ok {
		return AIConsensusResult{}, false, nil
	}
	c.Standards = append([]string(nil), c.Standards...)
	return c, true, nil
}

func (r *MemoryRepo) ConsensusForDocument(ctx context.Context, documentID string) (map[string]AIConsensusResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]AIConsensusResult)
	for _, id := range r.byDoc[documentID] {
		if c, ok := r.consensus[id]; ok {
			c.Standards = append([]string(nil), c.Standards...)
			out[id] = c
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpdateReviewStatus(ctx context.Context, documentID string, status ReviewStatus, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[documentID]
	if !ok {
		return ErrNotFound
	}
	doc.ReviewStatus = status
	doc.UpdatedAt = at
	r.docs[documentID] = doc
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
