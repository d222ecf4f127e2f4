package overrides

import (
	"context"
	"sync"
	"time"

	"assessment-backend/internal/documents"
)

// QuestionLister resolves a document's questions for ActiveForDocument.
type QuestionLister interface {
	ListQuestions(ctx context.Context, documentID string) ([]documents.Question, error)
}

// MemoryRepo is an in-memory Repo. Events are kept in append order.
type MemoryRepo struct {
	mu        sync.RWMutex
	questions QuestionLister
	events    map[string][]Event // questionID -> events, oldest first
	states    map[string]State
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo(questions QuestionLister) *MemoryRepo {
	return &MemoryRepo{
		questions: questions,
		events:    make(map[string][]Event),
		states:    make(map[string]State),
	}
}

func (r *MemoryRepo) Append(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.IsActive, ev.IsRevertedToAI = false, false
	r.events[ev.QuestionID] = append(r.events[ev.QuestionID], cloneEvent(ev))
	r.states[ev.QuestionID] = State{QuestionID: ev.QuestionID, Kind: StateActive, EventID: ev.ID, UpdatedAt: ev.CreatedAt}
	return nil
}

func (r *MemoryRepo) Revert(ctx context.Context, questionID, customerUUID, eventID string, at time.Time) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[questionID]
	if !ok || st.Kind != StateActive {
		return Event{}, ErrNoActiveOverride
	}
	ev := Event{
		ID:             eventID,
		QuestionID:     questionID,
		CustomerUUID:   customerUUID,
		Kind:           KindRevert,
		RevertsEventID: st.EventID,
		CreatedAt:      at,
	}
	r.events[questionID] = append(r.events[questionID], ev)
	r.states[questionID] = State{QuestionID: questionID, Kind: StateReverted, EventID: st.EventID, UpdatedAt: at}
	return ev, nil
}

func (r *MemoryRepo) Active(ctx context.Context, questionID string) (Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.activeLocked(questionID)
	return ev, ok, nil
}

func (r *MemoryRepo) ActiveForDocument(ctx context.Context, documentID string) (map[string]Event, error) {
	qs, err := r.questions.ListQuestions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Event)
	for _, q := range qs {
		if ev, ok := r.activeLocked(q.ID); ok {
			out[q.ID] = ev
		}
	}
	return out, nil
}

func (r *MemoryRepo) History(ctx context.Context, questionID string) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	stored := r.events[questionID]
	out := make([]Event, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, cloneEvent(stored[i]))
	}
	var state *State
	if st, ok := r.states[questionID]; ok {
		state = &st
	}
	r.mu.RUnlock()
	return deriveFlags(out, state), nil
}

func (r *MemoryRepo) activeLocked(questionID string) (Event, bool) {
	st, ok := r.states[questionID]
	if !ok || st.Kind != StateActive {
		return Event{}, false
	}
	for _, e := range r.events[questionID] {
		if e.ID == st.EventID {
			e = cloneEvent(e)
			e.IsActive = true
			return e, true
		}
	}
	return Event{}, false
}

func cloneEvent(e Event) Event {
	e.Standards = append([]string(nil), e.Standards...)
	if e.DomainChangeDetails != nil {
		d := *e.DomainChangeDetails
		e.DomainChangeDetails = &d
	}
	return e
}

var _ Repo = (*MemoryRepo)(nil)
