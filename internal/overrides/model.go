package overrides

import (
	"time"

	"assessment-backend/internal/documents"
)

// EventKind distinguishes entries in the override audit log.
type EventKind string

const (
	KindOverride EventKind = "override"
	KindRevert   EventKind = "revert"
)

// StateKind is the current override state of a question. A question with no
// state row has never been overridden.
type StateKind string

const (
	StateActive   StateKind = "active"
	StateReverted StateKind = "reverted"
)

// Event is an immutable override log entry. IsActive and IsRevertedToAI are
// derived from the question's state when the event is read, never stored.
type Event struct {
	ID                  string
	QuestionID          string
	CustomerUUID        string
	Kind                EventKind
	Standards           []string
	RigorLevel          documents.RigorLevel
	Justification       string
	ConfidenceLevel     float64
	HasDomainChange     bool
	DomainChangeDetails *DomainChange
	// RevertsEventID is set on revert events and names the override they undid.
	RevertsEventID string
	CreatedAt      time.Time

	IsActive       bool
	IsRevertedToAI bool
}

// State points a question at its current override event.
type State struct {
	QuestionID string
	Kind       StateKind
	EventID    string
	UpdatedAt  time.Time
}

// OverrideInput is a teacher's correction for one question.
type OverrideInput struct {
	Standards       []string
	RigorLevel      documents.RigorLevel
	Justification   string
	ConfidenceLevel float64
}

// StandardsValidation is the standards service's verdict on a list of codes.
type StandardsValidation struct {
	Valid       []string            `json:"valid"`
	Invalid     []string            `json:"invalid"`
	Suggestions map[string][]string `json:"suggestions,omitempty"`
}

// DomainChange describes how an override moves a question across standard domains.
type DomainChange struct {
	HasSignificantChange bool     `json:"hasSignificantChange"`
	OriginalDomains      []string `json:"originalDomains"`
	NewDomains           []string `json:"newDomains"`
	Changes              []string `json:"changes"`
}

// deriveFlags fills IsActive and IsRevertedToAI on events given the current state.
func deriveFlags(events []Event, state *State) []Event {
	reverted := make(map[string]bool)
	for _, e := range events {
		if e.Kind == KindRevert && e.RevertsEventID != "" {
			reverted[e.RevertsEventID] = true
		}
	}
	for i := range events {
		e := &events[i]
		if e.Kind != KindOverride {
			continue
		}
		e.IsActive = state != nil && state.Kind == StateActive && state.EventID == e.ID
		e.IsRevertedToAI = reverted[e.ID]
	}
	return events
}
