package documents

import "time"

// ReviewStatus tracks where a document is in the teacher review flow.
type ReviewStatus string

const (
	StatusPendingReview ReviewStatus = "pending_review"
	StatusAccepted      ReviewStatus = "reviewed_and_accepted"
	StatusOverridden    ReviewStatus = "reviewed_and_overridden"
)

// RigorLevel is the cognitive rigor scale shared by AI consensus and overrides.
type RigorLevel string

const (
	RigorMild   RigorLevel = "mild"
	RigorMedium RigorLevel = "medium"
	RigorSpicy  RigorLevel = "spicy"
)

// Valid reports whether r is one of the known levels.
func (r RigorLevel) Valid() bool {
	switch r {
	case RigorMild, RigorMedium, RigorSpicy:
		return true
	}
	return false
}

// Document is an uploaded assessment owned by a customer.
type Document struct {
	ID           string
	CustomerUUID string
	FileName     string
	MimeType     string
	SizeBytes    int64
	StorageKey   string
	ReviewStatus ReviewStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Question is immutable once ingested.
type Question struct {
	ID             string
	DocumentID     string
	QuestionNumber int
	Text           string
	Context        string
	CreatedAt      time.Time
}

// AIConsensusResult is the external engines' agreed classification for a question.
type AIConsensusResult struct {
	QuestionID      string
	Standards       []string
	RigorLevel      RigorLevel
	ConfidenceScore float64
	Justification   string
	CreatedAt       time.Time
}

// QuestionInput is one question handed over by the extraction pipeline,
// optionally with its AI consensus.
type QuestionInput struct {
	QuestionNumber int             `json:"questionNumber"`
	Text           string          `json:"text"`
	Context        string          `json:"context"`
	Consensus      *ConsensusInput `json:"consensus,omitempty"`
}

// ConsensusInput is the AI consensus payload for one question.
type ConsensusInput struct {
	Standards       []string   `json:"standards"`
	RigorLevel      RigorLevel `json:"rigorLevel"`
	ConfidenceScore float64    `json:"confidenceScore"`
	Justification   string     `json:"justification"`
}

// QuestionView pairs a question with its consensus, if any.
type QuestionView struct {
	Question  Question
	Consensus *AIConsensusResult
}
