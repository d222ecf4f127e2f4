package confirmations

import (
	"encoding/json"
	"sort"
	"time"

	"assessment-backend/internal/documents"
	"assessment-backend/internal/overrides"
)

// Source says where a question's effective value came from.
type Source string

const (
	SourceConfirmed   Source = "confirmed_analysis"
	SourceOverride    Source = "teacher_override"
	SourceAIConsensus Source = "ai_consensus"
	SourceNotAnalyzed Source = "not_analyzed"
)

// QuestionResolution is the effective rigor and standards for one question.
type QuestionResolution struct {
	QuestionID       string               `json:"questionId"`
	QuestionNumber   int                  `json:"questionNumber"`
	QuestionText     string               `json:"questionText"`
	FinalRigor       documents.RigorLevel `json:"finalRigor"`
	FinalStandards   []string             `json:"finalStandards"`
	HasOverride      bool                 `json:"hasOverride"`
	SourceConfidence float64              `json:"sourceConfidence"`
	Source           Source               `json:"source"`
	Justification    string               `json:"justification,omitempty"`
}

// ConfirmedAnalysis is the frozen per-document result of an accept. It is
// replaced wholesale by the next accept and never edited.
type ConfirmedAnalysis struct {
	DocumentID    string
	CustomerUUID  string
	FileName      string
	Questions     map[string]QuestionResolution
	OverrideCount int
	AcceptedBy    string
	CreatedAt     time.Time
}

// Ordered returns the resolutions sorted by question number.
func (a ConfirmedAnalysis) Ordered() []QuestionResolution {
	out := make([]QuestionResolution, 0, len(a.Questions))
	for _, q := range a.Questions {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuestionNumber != out[j].QuestionNumber {
			return out[i].QuestionNumber < out[j].QuestionNumber
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out
}

// ReviewStatus is the document status an accept of this snapshot implies.
func (a ConfirmedAnalysis) ReviewStatus() documents.ReviewStatus {
	if a.OverrideCount > 0 {
		return documents.StatusOverridden
	}
	return documents.StatusAccepted
}

// Actor identifies who triggered an accept.
type Actor struct {
	CustomerUUID string
	RequestID    string
	UserAgent    string
}

// Inputs is everything an accept reads, loaded under the document lock.
type Inputs struct {
	Document  documents.Document
	Questions []documents.Question
	Consensus map[string]documents.AIConsensusResult
	Overrides map[string]overrides.Event
}

type analysisData struct {
	Version       int                  `json:"version"`
	DocumentID    string               `json:"documentId"`
	FileName      string               `json:"fileName"`
	OverrideCount int                  `json:"overrideCount"`
	Questions     []QuestionResolution `json:"questions"`
}

// AnalysisData is the persisted form of a snapshot. It carries no
// timestamps, so accepting unchanged inputs twice yields identical bytes.
func AnalysisData(a ConfirmedAnalysis) ([]byte, error) {
	return json.Marshal(analysisData{
		Version:       1,
		DocumentID:    a.DocumentID,
		FileName:      a.FileName,
		OverrideCount: a.OverrideCount,
		Questions:     a.Ordered(),
	})
}

func decodeAnalysisData(raw []byte, a *ConfirmedAnalysis) error {
	var data analysisData
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	a.FileName = data.FileName
	a.Questions = make(map[string]QuestionResolution, len(data.Questions))
	for _, q := range data.Questions {
		if q.FinalStandards == nil {
			q.FinalStandards = []string{}
		}
		a.Questions[q.QuestionID] = q
	}
	return nil
}

func cloneAnalysis(a ConfirmedAnalysis) ConfirmedAnalysis {
	qs := make(map[string]QuestionResolution, len(a.Questions))
	for id, q := range a.Questions {
		q.FinalStandards = append([]string{}, q.FinalStandards...)
		qs[id] = q
	}
	a.Questions = qs
	return a
}
