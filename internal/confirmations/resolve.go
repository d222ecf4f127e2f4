package confirmations

import (
	"assessment-backend/internal/documents"
	"assessment-backend/internal/overrides"
)

// Resolve picks each question's value by priority: active override, then AI
// consensus, then not analyzed. It returns the resolutions and the number of
// questions settled by an override.
func Resolve(questions []documents.Question, consensus map[string]documents.AIConsensusResult, active map[string]overrides.Event) (map[string]QuestionResolution, int) {
	out := make(map[string]QuestionResolution, len(questions))
	count := 0
	for _, q := range questions {
		r := QuestionResolution{
			QuestionID:     q.ID,
			QuestionNumber: q.QuestionNumber,
			QuestionText:   q.Text,
			FinalStandards: []string{},
			Source:         SourceNotAnalyzed,
		}
		if ov, ok := active[q.ID]; ok {
			r.FinalRigor = ov.RigorLevel
			r.FinalStandards = append(r.FinalStandards, ov.Standards...)
			r.HasOverride = true
			r.SourceConfidence = ov.ConfidenceLevel
			r.Source = SourceOverride
			r.Justification = ov.Justification
			count++
		} else if c, ok := consensus[q.ID]; ok {
			r.FinalRigor = c.RigorLevel
			r.FinalStandards = append(r.FinalStandards, c.Standards...)
			r.SourceConfidence = c.ConfidenceScore
			r.Source = SourceAIConsensus
			r.Justification = c.Justification
		}
		out[q.ID] = r
	}
	return out, count
}

// hasAnalysis reports whether any question resolved to a real value.
func hasAnalysis(resolved map[string]QuestionResolution) bool {
	for _, r := range resolved {
		if r.Source != SourceNotAnalyzed {
			return true
		}
	}
	return false
}
