package documents

import "errors"

var (
	ErrNotFound         = errors.New("document not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionsExist   = errors.New("question numbers already ingested")
)
