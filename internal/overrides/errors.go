package overrides

import (
	"errors"
	"strings"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrNoActiveOverride = errors.New("no active override")
	ErrInvalidInput     = errors.New("invalid override")
)

// ValidationError reports a rejected override field. Suggestions map each
// invalid standard code to replacements offered by the standards service.
type ValidationError struct {
	Field       string
	Message     string
	Invalid     []string
	Suggestions map[string][]string
}

func (e *ValidationError) Error() string {
	msg := e.Field + ": " + e.Message
	if len(e.Invalid) > 0 {
		msg += " (" + strings.Join(e.Invalid, ", ") + ")"
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
