package exports

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("export not found")
	// ErrNotAccepted means exports were requested before the document was accepted.
	ErrNotAccepted = errors.New("document has no confirmed analysis")
	// ErrNotGenerated means the artifact has not been produced yet.
	ErrNotGenerated = errors.New("export not generated yet")
)

// FailureKind classifies why a generation attempt failed. It is recorded for
// operators; both kinds follow the same retry schedule.
type FailureKind string

const (
	FailureTransient    FailureKind = "transient"
	FailurePrecondition FailureKind = "permanent_precondition"
)

// GenerationError is a failed attempt with its classification.
type GenerationError struct {
	Kind FailureKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func transient(err error) error    { return &GenerationError{Kind: FailureTransient, Err: err} }
func precondition(err error) error { return &GenerationError{Kind: FailurePrecondition, Err: err} }

// KindOf returns err's classification, treating unclassified errors as transient.
func KindOf(err error) FailureKind {
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return FailureTransient
}
