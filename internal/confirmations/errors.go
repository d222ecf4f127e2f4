package confirmations

import "errors"

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrNoAnalysisAvailable = errors.New("no question has an override or AI result")
	// ErrNotFound means the document has not been accepted yet.
	ErrNotFound = errors.New("confirmed analysis not found")
)
