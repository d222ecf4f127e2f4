package deadletters

import "time"

// Entry is an export that exhausted its retries. Entries are kept for
// operator inspection and are never deleted, only resolved.
type Entry struct {
	ID               string
	ExportID         string
	DocumentID       string
	ExportType       string
	CustomerUUID     string
	Actor            string
	ErrorMessage     string
	FailureKind      string
	Attempts         int
	RequestID        string
	UserAgent        string
	MovedAt          time.Time
	ResolvedAt       *time.Time
	ResolvedBy       string
	RequeuedExportID string
}

// Resolved reports whether an operator has dealt with the entry.
func (e Entry) Resolved() bool { return e.ResolvedAt != nil }

// MoveInput describes the failed export being dead-lettered.
type MoveInput struct {
	ExportID     string
	DocumentID   string
	ExportType   string
	CustomerUUID string
	Actor        string
	Error        string
	FailureKind  string
	Attempts     int
	RequestID    string
	UserAgent    string
}

// ListFilter narrows List. Zero values mean no constraint.
type ListFilter struct {
	CustomerUUID    string
	DocumentID      string
	IncludeResolved bool
	Limit           int
	Offset          int
}

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return 50
	case f.Limit > 200:
		return 200
	}
	return f.Limit
}
