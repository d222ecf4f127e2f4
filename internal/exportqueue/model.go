package exportqueue

import (
	"fmt"
	"strings"
	"time"
)

// ExportType names an artifact generated from a confirmed analysis.
type ExportType string

const (
	TypeRubric     ExportType = "rubric"
	TypeCoverSheet ExportType = "cover_sheet"
)

// AllExportTypes is the set enqueued when a document is accepted.
var AllExportTypes = []ExportType{TypeRubric, TypeCoverSheet}

// ParseExportType accepts the wire names plus dashed spellings.
func ParseExportType(raw string) (ExportType, error) {
	t := ExportType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	switch t {
	case TypeRubric, TypeCoverSheet:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidExportType, raw)
}

// Status is an item's place in the queue lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const (
	DefaultMaxAttempts = 4
	// CompletedRetention is how long completed items stay visible to pollers.
	CompletedRetention = 60 * time.Minute
)

// Item is one export job.
type Item struct {
	ID           string
	DocumentID   string
	ExportType   ExportType
	Status       Status
	Attempts     int
	MaxAttempts  int
	Priority     int
	ScheduledAt  time.Time
	CustomerUUID string
	RequestID    string
	UserAgent    string
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
	DeleteAfter  *time.Time
}

// EnqueueInput describes a job to schedule. Zero MaxAttempts means DefaultMaxAttempts.
type EnqueueInput struct {
	DocumentID   string
	ExportType   ExportType
	CustomerUUID string
	RequestID    string
	UserAgent    string
	Priority     int
	MaxAttempts  int
}

func (in EnqueueInput) maxAttempts() int {
	if in.MaxAttempts > 0 {
		return in.MaxAttempts
	}
	return DefaultMaxAttempts
}
