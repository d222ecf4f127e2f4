package exportqueue

import "errors"

var (
	ErrNotFound          = errors.New("export not found")
	ErrNotPending        = errors.New("export is not pending")
	ErrInvalidExportType = errors.New("invalid export type")
	// ErrSuperseded means a fresher pending item exists for the same
	// document and type, so a retry of the older one is pointless.
	ErrSuperseded = errors.New("export superseded by a newer pending item")
)
