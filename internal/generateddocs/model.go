package generateddocs

import "time"

// GeneratedDocument is the current artifact for one (parent document, export type).
type GeneratedDocument struct {
	ID               string
	ParentDocumentID string
	ExportType       string
	FilePath         string
	FileName         string
	MimeType         string
	SizeBytes        int64
	Tags             []string
	// SnapshotAt is the confirmed analysis timestamp the artifact was rendered from.
	SnapshotAt time.Time
	CreatedAt  time.Time
}

// Orphan is a blob left behind when deleting a superseded artifact failed.
type Orphan struct {
	ID            string
	FilePath      string
	Reason        string
	Attempts      int
	CreatedAt     time.Time
	LastAttemptAt *time.Time
}
