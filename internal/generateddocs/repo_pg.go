package generateddocs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"assessment-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const docColumns = `id, parent_document_id, export_type, file_path, file_name, mime_type, size_bytes, tags, snapshot_at, created_at`

// Replace deletes the current record for the pair and inserts doc in one transaction.
func (r *PGRepo) Replace(ctx context.Context, doc GeneratedDocument) (*GeneratedDocument, error) {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}

	var prev *GeneratedDocument
	err = db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		old, err := scanDoc(tx.QueryRowContext(ctx, `SELECT `+docColumns+`
FROM generated_documents
WHERE parent_document_id = $1 AND export_type = $2
FOR UPDATE`, doc.ParentDocumentID, doc.ExportType))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			prev = &old
			if _, err := tx.ExecContext(ctx, `DELETE FROM generated_documents WHERE id = $1`, old.ID); err != nil {
				return err
			}
		}

		const insert = `
INSERT INTO generated_documents (
    id, parent_document_id, export_type, file_path, file_name, mime_type, size_bytes, tags, snapshot_at, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		_, err = tx.ExecContext(ctx, insert,
			doc.ID, doc.ParentDocumentID, doc.ExportType, doc.FilePath, doc.FileName, doc.MimeType,
			doc.SizeBytes, tagsJSON, doc.SnapshotAt, doc.CreatedAt,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

func (r *PGRepo) Get(ctx context.Context, parentDocumentID, exportType string) (GeneratedDocument, error) {
	doc, err := scanDoc(r.DB.QueryRowContext(ctx, `SELECT `+docColumns+`
FROM generated_documents
WHERE parent_document_id = $1 AND export_type = $2`, parentDocumentID, exportType))
	if errors.Is(err, sql.ErrNoRows) {
		return GeneratedDocument{}, ErrNotFound
	}
	return doc, err
}

func (r *PGRepo) ListByParent(ctx context.Context, parentDocumentID string) ([]GeneratedDocument, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+docColumns+`
FROM generated_documents
WHERE parent_document_id = $1
ORDER BY export_type`, parentDocumentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]GeneratedDocument, 0, 2)
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *PGRepo) RecordOrphan(ctx context.Context, filePath, reason string, at time.Time) error {
	const query = `
INSERT INTO artifact_orphans (id, file_path, reason, attempts, created_at)
VALUES ($1, $2, $3, 0, $4)
ON CONFLICT (file_path) DO UPDATE
SET reason = EXCLUDED.reason,
    attempts = artifact_orphans.attempts + 1,
    last_attempt_at = EXCLUDED.created_at`
	_, err := r.DB.ExecContext(ctx, query, uuid.NewString(), filePath, reason, at)
	return err
}

func (r *PGRepo) ListOrphans(ctx context.Context, limit int) ([]Orphan, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
SELECT id, file_path, reason, attempts, created_at, last_attempt_at
FROM artifact_orphans
ORDER BY created_at
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Orphan
	for rows.Next() {
		var (
			o    Orphan
			last sql.NullTime
		)
		if err := rows.Scan(&o.ID, &o.FilePath, &o.Reason, &o.Attempts, &o.CreatedAt, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			t := last.Time
			o.LastAttemptAt = &t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PGRepo) DeleteOrphan(ctx context.Context, filePath string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM artifact_orphans WHERE file_path = $1`, filePath)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDoc(s scanner) (GeneratedDocument, error) {
	var (
		doc  GeneratedDocument
		tags []byte
	)
	if err := s.Scan(&doc.ID, &doc.ParentDocumentID, &doc.ExportType, &doc.FilePath, &doc.FileName,
		&doc.MimeType, &doc.SizeBytes, &tags, &doc.SnapshotAt, &doc.CreatedAt); err != nil {
		return GeneratedDocument{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &doc.Tags); err != nil {
			return GeneratedDocument{}, fmt.Errorf("decode tags for %s: %w", doc.ID, err)
		}
	}
	return doc, nil
}

var _ Repo = (*PGRepo)(nil)
