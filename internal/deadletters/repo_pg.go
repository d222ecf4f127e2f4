package deadletters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const entryColumns = `id, export_id, document_id, export_type, customer_uuid, actor, error_message, failure_kind,
       attempts, request_id, user_agent, moved_at, resolved_at, resolved_by, requeued_export_id`

// Move inserts the entry and deletes the queue row in one transaction.
func (r *PGRepo) Move(ctx context.Context, e Entry) error {
	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		const insert = `
INSERT INTO dead_letter_queue (
    id, export_id, document_id, export_type, customer_uuid, actor, error_message, failure_kind,
    attempts, request_id, user_agent, moved_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		if _, err := tx.ExecContext(ctx, insert,
			e.ID, e.ExportID, e.DocumentID, e.ExportType, e.CustomerUUID, e.Actor, e.ErrorMessage, e.FailureKind,
			e.Attempts, e.RequestID, e.UserAgent, e.MovedAt,
		); err != nil {
			return err
		}
		return exportqueue.DeleteTx(ctx, tx, e.ExportID)
	})
}

func (r *PGRepo) List(ctx context.Context, f ListFilter) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)
	if f.CustomerUUID != "" {
		args = append(args, f.CustomerUUID)
		conds = append(conds, fmt.Sprintf("customer_uuid = $%d", len(args)))
	}
	if f.DocumentID != "" {
		args = append(args, f.DocumentID)
		conds = append(conds, fmt.Sprintf("document_id = $%d", len(args)))
	}
	if !f.IncludeResolved {
		conds = append(conds, "resolved_at IS NULL")
	}
	query := `SELECT ` + entryColumns + ` FROM dead_letter_queue`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, f.limit(), offset)
	query += fmt.Sprintf(` ORDER BY moved_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PGRepo) Get(ctx context.Context, id string) (Entry, error) {
	e, err := scanEntry(r.DB.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM dead_letter_queue WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (r *PGRepo) MarkResolved(ctx context.Context, id, resolvedBy, requeuedExportID string, at time.Time) error {
	var requeued sql.NullString
	if requeuedExportID != "" {
		requeued = sql.NullString{String: requeuedExportID, Valid: true}
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE dead_letter_queue
SET resolved_at = $2, resolved_by = $3, requeued_export_id = $4
WHERE id = $1 AND resolved_at IS NULL`, id, at, resolvedBy, requeued)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyResolved
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e          Entry
		resolvedAt sql.NullTime
		requeued   sql.NullString
	)
	if err := s.Scan(&e.ID, &e.ExportID, &e.DocumentID, &e.ExportType, &e.CustomerUUID, &e.Actor, &e.ErrorMessage,
		&e.FailureKind, &e.Attempts, &e.RequestID, &e.UserAgent, &e.MovedAt, &resolvedAt, &e.ResolvedBy, &requeued); err != nil {
		return Entry{}, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		e.ResolvedAt = &t
	}
	e.RequeuedExportID = requeued.String
	return e, nil
}

var _ Repo = (*PGRepo)(nil)
