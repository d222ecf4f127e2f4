package exportqueue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"assessment-backend/internal/shared/storage/db"
)

// PGRepo implements Repo on Postgres. Pending uniqueness is enforced by the
// export_queue_pending_uniq partial index.
type PGRepo struct {
	DB *sql.DB
}

const itemColumns = `id, document_id, export_type, status, attempts, max_attempts, priority, scheduled_at,
       customer_uuid, request_id, user_agent, last_error, created_at, updated_at, completed_at, delete_after`

func (r *PGRepo) Enqueue(ctx context.Context, in EnqueueInput, now time.Time) (Item, error) {
	return EnqueueTx(ctx, r.DB, in, now)
}

// EnqueueTx enqueues through q so callers can include it in their own transaction.
func EnqueueTx(ctx context.Context, q db.Querier, in EnqueueInput, now time.Time) (Item, error) {
	if _, err := ParseExportType(string(in.ExportType)); err != nil {
		return Item{}, err
	}
	query := `
INSERT INTO export_queue (
    id, document_id, export_type, status, attempts, max_attempts, priority, scheduled_at,
    customer_uuid, request_id, user_agent, last_error, created_at, updated_at
) VALUES ($1, $2, $3, 'pending', 0, $4, $5, $6, $7, $8, $9, '', $6, $6)
ON CONFLICT (document_id, export_type) WHERE status = 'pending' DO UPDATE
SET attempts = 0,
    max_attempts = EXCLUDED.max_attempts,
    priority = EXCLUDED.priority,
    scheduled_at = EXCLUDED.scheduled_at,
    customer_uuid = EXCLUDED.customer_uuid,
    request_id = EXCLUDED.request_id,
    user_agent = EXCLUDED.user_agent,
    last_error = '',
    updated_at = EXCLUDED.updated_at
RETURNING ` + itemColumns
	return scanItem(q.QueryRowContext(ctx, query,
		uuid.NewString(), in.DocumentID, string(in.ExportType), in.maxAttempts(), in.Priority, now,
		in.CustomerUUID, in.RequestID, in.UserAgent,
	))
}

// DeleteTx removes an item through q. Used when moving an item to the dead letter queue.
func DeleteTx(ctx context.Context, q db.Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM export_queue WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *PGRepo) Get(ctx context.Context, id string) (Item, error) {
	item, err := scanItem(r.DB.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM export_queue WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return item, err
}

func (r *PGRepo) ListByDocument(ctx context.Context, documentID string) ([]Item, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+itemColumns+`
FROM export_queue
WHERE document_id = $1
ORDER BY created_at DESC, export_type`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *PGRepo) NextDue(ctx context.Context, now time.Time) (Item, bool, error) {
	item, err := scanItem(r.DB.QueryRowContext(ctx, `SELECT `+itemColumns+`
FROM export_queue
WHERE status = 'pending' AND scheduled_at <= $1
ORDER BY priority DESC, scheduled_at, created_at, id
LIMIT 1`, now))
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, err
	}
	return item, true, nil
}

func (r *PGRepo) Claim(ctx context.Context, id string, now time.Time) (Item, error) {
	item, err := scanItem(r.DB.QueryRowContext(ctx, `UPDATE export_queue
SET status = 'processing', updated_at = $2
WHERE id = $1 AND status = 'pending'
RETURNING `+itemColumns, id, now))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return Item{}, getErr
		}
		return Item{}, ErrNotPending
	}
	return item, err
}

func (r *PGRepo) Reschedule(ctx context.Context, id string, attempts int, at time.Time, lastError string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE export_queue
SET status = 'pending', attempts = $2, scheduled_at = $3, last_error = $4, updated_at = $5
WHERE id = $1`, id, attempts, at, lastError, now)
	if isUniqueViolation(err) {
		return ErrSuperseded
	}
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *PGRepo) Complete(ctx context.Context, id string, now, deleteAfter time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE export_queue
SET status = 'completed', last_error = '', updated_at = $2, completed_at = $2, delete_after = $3
WHERE id = $1`, id, now, deleteAfter)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *PGRepo) MarkFailed(ctx context.Context, id string, attempts int, lastError string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE export_queue
SET status = 'failed', attempts = $2, last_error = $3, updated_at = $4
WHERE id = $1`, id, attempts, lastError, now)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *PGRepo) Remove(ctx context.Context, id string) error {
	return DeleteTx(ctx, r.DB, id)
}

func (r *PGRepo) Cancel(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM export_queue WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrNotPending
}

func (r *PGRepo) ResetProcessing(ctx context.Context, now, staleBefore time.Time) (int, error) {
	var n int64
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		// A stranded item with a fresher pending sibling would collide with the
		// pending index; the sibling already covers it.
		if _, err := tx.ExecContext(ctx, `DELETE FROM export_queue p
WHERE p.status = 'processing'
  AND p.updated_at <= $1
  AND EXISTS (
    SELECT 1 FROM export_queue o
    WHERE o.document_id = p.document_id AND o.export_type = p.export_type AND o.status = 'pending'
  )`, staleBefore); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE export_queue
SET status = 'pending', scheduled_at = $1, updated_at = $1
WHERE status = 'processing' AND updated_at <= $2`, now, staleBefore)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (r *PGRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM export_queue
WHERE status = 'completed' AND delete_after IS NOT NULL AND delete_after <= $1`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (Item, error) {
	var (
		item        Item
		exportType  string
		status      string
		completedAt sql.NullTime
		deleteAfter sql.NullTime
	)
	if err := s.Scan(&item.ID, &item.DocumentID, &exportType, &status, &item.Attempts, &item.MaxAttempts,
		&item.Priority, &item.ScheduledAt, &item.CustomerUUID, &item.RequestID, &item.UserAgent, &item.LastError,
		&item.CreatedAt, &item.UpdatedAt, &completedAt, &deleteAfter); err != nil {
		return Item{}, err
	}
	item.ExportType = ExportType(exportType)
	item.Status = Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		item.CompletedAt = &t
	}
	if deleteAfter.Valid {
		t := deleteAfter.Time
		item.DeleteAfter = &t
	}
	return item, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repo = (*PGRepo)(nil)
