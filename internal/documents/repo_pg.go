package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"assessment-backend/internal/shared/storage/db"
)

// PGRepo implements Repo on Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, customer_uuid, file_name, mime_type, size_bytes, storage_key, review_status, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, customer_uuid, file_name, mime_type, size_bytes, storage_key, review_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	status := doc.ReviewStatus
	if status == "" {
		status = StatusPendingReview
	}
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID, doc.CustomerUUID, doc.FileName, doc.MimeType, doc.SizeBytes,
		doc.StorageKey, string(status), doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, documentID string) (Document, error) {
	return LoadDocument(ctx, r.DB, documentID)
}

func (r *PGRepo) ListByCustomer(ctx context.Context, customerUUID string, limit, offset int) ([]Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + documentColumns + `
FROM documents
WHERE customer_uuid = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, customerUUID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// AddQuestions relies on the (document_id, question_number) unique key and the
// documents foreign key to reject duplicates and unknown documents.
func (r *PGRepo) AddQuestions(ctx context.Context, questions []Question, consensus []AIConsensusResult) error {
	const insertQuestion = `
INSERT INTO questions (id, document_id, question_number, text, context, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	const insertConsensus = `
INSERT INTO ai_consensus_results (question_id, standards, rigor_level, confidence_score, justification, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		for _, q := range questions {
			if _, err := tx.ExecContext(ctx, insertQuestion, q.ID, q.DocumentID, q.QuestionNumber, q.Text, q.Context, q.CreatedAt); err != nil {
				return err
			}
		}
		for _, c := range consensus {
			standards, err := json.Marshal(nonNil(c.Standards))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, insertConsensus, c.QuestionID, standards, string(c.RigorLevel), c.ConfidenceScore, c.Justification, c.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrQuestionsExist
		case "23503":
			return ErrNotFound
		}
	}
	return err
}

func (r *PGRepo) GetQuestion(ctx context.Context, questionID string) (Question, error) {
	const query = `
SELECT id, document_id, question_number, text, context, created_at
FROM questions
WHERE id = $1`
	var q Question
	err := r.DB.QueryRowContext(ctx, query, questionID).Scan(&q.ID, &q.DocumentID, &q.QuestionNumber, &q.Text, &q.Context, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrQuestionNotFound
	}
	return q, err
}

func (r *PGRepo) ListQuestions(ctx context.Context, documentID string) ([]Question, error) {
	return LoadQuestions(ctx, r.DB, documentID)
}

func (r *PGRepo) GetConsensus(ctx context.Context, questionID string) (AIConsensusResult, bool, error) {
	const query = `
SELECT question_id, standards, rigor_level, confidence_score, justification, created_at
FROM ai_consensus_results
WHERE question_id = $1`
	c, err := scanConsensus(r.DB.QueryRowContext(ctx, query, questionID))
	if errors.Is(err, sql.ErrNoRows) {
		return AIConsensusResult{}, false, nil
	}
	if err != nil {
		return AIConsensusResult{}, false, err
	}
	return c, true, nil
}

func (r *PGRepo) ConsensusForDocument(ctx context.Context, documentID string) (map[string]AIConsensusResult, error) {
	return LoadConsensus(ctx, r.DB, documentID)
}

func (r *PGRepo) UpdateReviewStatus(ctx context.Context, documentID string, status ReviewStatus, at time.Time) error {
	return StoreReviewStatus(ctx, r.DB, documentID, status, at)
}

// LoadDocument reads one document through q, so callers can run it inside their own transaction.
func LoadDocument(ctx context.Context, q db.Querier, documentID string) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(q.QueryRowContext(ctx, query, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// LoadQuestions reads a document's questions ordered by number.
func LoadQuestions(ctx context.Context, q db.Querier, documentID string) ([]Question, error) {
	const query = `
SELECT id, document_id, question_number, text, context, created_at
FROM questions
WHERE document_id = $1
ORDER BY question_number`
	rows, err := q.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var qu Question
		if err := rows.Scan(&qu.ID, &qu.DocumentID, &qu.QuestionNumber, &qu.Text, &qu.Context, &qu.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, qu)
	}
	return out, rows.Err()
}

// LoadConsensus maps question id to AI consensus for a document.
func LoadConsensus(ctx context.Context, q db.Querier, documentID string) (map[string]AIConsensusResult, error) {
	const query = `
SELECT c.question_id, c.standards, c.rigor_level, c.confidence_score, c.justification, c.created_at
FROM ai_consensus_results c
JOIN questions q ON q.id = c.question_id
WHERE q.document_id = $1`
	rows, err := q.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]AIConsensusResult)
	for rows.Next() {
		c, err := scanConsensus(rows)
		if err != nil {
			return nil, err
		}
		out[c.QuestionID] = c
	}
	return out, rows.Err()
}

// StoreReviewStatus sets a document's review status.
func StoreReviewStatus(ctx context.Context, q db.Querier, documentID string, status ReviewStatus, at time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE documents SET review_status = $1, updated_at = $2 WHERE id = $3`, string(status), at, documentID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (Document, error) {
	var doc Document
	var status string
	err := s.Scan(&doc.ID, &doc.CustomerUUID, &doc.FileName, &doc.MimeType, &doc.SizeBytes,
		&doc.StorageKey, &status, &doc.CreatedAt, &doc.UpdatedAt)
	doc.ReviewStatus = ReviewStatus(status)
	return doc, err
}

func scanConsensus(s scanner) (AIConsensusResult, error) {
	var c AIConsensusResult
	var standards []byte
	var rigor string
	if err := s.Scan(&c.QuestionID, &standards, &rigor, &c.ConfidenceScore, &c.Justification, &c.CreatedAt); err != nil {
		return AIConsensusResult{}, err
	}
	c.RigorLevel = RigorLevel(rigor)
	if len(standards) > 0 {
		if err := json.Unmarshal(standards, &c.Standards); err != nil {
			return AIConsensusResult{}, fmt.Errorf("decode standards for %s: %w", c.QuestionID, err)
		}
	}
	return c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Repo = (*PGRepo)(nil)
