package confirmations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"assessment-backend/internal/documents"
	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/overrides"
	"assessment-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres. Accept holds a transaction-scoped
// advisory lock on the document for its whole unit of work.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Accept(ctx context.Context, documentID string, now time.Time, plan PlanFunc) (AcceptResult, error) {
	var res AcceptResult
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := db.LockKey(ctx, tx, "accept:"+documentID); err != nil {
			return err
		}
		doc, err := documents.LoadDocument(ctx, tx, documentID)
		if errors.Is(err, documents.ErrNotFound) {
			return ErrDocumentNotFound
		}
		if err != nil {
			return err
		}
		in := Inputs{Document: doc}
		if in.Questions, err = documents.LoadQuestions(ctx, tx, documentID); err != nil {
			return err
		}
		if in.Consensus, err = documents.LoadConsensus(ctx, tx, documentID); err != nil {
			return err
		}
		if in.Overrides, err = overrides.LoadActiveForDocument(ctx, tx, documentID); err != nil {
			return err
		}

		analysis, exports, err := plan(in)
		if err != nil {
			return err
		}
		data, err := AnalysisData(analysis)
		if err != nil {
			return fmt.Errorf("encode analysis data: %w", err)
		}
		const upsert = `
INSERT INTO confirmed_analysis (document_id, customer_uuid, analysis_data, override_count, accepted_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (document_id) DO UPDATE
SET customer_uuid = EXCLUDED.customer_uuid,
    analysis_data = EXCLUDED.analysis_data,
    override_count = EXCLUDED.override_count,
    accepted_by = EXCLUDED.accepted_by,
    created_at = EXCLUDED.created_at`
		if _, err := tx.ExecContext(ctx, upsert,
			analysis.DocumentID, analysis.CustomerUUID, data, analysis.OverrideCount, analysis.AcceptedBy, analysis.CreatedAt,
		); err != nil {
			return err
		}
		if err := documents.StoreReviewStatus(ctx, tx, documentID, analysis.ReviewStatus(), now); err != nil {
			return err
		}

		res = AcceptResult{Analysis: analysis}
		for _, e := range exports {
			item, err := exportqueue.EnqueueTx(ctx, tx, e, now)
			if err != nil {
				return fmt.Errorf("enqueue %s: %w", e.ExportType, err)
			}
			res.Enqueued = append(res.Enqueued, item)
		}
		return nil
	})
	if err != nil {
		return AcceptResult{}, err
	}
	return res, nil
}

func (r *PGRepo) Get(ctx context.Context, documentID string) (ConfirmedAnalysis, error) {
	const query = `
SELECT document_id, customer_uuid, analysis_data, override_count, accepted_by, created_at
FROM confirmed_analysis
WHERE document_id = $1`
	var (
		a    ConfirmedAnalysis
		data []byte
	)
	err := r.DB.QueryRowContext(ctx, query, documentID).Scan(
		&a.DocumentID, &a.CustomerUUID, &data, &a.OverrideCount, &a.AcceptedBy, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ConfirmedAnalysis{}, ErrNotFound
	}
	if err != nil {
		return ConfirmedAnalysis{}, err
	}
	if err := decodeAnalysisData(data, &a); err != nil {
		return ConfirmedAnalysis{}, fmt.Errorf("decode analysis data for %s: %w", documentID, err)
	}
	return a, nil
}

var _ Repo = (*PGRepo)(nil)
