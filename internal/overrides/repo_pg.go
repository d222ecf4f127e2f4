package overrides

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"assessment-backend/internal/documents"
	"assessment-backend/internal/shared/storage/db"
)

// PGRepo implements Repo on Postgres. override_states has one row per
// question, so there is never more than one active override to observe.
type PGRepo struct {
	DB *sql.DB
}

const eventColumns = `e.id, e.question_id, e.customer_uuid, e.kind, e.standards, e.rigor_level, e.justification,
       e.confidence_level, e.has_domain_change, e.domain_change_details, e.reverts_event_id, e.created_at`

func (r *PGRepo) Append(ctx context.Context, ev Event) error {
	return db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
		const upsert = `
INSERT INTO override_states (question_id, kind, event_id, updated_at)
VALUES ($1, 'active', $2, $3)
ON CONFLICT (question_id) DO UPDATE
SET kind = 'active', event_id = EXCLUDED.event_id, updated_at = EXCLUDED.updated_at`
		_, err := tx.ExecContext(ctx, upsert, ev.QuestionID, ev.ID, ev.CreatedAt)
		return err
	})
}

func (r *PGRepo) Revert(ctx context.Context, questionID, customerUUID, eventID string, at time.Time) (Event, error) {
	var out Event
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var kind, activeID string
		err := tx.QueryRowContext(ctx,
			`SELECT kind, event_id FROM override_states WHERE question_id = $1 FOR UPDATE`, questionID,
		).Scan(&kind, &activeID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && kind != string(StateActive)) {
			return ErrNoActiveOverride
		}
		if err != nil {
			return err
		}

		out = Event{
			ID:             eventID,
			QuestionID:     questionID,
			CustomerUUID:   customerUUID,
			Kind:           KindRevert,
			RevertsEventID: activeID,
			CreatedAt:      at,
		}
		if err := insertEvent(ctx, tx, out); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE override_states SET kind = 'reverted', updated_at = $2 WHERE question_id = $1`, questionID, at)
		return err
	})
	if err != nil {
		return Event{}, err
	}
	return out, nil
}

func (r *PGRepo) Active(ctx context.Context, questionID string) (Event, bool, error) {
	query := `SELECT ` + eventColumns + `
FROM override_states s
JOIN override_events e ON e.id = s.event_id
WHERE s.question_id = $1 AND s.kind = 'active'`
	ev, err := scanEvent(r.DB.QueryRowContext(ctx, query, questionID))
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	ev.IsActive = true
	return ev, true, nil
}

func (r *PGRepo) ActiveForDocument(ctx context.Context, documentID string) (map[string]Event, error) {
	return LoadActiveForDocument(ctx, r.DB, documentID)
}

func (r *PGRepo) History(ctx context.Context, questionID string) ([]Event, error) {
	query := `SELECT ` + eventColumns + `
FROM override_events e
WHERE e.question_id = $1
ORDER BY e.seq DESC`
	rows, err := r.DB.QueryContext(ctx, query, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var st State
	err = r.DB.QueryRowContext(ctx,
		`SELECT question_id, kind, event_id, updated_at FROM override_states WHERE question_id = $1`, questionID,
	).Scan(&st.QuestionID, &st.Kind, &st.EventID, &st.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return deriveFlags(events, nil), nil
	case err != nil:
		return nil, err
	}
	return deriveFlags(events, &st), nil
}

// LoadActiveForDocument reads active overrides for a document through q.
func LoadActiveForDocument(ctx context.Context, q db.Querier, documentID string) (map[string]Event, error) {
	query := `SELECT ` + eventColumns + `
FROM override_states s
JOIN override_events e ON e.id = s.event_id
JOIN questions q ON q.id = s.question_id
WHERE q.document_id = $1 AND s.kind = 'active'`
	rows, err := q.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Event)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		ev.IsActive = true
		out[ev.QuestionID] = ev
	}
	return out, rows.Err()
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev Event) error {
	const query = `
INSERT INTO override_events (
    id, question_id, customer_uuid, kind, standards, rigor_level, justification,
    confidence_level, has_domain_change, domain_change_details, reverts_event_id, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	standards := ev.Standards
	if standards == nil {
		standards = []string{}
	}
	standardsJSON, err := json.Marshal(standards)
	if err != nil {
		return err
	}
	var details []byte
	if ev.DomainChangeDetails != nil {
		if details, err = json.Marshal(ev.DomainChangeDetails); err != nil {
			return err
		}
	}
	var reverts sql.NullString
	if ev.RevertsEventID != "" {
		reverts = sql.NullString{String: ev.RevertsEventID, Valid: true}
	}
	_, err = tx.ExecContext(ctx, query,
		ev.ID, ev.QuestionID, ev.CustomerUUID, string(ev.Kind), standardsJSON, string(ev.RigorLevel),
		ev.Justification, ev.ConfidenceLevel, ev.HasDomainChange, details, reverts, ev.CreatedAt,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (Event, error) {
	var (
		ev        Event
		kind      string
		rigor     string
		standards []byte
		details   []byte
		reverts   sql.NullString
	)
	if err := s.Scan(&ev.ID, &ev.QuestionID, &ev.CustomerUUID, &kind, &standards, &rigor, &ev.Justification,
		&ev.ConfidenceLevel, &ev.HasDomainChange, &details, &reverts, &ev.CreatedAt); err != nil {
		return Event{}, err
	}
	ev.Kind = EventKind(kind)
	ev.RigorLevel = documents.RigorLevel(rigor)
	ev.RevertsEventID = reverts.String
	if len(standards) > 0 {
		if err := json.Unmarshal(standards, &ev.Standards); err != nil {
			return Event{}, fmt.Errorf("decode standards for %s: %w", ev.ID, err)
		}
	}
	if len(details) > 0 {
		var d DomainChange
		if err := json.Unmarshal(details, &d); err != nil {
			return Event{}, fmt.Errorf("decode domain change for %s: %w", ev.ID, err)
		}
		ev.DomainChangeDetails = &d
	}
	return ev, nil
}

var _ Repo = (*PGRepo)(nil)
