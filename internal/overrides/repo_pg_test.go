package overrides

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var eventCols = []string{
	"id", "question_id", "customer_uuid", "kind", "standards", "rigor_level", "justification",
	"confidence_level", "has_domain_change", "domain_change_details", "reverts_event_id", "created_at",
}

func TestPGAppendWritesEventAndState(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()
	repo := &PGRepo{DB: database}
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO override_events`).
		WithArgs("ev-1", "q-1", "cust-1", "override", []byte(`["MS-LS1-2"]`), "spicy", "why", 0.9, false, sqlmock.AnyArg(), sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO override_states`).
		WithArgs("q-1", "ev-1", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = repo.Append(context.Background(), Event{
		ID: "ev-1", QuestionID: "q-1", CustomerUUID: "cust-1", Kind: KindOverride,
		Standards: []string{"MS-LS1-2"}, RigorLevel: "spicy", Justification: "why", ConfidenceLevel: 0.9, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRevertWithoutActiveState(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()
	repo := &PGRepo{DB: database}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT kind, event_id FROM override_states`).
		WithArgs("q-1").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "event_id"}).AddRow("reverted", "ev-1"))
	mock.ExpectRollback()

	_, err = repo.Revert(context.Background(), "q-1", "cust-1", "ev-2", time.Now())
	if !errors.Is(err, ErrNoActiveOverride) {
		t.Fatalf("expected ErrNoActiveOverride, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRevertMarksStateReverted(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()
	repo := &PGRepo{DB: database}
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT kind, event_id FROM override_states`).
		WithArgs("q-1").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "event_id"}).AddRow("active", "ev-1"))
	mock.ExpectExec(`INSERT INTO override_events`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE override_states SET kind = 'reverted'`).
		WithArgs("q-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ev, err := repo.Revert(context.Background(), "q-1", "cust-1", "ev-2", now)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if ev.RevertsEventID != "ev-1" || ev.Kind != KindRevert {
		t.Fatalf("unexpected revert event %+v", ev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGHistoryDerivesFlags(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()
	repo := &PGRepo{DB: database}
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(eventCols).
		AddRow("ev-3", "q-1", "cust-1", "override", []byte(`["B.1"]`), "medium", "", 0.5, false, nil, nil, now.Add(2*time.Minute)).
		AddRow("ev-2", "q-1", "cust-1", "revert", []byte(`[]`), "", "", 0.0, false, nil, "ev-1", now.Add(time.Minute)).
		AddRow("ev-1", "q-1", "cust-1", "override", []byte(`["A.1"]`), "mild", "", 0.4, false, nil, nil, now)
	mock.ExpectQuery(`FROM override_events e\s+WHERE e.question_id = \$1\s+ORDER BY e.seq DESC`).
		WithArgs("q-1").WillReturnRows(rows)
	mock.ExpectQuery(`FROM override_states WHERE question_id`).
		WithArgs("q-1").
		WillReturnRows(sqlmock.NewRows([]string{"question_id", "kind", "event_id", "updated_at"}).AddRow("q-1", "active", "ev-3", now))

	history, err := repo.History(context.Background(), "q-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 events, got %d", len(history))
	}
	if !history[0].IsActive || history[0].IsRevertedToAI {
		t.Fatalf("expected ev-3 active, got %+v", history[0])
	}
	if history[2].IsActive || !history[2].IsRevertedToAI {
		t.Fatalf("expected ev-1 reverted, got %+v", history[2])
	}
	if history[1].RevertsEventID != "ev-1" {
		t.Fatalf("expected revert link, got %+v", history[1])
	}
}
