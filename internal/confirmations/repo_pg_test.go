package confirmations

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"assessment-backend/internal/exportqueue"
)

func TestPGAcceptLocksBeforeReading(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtextextended\(\$1, 0\)\)`).
		WithArgs("accept:doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM documents WHERE id = \$1`).
		WithArgs("doc-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err = (&PGRepo{DB: database}).Accept(context.Background(), "doc-1", time.Now(), func(Inputs) (ConfirmedAnalysis, []exportqueue.EnqueueInput, error) {
		t.Fatalf("plan must not run for a missing document")
		return ConfirmedAnalysis{}, nil, nil
	})
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGGetDecodesSnapshot(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()
	now := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

	data := []byte(`{"version":1,"documentId":"doc-1","fileName":"quiz.pdf","overrideCount":1,"questions":[
		{"questionId":"q-1","questionNumber":1,"questionText":"A","finalRigor":"spicy","finalStandards":["X.1"],"hasOverride":true,"sourceConfidence":0.9,"source":"teacher_override"},
		{"questionId":"q-2","questionNumber":2,"questionText":"B","finalRigor":"","finalStandards":null,"hasOverride":false,"sourceConfidence":0,"source":"not_analyzed"}]}`)
	mock.ExpectQuery(`FROM confirmed_analysis`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "customer_uuid", "analysis_data", "override_count", "accepted_by", "created_at"}).
			AddRow("doc-1", "cust-1", data, 1, "cust-1", now))

	a, err := (&PGRepo{DB: database}).Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.FileName != "quiz.pdf" || len(a.Questions) != 2 || !a.Questions["q-1"].HasOverride {
		t.Fatalf("unexpected analysis %+v", a)
	}
	if a.Questions["q-2"].FinalStandards == nil {
		t.Fatalf("expected empty standards slice, not nil")
	}
	if a.ReviewStatus() != "reviewed_and_overridden" {
		t.Fatalf("unexpected review status %s", a.ReviewStatus())
	}
}
