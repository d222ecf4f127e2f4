package generateddocs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryReplaceKeepsOnePerType(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := GeneratedDocument{ID: "g-1", ParentDocumentID: "doc-1", ExportType: "rubric", FilePath: "a.pdf", CreatedAt: now}
	if prev, err := r.Replace(ctx, first); err != nil || prev != nil {
		t.Fatalf("first replace: prev=%v err=%v", prev, err)
	}
	second := first
	second.ID, second.FilePath = "g-2", "b.pdf"
	prev, err := r.Replace(ctx, second)
	if err != nil {
		t.Fatalf("second replace: %v", err)
	}
	if prev == nil || prev.FilePath != "a.pdf" {
		t.Fatalf("expected previous record returned, got %+v", prev)
	}
	if _, err := r.Replace(ctx, GeneratedDocument{ID: "g-3", ParentDocumentID: "doc-1", ExportType: "cover_sheet"}); err != nil {
		t.Fatalf("cover sheet: %v", err)
	}

	docs, _ := r.ListByParent(ctx, "doc-1")
	if len(docs) != 2 || docs[0].ExportType != "cover_sheet" || docs[1].ID != "g-2" {
		t.Fatalf("unexpected docs %+v", docs)
	}
}

func TestMemoryOrphanAttempts(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	now := time.Now().UTC()
	_ = r.RecordOrphan(ctx, "old.pdf", "delete failed", now)
	_ = r.RecordOrphan(ctx, "old.pdf", "still failing", now.Add(time.Minute))
	orphans, _ := r.ListOrphans(ctx, 10)
	if len(orphans) != 1 || orphans[0].Attempts != 1 || orphans[0].Reason != "still failing" {
		t.Fatalf("unexpected orphans %+v", orphans)
	}
	_ = r.DeleteOrphan(ctx, "old.pdf")
	if orphans, _ := r.ListOrphans(ctx, 10); len(orphans) != 0 {
		t.Fatalf("expected orphan removed")
	}
}

func TestPGReplaceDeletesThenInserts(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM generated_documents\s+WHERE parent_document_id = \$1 AND export_type = \$2\s+FOR UPDATE`).
		WithArgs("doc-1", "rubric").
		WillReturnRows(sqlmock.NewRows([]string{"id", "parent_document_id", "export_type", "file_path", "file_name", "mime_type", "size_bytes", "tags", "snapshot_at", "created_at"}).
			AddRow("g-1", "doc-1", "rubric", "old.pdf", "rubric.pdf", "application/pdf", 10, []byte(`["export"]`), now, now))
	mock.ExpectExec(`DELETE FROM generated_documents WHERE id = \$1`).WithArgs("g-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO generated_documents`).
		WithArgs("g-2", "doc-1", "rubric", "new.pdf", "rubric.pdf", "application/pdf", int64(12), []byte(`["export","rubric"]`), now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	prev, err := (&PGRepo{DB: database}).Replace(context.Background(), GeneratedDocument{
		ID: "g-2", ParentDocumentID: "doc-1", ExportType: "rubric", FilePath: "new.pdf", FileName: "rubric.pdf",
		MimeType: "application/pdf", SizeBytes: 12, Tags: []string{"export", "rubric"}, SnapshotAt: now, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if prev == nil || prev.FilePath != "old.pdf" || len(prev.Tags) != 1 {
		t.Fatalf("unexpected previous %+v", prev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
