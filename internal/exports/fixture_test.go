package exports

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"assessment-backend/internal/artifacts"
	"assessment-backend/internal/confirmations"
	"assessment-backend/internal/deadletters"
	"assessment-backend/internal/documents"
	"assessment-backend/internal/exportqueue"
	"assessment-backend/internal/generateddocs"
	"assessment-backend/internal/overrides"
	"assessment-backend/internal/shared/storage/object/local"
)

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// generatorFunc adapts a function to ArtifactGenerator.
type generatorFunc func(ctx context.Context, a confirmations.ConfirmedAnalysis, t exportqueue.ExportType) (artifacts.Artifact, error)

func (f generatorFunc) Generate(ctx context.Context, a confirmations.ConfirmedAnalysis, t exportqueue.ExportType) (artifacts.Artifact, error) {
	return f(ctx, a, t)
}

type fixture struct {
	clock     *clock
	root      string
	docs      *documents.MemoryRepo
	queue     *exportqueue.MemoryRepo
	generated *generateddocs.MemoryRepo
	dlq       *deadletters.Service
	confirm   *confirmations.Service
	svc       *Service
	processor *Processor
	worker    *Worker
}

// newFixture seeds doc-1 owned by cust-1 with two analysed questions.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := &clock{now: base}
	f := &fixture{
		clock:     clk,
		root:      t.TempDir(),
		docs:      documents.NewMemoryRepo(),
		queue:     exportqueue.NewMemoryRepo(),
		generated: generateddocs.NewMemoryRepo(),
	}
	if err := f.docs.Create(ctx, documents.Document{ID: "doc-1", CustomerUUID: "cust-1", FileName: "Unit 3 Quiz.pdf", ReviewStatus: documents.StatusPendingReview, CreatedAt: base, UpdatedAt: base}); err != nil {
		t.Fatalf("create: %v", err)
	}
	qs := []documents.Question{
		{ID: "q-1", DocumentID: "doc-1", QuestionNumber: 1, Text: "Label the parts of a cell", CreatedAt: base},
		{ID: "q-2", DocumentID: "doc-1", QuestionNumber: 2, Text: "Explain osmosis", CreatedAt: base},
	}
	cs := []documents.AIConsensusResult{
		{QuestionID: "q-1", Standards: []string{"MS-LS1-1"}, RigorLevel: documents.RigorMild, ConfidenceScore: 0.8, CreatedAt: base},
		{QuestionID: "q-2", Standards: []string{"MS-LS1-2"}, RigorLevel: documents.RigorSpicy, ConfidenceScore: 0.7, CreatedAt: base},
	}
	if err := f.docs.AddQuestions(ctx, qs, cs); err != nil {
		t.Fatalf("add questions: %v", err)
	}

	ovRepo := overrides.NewMemoryRepo(f.docs)
	store := local.New(f.root)
	f.confirm = &confirmations.Service{
		Repo:      confirmations.NewMemoryRepo(f.docs, ovRepo, f.queue),
		Questions: f.docs,
		Overrides: ovRepo,
		Generated: f.generated,
		Queue:     f.queue,
		Now:       clk.Now,
	}
	f.dlq = &deadletters.Service{Repo: deadletters.NewMemoryRepo(f.queue), Queue: f.queue, Now: clk.Now}
	f.processor = &Processor{
		Queue:       f.queue,
		Documents:   f.docs,
		Snapshots:   f.confirm,
		Generator:   artifacts.Generator{},
		Store:       store,
		Generated:   f.generated,
		DeadLetters: f.dlq,
		Now:         clk.Now,
	}
	f.svc = &Service{
		Queue:     f.queue,
		Generated: f.generated,
		Snapshots: f.confirm,
		Store:     store,
		Now:       clk.Now,
	}
	f.worker = NewWorker(f.processor, f.queue, time.Hour)
	f.worker.Now = clk.Now
	return f
}

func (f *fixture) accept(t *testing.T) {
	t.Helper()
	if _, err := f.confirm.AcceptDocument(context.Background(), "doc-1", confirmations.Actor{CustomerUUID: "cust-1", RequestID: "req-1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
}

// pendingID returns the pending item for the export type.
func (f *fixture) pendingID(t *testing.T, typ exportqueue.ExportType) string {
	t.Helper()
	items, err := f.queue.ListByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, it := range items {
		if it.ExportType == typ && it.Status == exportqueue.StatusPending {
			return it.ID
		}
	}
	t.Fatalf("no pending %s item in %+v", typ, items)
	return ""
}

func (f *fixture) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(f.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return n
}
