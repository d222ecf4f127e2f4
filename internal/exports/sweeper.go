package exports

import (
	"context"
	"time"

	"assessment-backend/internal/generateddocs"
	"assessment-backend/internal/shared/storage/object"
	"assessment-backend/internal/shared/telemetry"
)

const (
	defaultSweepInterval = 5 * time.Minute
	orphanBatch          = 100
)

// ExpiredDeleter drops completed queue items past retention.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// OrphanStore tracks blobs whose delete failed.
type OrphanStore interface {
	ListOrphans(ctx context.Context, limit int) ([]generateddocs.Orphan, error)
	DeleteOrphan(ctx context.Context, filePath string) error
	RecordOrphan(ctx context.Context, filePath, reason string, at time.Time) error
}

// SweepResult counts what one sweep cleaned up.
type SweepResult struct {
	ExpiredItems   int
	OrphansDeleted int
	OrphansFailed  int
}

// Sweeper expires finished queue items and retries orphaned blob deletes.
type Sweeper struct {
	Queue    ExpiredDeleter
	Orphans  OrphanStore
	Store    object.Store
	Interval time.Duration
	Now      func() time.Time
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// SweepOnce runs a single pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	n, err := s.Queue.DeleteExpired(ctx, s.now())
	if err != nil {
		return res, err
	}
	res.ExpiredItems = n

	orphans, err := s.Orphans.ListOrphans(ctx, orphanBatch)
	if err != nil {
		return res, err
	}
	for _, o := range orphans {
		if err := s.Store.Delete(ctx, o.FilePath); err != nil {
			res.OrphansFailed++
			_ = s.Orphans.RecordOrphan(ctx, o.FilePath, "sweep delete failed: "+err.Error(), s.now())
			continue
		}
		if err := s.Orphans.DeleteOrphan(ctx, o.FilePath); err != nil {
			return res, err
		}
		res.OrphansDeleted++
	}
	if res.ExpiredItems+res.OrphansDeleted+res.OrphansFailed > 0 {
		telemetry.Info("export.sweep", map[string]any{
			"expired_items":   res.ExpiredItems,
			"orphans_deleted": res.OrphansDeleted,
			"orphans_failed":  res.OrphansFailed,
		})
	}
	return res, nil
}

// Run sweeps on every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				telemetry.Error("export.sweep_failed", map[string]any{"error": err})
			}
		}
	}
}
