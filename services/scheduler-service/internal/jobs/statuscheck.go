package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/lessondesk/lessondesk/libs/db"
	"github.com/lessondesk/lessondesk/libs/lessons"
	"github.com/lessondesk/lessondesk/services/scheduler-service/internal/storage"
)

// StatusChecker closes out lessons that ended but were never marked by a
// human: anything still scheduled or in_progress past its end plus the grace
// period is completed automatically.
type StatusChecker struct {
	pool      *db.Pool
	repo      *storage.Repository
	logger    *slog.Logger
	interval  time.Duration
	grace     time.Duration
	batchSize int
}

type StatusCheckerConfig struct {
	Interval  time.Duration
	Grace     time.Duration
	BatchSize int
}

func NewStatusChecker(pool *db.Pool, repo *storage.Repository, logger *slog.Logger, cfg StatusCheckerConfig) *StatusChecker {
	if cfg.Interval <= 0 {
		cfg.Interval = 8 * time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 2 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &StatusChecker{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		interval:  cfg.Interval,
		grace:     cfg.Grace,
		batchSize: cfg.BatchSize,
	}
}

func (c *StatusChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.processBatch(ctx); err != nil {
				c.logger.Error("status check batch failed", "err", err)
			}
		}
	}
}

func (c *StatusChecker) processBatch(ctx context.Context) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	overdue, err := c.repo.FetchOverdue(ctx, tx, c.grace, c.batchSize)
	if err != nil {
		return err
	}
	if len(overdue) == 0 {
		return tx.Commit(ctx)
	}

	completed := 0
	for _, l := range overdue {
		// Same transition rules as the dashboard; a row that moved under
		// our feet is skipped, not forced.
		if err := lessons.ValidateTransition(l.Status, lessons.StatusCompleted, lessons.RoleAdmin); err != nil {
			c.logger.Warn("auto-complete skipped", "lesson_id", l.ID, "status", l.Status, "err", err)
			continue
		}
		if err := c.repo.SetStatus(ctx, tx, l.ID, lessons.StatusCompleted); err != nil {
			return err
		}
		completed++
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	if completed > 0 {
		c.logger.Info("lessons auto-completed", "count", completed)
	}
	return nil
}
