package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lessondesk/lessondesk/libs/db"
	"github.com/lessondesk/lessondesk/services/scheduler-service/internal/storage"
)

// SessionReaper logs everyone out once per day: revokes all refresh tokens
// and clears the dashboard session keys in Redis. The job_runs claim keeps
// the sweep to one run per calendar day.
type SessionReaper struct {
	pool     *db.Pool
	repo     *storage.Repository
	rdb      *redis.Client
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

const (
	reaperJobName    = "mass_logout"
	sessionKeyMatch  = "session:*"
	sessionScanCount = 500
)

func NewSessionReaper(pool *db.Pool, repo *storage.Repository, rdb *redis.Client, logger *slog.Logger, interval time.Duration) *SessionReaper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SessionReaper{
		pool:     pool,
		repo:     repo,
		rdb:      rdb,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

func (s *SessionReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runOnce(ctx); err != nil {
				s.logger.Error("mass logout failed", "err", err)
			}
		}
	}
}

func (s *SessionReaper) runOnce(ctx context.Context) error {
	day := s.now().UTC().Format("2006-01-02")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	claimed, err := s.repo.ClaimRun(ctx, tx, reaperJobName, day)
	if err != nil {
		return err
	}
	if !claimed {
		return tx.Commit(ctx)
	}

	revoked, err := s.repo.RevokeAllRefreshTokens(ctx, tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	deleted, err := s.clearSessions(ctx)
	if err != nil {
		// Tokens are already revoked, so stale Redis sessions cannot be
		// refreshed; log and move on.
		s.logger.Error("session key sweep failed", "err", err)
	}

	s.logger.Info("mass logout completed", "day", day, "tokens_revoked", revoked, "sessions_deleted", deleted)
	return nil
}

func (s *SessionReaper) clearSessions(ctx context.Context) (int64, error) {
	if s.rdb == nil {
		return 0, nil
	}

	var deleted int64
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, sessionKeyMatch, sessionScanCount).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			deleted += n
			if err != nil {
				return deleted, err
			}
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
