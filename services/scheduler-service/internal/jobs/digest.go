package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lessondesk/lessondesk/libs/db"
	"github.com/lessondesk/lessondesk/libs/lessons"
	"github.com/lessondesk/lessondesk/libs/outbox"
	"github.com/lessondesk/lessondesk/services/scheduler-service/internal/storage"
)

// AvailabilityDigest emits one summary of tutor availability per calendar
// month. The ticker fires often; the job_runs claim makes sure only the
// first tick of a month across all replicas produces the digest.
type AvailabilityDigest struct {
	pool      *db.Pool
	repo      *storage.Repository
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	threshold float64
	now       func() time.Time
}

type AvailabilityDigestConfig struct {
	Interval       time.Duration
	ThresholdHours float64
}

const digestJobName = "availability_digest"

func NewAvailabilityDigest(pool *db.Pool, repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg AvailabilityDigestConfig) *AvailabilityDigest {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Hour
	}
	if cfg.ThresholdHours <= 0 {
		cfg.ThresholdHours = 10
	}
	return &AvailabilityDigest{
		pool:      pool,
		repo:      repo,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		threshold: cfg.ThresholdHours,
		now:       time.Now,
	}
}

func (d *AvailabilityDigest) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.runOnce(ctx); err != nil {
				d.logger.Error("availability digest failed", "err", err)
			}
		}
	}
}

func (d *AvailabilityDigest) runOnce(ctx context.Context) error {
	month := d.now().UTC().Format("2006-01")

	hours, err := d.repo.WeeklyTutorHours(ctx)
	if err != nil {
		return err
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	claimed, err := d.repo.ClaimRun(ctx, tx, digestJobName, month)
	if err != nil {
		return err
	}
	if !claimed {
		return tx.Commit(ctx)
	}

	event := buildDigestEvent(month, hours, d.threshold)
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := d.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "availability",
		AggregateID:   month,
		EventType:     lessons.EventAvailabilityDigest,
		Payload:       payload,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	d.logger.Info("availability digest enqueued",
		"month", month, "tutors", len(event.Tutors), "low_tutors", len(event.LowTutors))
	return nil
}

func buildDigestEvent(month string, hours []lessons.TutorHours, threshold float64) lessons.AvailabilityDigestEvent {
	event := lessons.AvailabilityDigestEvent{
		Month:          month,
		Tutors:         hours,
		ThresholdHours: threshold,
	}
	for _, th := range hours {
		if th.WeeklyHours < threshold {
			event.LowTutors = append(event.LowTutors, th)
		}
	}
	return event
}
