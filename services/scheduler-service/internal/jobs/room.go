package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lessondesk/lessondesk/libs/db"
	"github.com/lessondesk/lessondesk/libs/lessons"
	"github.com/lessondesk/lessondesk/libs/outbox"
	"github.com/lessondesk/lessondesk/services/scheduler-service/internal/storage"
)

// RoomNotifier watches lessons entering the join window. Tutors of lessons
// without a meeting room get a "create the room" prompt; once the room link
// is set, the student gets the join link. Each side is notified at most once
// per lesson.
type RoomNotifier struct {
	pool         *db.Pool
	repo         *storage.Repository
	outbox       *outbox.Repository
	logger       *slog.Logger
	interval     time.Duration
	window       time.Duration
	batchSize    int
	dashboardURL string
}

type RoomNotifierConfig struct {
	Interval     time.Duration
	Window       time.Duration
	BatchSize    int
	DashboardURL string
}

func NewRoomNotifier(pool *db.Pool, repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg RoomNotifierConfig) *RoomNotifier {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &RoomNotifier{
		pool:         pool,
		repo:         repo,
		outbox:       outboxRepo,
		logger:       logger,
		interval:     cfg.Interval,
		window:       cfg.Window,
		batchSize:    cfg.BatchSize,
		dashboardURL: cfg.DashboardURL,
	}
}

func (n *RoomNotifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := n.processBatch(ctx); err != nil {
				n.logger.Error("room notify batch failed", "err", err)
			}
		}
	}
}

func (n *RoomNotifier) processBatch(ctx context.Context) error {
	tx, err := n.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pendingCreate, err := n.repo.FetchRoomCreatePending(ctx, tx, n.window, n.batchSize)
	if err != nil {
		return err
	}
	for _, l := range pendingCreate {
		if err := n.enqueueRoomCreate(ctx, tx, l); err != nil {
			return err
		}
		if err := n.repo.MarkTutorRoomNotified(ctx, tx, l.ID); err != nil {
			return err
		}
	}

	pendingAvailable, err := n.repo.FetchRoomAvailablePending(ctx, tx, n.window, n.batchSize)
	if err != nil {
		return err
	}
	for _, l := range pendingAvailable {
		if err := n.enqueueRoomAvailable(ctx, tx, l); err != nil {
			return err
		}
		if err := n.repo.MarkStudentRoomNotified(ctx, tx, l.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	if len(pendingCreate)+len(pendingAvailable) > 0 {
		n.logger.Info("room notifications enqueued",
			"room_create", len(pendingCreate), "room_available", len(pendingAvailable))
	}
	return nil
}

func (n *RoomNotifier) enqueueRoomCreate(ctx context.Context, tx pgx.Tx, l storage.RoomLesson) error {
	payload, err := json.Marshal(lessons.RoomCreateEvent{
		Snapshot:     l.Snapshot(),
		DashboardURL: n.dashboardURL,
	})
	if err != nil {
		return err
	}
	return n.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "lesson",
		AggregateID:   strconv.FormatInt(l.ID, 10),
		EventType:     lessons.EventRoomCreate,
		Payload:       payload,
	})
}

func (n *RoomNotifier) enqueueRoomAvailable(ctx context.Context, tx pgx.Tx, l storage.RoomLesson) error {
	payload, err := json.Marshal(lessons.RoomAvailableEvent{
		Snapshot:   l.Snapshot(),
		MeetingURL: l.MeetingURL,
	})
	if err != nil {
		return err
	}
	return n.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "lesson",
		AggregateID:   strconv.FormatInt(l.ID, 10),
		EventType:     lessons.EventRoomAvailable,
		Payload:       payload,
	})
}
