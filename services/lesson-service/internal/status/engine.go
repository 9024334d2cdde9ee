package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lessondesk/lessondesk/libs/lessons"
	"github.com/lessondesk/lessondesk/libs/outbox"
	"github.com/lessondesk/lessondesk/services/lesson-service/internal/model"
	"github.com/lessondesk/lessondesk/services/lesson-service/internal/storage"
)

// Actor is whoever requests a transition: a dashboard user or the background
// checker (which acts with admin rights and ID 0).
type Actor struct {
	ID   int64
	Role lessons.Role
}

// LessonStore is the slice of the lesson repository the engine needs.
type LessonStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (model.Lesson, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status lessons.Status, cancelledBy *int64, reason string) error
}

// EventStore writes outbox events inside the engine's transaction.
type EventStore interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Engine validates and applies lesson status changes. Every write in this
// service goes through it; the scheduler's auto-completion runs in its own
// service but applies the same shared transition rules.
type Engine struct {
	repo   LessonStore
	outbox EventStore
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(repo LessonStore, outboxRepo EventStore, logger *slog.Logger) *Engine {
	return &Engine{
		repo:   repo,
		outbox: outboxRepo,
		logger: logger,
		now:    time.Now,
	}
}

// Transition moves a lesson to the requested status on behalf of actor.
// The row is locked for the duration of the transaction; the cancellation
// event is written to the outbox in the same transaction, so a failed commit
// leaves neither a half-applied status nor an orphaned event. Requesting the
// current status is a no-op and emits nothing.
func (e *Engine) Transition(ctx context.Context, lessonID int64, requested lessons.Status, actor Actor, reason string) (model.Lesson, error) {
	if !requested.Known() {
		return model.Lesson{}, fmt.Errorf("%w: unknown status %q", lessons.ErrInvalidStatus, requested)
	}

	tx, err := e.repo.Begin(ctx)
	if err != nil {
		return model.Lesson{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lesson, err := e.repo.GetForUpdate(ctx, tx, lessonID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Lesson{}, lessons.ErrNotFound
		}
		return model.Lesson{}, err
	}

	if lesson.Status == requested {
		return lesson, nil
	}

	// Students and tutors may only act on their own lessons; admins and the
	// background checker (ID 0) act on any.
	switch actor.Role {
	case lessons.RoleStudent:
		if lesson.StudentID != actor.ID {
			return model.Lesson{}, lessons.ErrForbidden
		}
	case lessons.RoleTutor:
		if lesson.TutorID != actor.ID {
			return model.Lesson{}, lessons.ErrForbidden
		}
	}

	if err := lessons.ValidateTransition(lesson.Status, requested, actor.Role); err != nil {
		return model.Lesson{}, err
	}

	var cancelledBy *int64
	if lessons.RecordsCancellation(requested) && actor.ID > 0 {
		id := actor.ID
		cancelledBy = &id
	}
	if !lessons.RecordsCancellation(requested) {
		reason = ""
	}

	if err := e.repo.UpdateStatus(ctx, tx, lessonID, requested, cancelledBy, reason); err != nil {
		return model.Lesson{}, err
	}

	urgent := false
	if requested == lessons.StatusCancelled {
		urgent = lessons.IsUrgent(lesson.ScheduledAt, e.now())
		evt := lessons.CancelledEvent{
			Snapshot:    lesson.Snapshot(),
			CancelledBy: actor.Role,
			Reason:      reason,
			Urgent:      urgent,
		}
		payload, err := json.Marshal(evt)
		if err != nil {
			return model.Lesson{}, err
		}
		if err := e.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "lesson",
			AggregateID:   fmt.Sprintf("%d", lessonID),
			EventType:     lessons.EventLessonCancelled,
			Payload:       payload,
		}); err != nil {
			return model.Lesson{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Lesson{}, err
	}

	lesson.Status = requested
	lesson.CancelledBy = cancelledBy
	lesson.CancellationReason = reason

	e.logger.Info("lesson status changed",
		"lesson_id", lessonID,
		"status", string(requested),
		"actor_id", actor.ID,
		"actor_role", string(actor.Role),
		"urgent", urgent,
	)
	return lesson, nil
}
