package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lessondesk/lessondesk/libs/lessons"
	"github.com/lessondesk/lessondesk/libs/outbox"
	"github.com/lessondesk/lessondesk/services/lesson-service/internal/model"
)

type fakeTx struct {
	pgx.Tx
	commits   int
	rollbacks int
}

func (t *fakeTx) Commit(context.Context) error   { t.commits++; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rollbacks++; return nil }

type statusUpdate struct {
	id          int64
	status      lessons.Status
	cancelledBy *int64
	reason      string
}

type fakeStore struct {
	lesson  model.Lesson
	getErr  error
	tx      *fakeTx
	updates []statusUpdate
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) { return s.tx, nil }

func (s *fakeStore) GetForUpdate(context.Context, pgx.Tx, int64) (model.Lesson, error) {
	if s.getErr != nil {
		return model.Lesson{}, s.getErr
	}
	return s.lesson, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, _ pgx.Tx, id int64, st lessons.Status, cancelledBy *int64, reason string) error {
	s.updates = append(s.updates, statusUpdate{id: id, status: st, cancelledBy: cancelledBy, reason: reason})
	return nil
}

type fakeOutbox struct {
	events []outbox.Event
}

func (o *fakeOutbox) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	o.events = append(o.events, evt)
	return nil
}

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func testLesson(scheduledAt time.Time) model.Lesson {
	return model.Lesson{
		ID:              42,
		StudentID:       7,
		TutorID:         3,
		StudentName:     "Jan Kowalski",
		StudentEmail:    "jan@example.com",
		TutorName:       "Maria Nowak",
		TutorEmail:      "maria@example.com",
		ScheduledAt:     scheduledAt,
		DurationMinutes: 60,
		Status:          lessons.StatusScheduled,
	}
}

func newTestEngine(lesson model.Lesson) (*Engine, *fakeStore, *fakeOutbox) {
	store := &fakeStore{lesson: lesson, tx: &fakeTx{}}
	events := &fakeOutbox{}
	engine := NewEngine(store, events, slog.Default())
	engine.now = func() time.Time { return testNow }
	return engine, store, events
}

func TestTransition_SameStatusIsNoOp(t *testing.T) {
	engine, store, events := newTestEngine(testLesson(testNow.Add(24 * time.Hour)))

	got, err := engine.Transition(context.Background(), 42, lessons.StatusScheduled, Actor{ID: 7, Role: lessons.RoleStudent}, "")
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	if got.Status != lessons.StatusScheduled {
		t.Fatalf("status = %q, want unchanged", got.Status)
	}
	if len(store.updates) != 0 {
		t.Fatalf("updates = %+v, want none", store.updates)
	}
	if len(events.events) != 0 {
		t.Fatalf("events = %+v, want none", events.events)
	}
	if store.tx.commits != 0 {
		t.Fatalf("commits = %d, want none for a no-op", store.tx.commits)
	}
	if store.tx.rollbacks == 0 {
		t.Fatal("transaction never released")
	}
}

func TestTransition_UrgentCancellationFlagsEvent(t *testing.T) {
	engine, store, events := newTestEngine(testLesson(testNow.Add(2 * time.Hour)))

	got, err := engine.Transition(context.Background(), 42, lessons.StatusCancelled, Actor{ID: 7, Role: lessons.RoleStudent}, "choroba")
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	if len(store.updates) != 1 {
		t.Fatalf("updates = %+v, want exactly one", store.updates)
	}
	u := store.updates[0]
	if u.status != lessons.StatusCancelled || u.reason != "choroba" {
		t.Fatalf("update = %+v", u)
	}
	if u.cancelledBy == nil || *u.cancelledBy != 7 {
		t.Fatalf("cancelled_by = %v, want the acting student", u.cancelledBy)
	}
	if got.CancellationReason != "choroba" {
		t.Fatalf("reason on returned lesson = %q", got.CancellationReason)
	}

	if len(events.events) != 1 {
		t.Fatalf("events = %+v, want one cancellation event", events.events)
	}
	if events.events[0].EventType != lessons.EventLessonCancelled {
		t.Fatalf("event type = %q", events.events[0].EventType)
	}
	var evt lessons.CancelledEvent
	if err := json.Unmarshal(events.events[0].Payload, &evt); err != nil {
		t.Fatalf("invalid event payload: %v", err)
	}
	if !evt.Urgent {
		t.Fatal("cancellation two hours out not flagged urgent")
	}
	if evt.CancelledBy != lessons.RoleStudent || evt.Reason != "choroba" {
		t.Fatalf("event = %+v", evt)
	}
	if store.tx.commits != 1 {
		t.Fatalf("commits = %d, want 1", store.tx.commits)
	}
}

func TestTransition_DistantCancellationNotUrgent(t *testing.T) {
	engine, _, events := newTestEngine(testLesson(testNow.Add(48 * time.Hour)))

	_, err := engine.Transition(context.Background(), 42, lessons.StatusCancelled, Actor{ID: 3, Role: lessons.RoleTutor}, "")
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	var evt lessons.CancelledEvent
	if err := json.Unmarshal(events.events[0].Payload, &evt); err != nil {
		t.Fatalf("invalid event payload: %v", err)
	}
	if evt.Urgent {
		t.Fatal("cancellation two days out flagged urgent")
	}
}

func TestTransition_CompletionClearsReasonAndEmitsNothing(t *testing.T) {
	lesson := testLesson(testNow.Add(-2 * time.Hour))
	lesson.Status = lessons.StatusInProgress
	engine, store, events := newTestEngine(lesson)

	_, err := engine.Transition(context.Background(), 42, lessons.StatusCompleted, Actor{ID: 3, Role: lessons.RoleTutor}, "notatka")
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	u := store.updates[0]
	if u.reason != "" || u.cancelledBy != nil {
		t.Fatalf("completion stored cancellation fields: %+v", u)
	}
	if len(events.events) != 0 {
		t.Fatalf("events = %+v, want none for completion", events.events)
	}
}

func TestTransition_NonParticipantForbidden(t *testing.T) {
	engine, store, _ := newTestEngine(testLesson(testNow.Add(24 * time.Hour)))

	_, err := engine.Transition(context.Background(), 42, lessons.StatusCancelled, Actor{ID: 99, Role: lessons.RoleStudent}, "")
	if !errors.Is(err, lessons.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if len(store.updates) != 0 {
		t.Fatalf("updates = %+v, want none", store.updates)
	}
}

func TestTransition_MissingLessonMapsToNotFound(t *testing.T) {
	engine, store, _ := newTestEngine(model.Lesson{})
	store.getErr = pgx.ErrNoRows

	_, err := engine.Transition(context.Background(), 42, lessons.StatusCancelled, Actor{ID: 7, Role: lessons.RoleStudent}, "")
	if !errors.Is(err, lessons.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
