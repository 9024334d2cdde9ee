package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lessondesk/lessondesk/libs/db"
	"github.com/lessondesk/lessondesk/libs/lessons"
	"github.com/lessondesk/lessondesk/services/lesson-service/internal/model"
)

const lessonColumns = `
	l.id, l.student_id, l.tutor_id,
	s.name, s.email, t.name, t.email,
	l.scheduled_at, l.duration_minutes, l.status,
	l.cancelled_by, COALESCE(l.cancellation_reason, ''), COALESCE(l.meeting_url, ''),
	l.created_at, l.updated_at`

type LessonRepository struct {
	pool *db.Pool
}

func NewLessonRepository(pool *db.Pool) *LessonRepository {
	return &LessonRepository{pool: pool}
}

func (r *LessonRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func scanLesson(row pgx.Row) (model.Lesson, error) {
	var l model.Lesson
	var status string
	err := row.Scan(
		&l.ID, &l.StudentID, &l.TutorID,
		&l.StudentName, &l.StudentEmail, &l.TutorName, &l.TutorEmail,
		&l.ScheduledAt, &l.DurationMinutes, &status,
		&l.CancelledBy, &l.CancellationReason, &l.MeetingURL,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return model.Lesson{}, err
	}
	l.Status = lessons.Status(status)
	return l, nil
}

// GetForUpdate loads the lesson row with a row lock so concurrent transitions
// on the same lesson serialize.
func (r *LessonRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (model.Lesson, error) {
	// The user join happens outside the lock; only the lessons row is locked.
	var l model.Lesson
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id, student_id, tutor_id, scheduled_at, duration_minutes, status,
			cancelled_by, COALESCE(cancellation_reason, ''), COALESCE(meeting_url, ''),
			created_at, updated_at
		FROM lessons
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&l.ID, &l.StudentID, &l.TutorID, &l.ScheduledAt, &l.DurationMinutes, &status,
		&l.CancelledBy, &l.CancellationReason, &l.MeetingURL,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return model.Lesson{}, err
	}
	l.Status = lessons.Status(status)

	err = tx.QueryRow(ctx, `
		SELECT s.name, s.email, t.name, t.email
		FROM users s, users t
		WHERE s.id = $1 AND t.id = $2
	`, l.StudentID, l.TutorID).Scan(&l.StudentName, &l.StudentEmail, &l.TutorName, &l.TutorEmail)
	if err != nil {
		return model.Lesson{}, err
	}
	return l, nil
}

// UpdateStatus persists the new status together with the cancellation fields
// in one statement, so status and reason can never diverge.
func (r *LessonRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status lessons.Status, cancelledBy *int64, reason string) error {
	var reasonVal *string
	if reason != "" {
		reasonVal = &reason
	}
	tag, err := tx.Exec(ctx, `
		UPDATE lessons
		SET status = $2,
			cancelled_by = $3,
			cancellation_reason = $4,
			updated_at = now()
		WHERE id = $1
	`, id, string(status), cancelledBy, reasonVal)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *LessonRepository) Create(ctx context.Context, tx pgx.Tx, studentID, tutorID int64, scheduledAt time.Time, durationMinutes int) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO lessons (student_id, tutor_id, scheduled_at, duration_minutes, status)
		VALUES ($1, $2, $3, $4, 'scheduled')
		RETURNING id
	`, studentID, tutorID, scheduledAt, durationMinutes).Scan(&id)
	return id, err
}

func (r *LessonRepository) Get(ctx context.Context, tx pgx.Tx, id int64) (model.Lesson, error) {
	return scanLesson(tx.QueryRow(ctx, `
		SELECT `+lessonColumns+`
		FROM lessons l
		JOIN users s ON s.id = l.student_id
		JOIN users t ON t.id = l.tutor_id
		WHERE l.id = $1
	`, id))
}

// ListForParticipant returns lessons where the user is the student or tutor,
// newest first.
func (r *LessonRepository) ListForParticipant(ctx context.Context, userID int64, limit int) ([]model.Lesson, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+lessonColumns+`
		FROM lessons l
		JOIN users s ON s.id = l.student_id
		JOIN users t ON t.id = l.tutor_id
		WHERE l.student_id = $1 OR l.tutor_id = $1
		ORDER BY l.scheduled_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLessons(rows)
}

func (r *LessonRepository) ListAll(ctx context.Context, limit int) ([]model.Lesson, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+lessonColumns+`
		FROM lessons l
		JOIN users s ON s.id = l.student_id
		JOIN users t ON t.id = l.tutor_id
		ORDER BY l.scheduled_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLessons(rows)
}

func (r *LessonRepository) SetMeetingURL(ctx context.Context, tx pgx.Tx, id int64, url string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE lessons
		SET meeting_url = $2,
			updated_at = now()
		WHERE id = $1
	`, id, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func collectLessons(rows pgx.Rows) ([]model.Lesson, error) {
	var out []model.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
