package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lessondesk/lessondesk/libs/db"
	"github.com/lessondesk/lessondesk/libs/lessons"
)

// Repository holds the queries the background jobs run. All lesson scans
// lock with SKIP LOCKED so concurrent scheduler replicas never double-process
// a row.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

type OverdueLesson struct {
	ID     int64
	Status lessons.Status
}

// FetchOverdue returns open lessons whose scheduled end passed more than
// grace ago.
func (r *Repository) FetchOverdue(ctx context.Context, tx pgx.Tx, grace time.Duration, limit int) ([]OverdueLesson, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, status
		FROM lessons
		WHERE status IN ('scheduled', 'in_progress')
		  AND scheduled_at + make_interval(mins => duration_minutes) + make_interval(secs => $1) < now()
		ORDER BY scheduled_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, grace.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overdue []OverdueLesson
	for rows.Next() {
		var o OverdueLesson
		if err := rows.Scan(&o.ID, &o.Status); err != nil {
			return nil, err
		}
		overdue = append(overdue, o)
	}
	return overdue, rows.Err()
}

func (r *Repository) SetStatus(ctx context.Context, tx pgx.Tx, lessonID int64, status lessons.Status) error {
	_, err := tx.Exec(ctx, `
		UPDATE lessons
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, lessonID, status)
	return err
}

// RoomLesson is the slice of a lesson the room notifier needs to build an
// event payload.
type RoomLesson struct {
	ID           int64
	StudentName  string
	StudentEmail string
	TutorName    string
	TutorEmail   string
	ScheduledAt  time.Time
	MeetingURL   string
}

func (l *RoomLesson) Snapshot() lessons.Snapshot {
	return lessons.Snapshot{
		LessonID:     l.ID,
		StudentName:  l.StudentName,
		StudentEmail: l.StudentEmail,
		TutorName:    l.TutorName,
		TutorEmail:   l.TutorEmail,
		ScheduledAt:  l.ScheduledAt.UTC().Format(time.RFC3339),
	}
}

const roomLessonSelect = `
	SELECT l.id, s.name, s.email, t.name, t.email, l.scheduled_at, COALESCE(l.meeting_url, '')
	FROM lessons l
	JOIN users s ON s.id = l.student_id
	JOIN users t ON t.id = l.tutor_id
`

// FetchRoomCreatePending returns lessons starting within the join window
// whose tutor has not yet been asked to create a meeting room.
func (r *Repository) FetchRoomCreatePending(ctx context.Context, tx pgx.Tx, window time.Duration, limit int) ([]RoomLesson, error) {
	rows, err := tx.Query(ctx, roomLessonSelect+`
		WHERE l.status = 'scheduled'
		  AND COALESCE(l.meeting_url, '') = ''
		  AND l.tutor_room_notified_at IS NULL
		  AND l.scheduled_at <= now() + make_interval(secs => $1)
		  AND l.scheduled_at + make_interval(mins => l.duration_minutes) > now()
		ORDER BY l.scheduled_at
		LIMIT $2
		FOR UPDATE OF l SKIP LOCKED
	`, window.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoomLessons(rows)
}

// FetchRoomAvailablePending returns lessons inside the join window that have
// a meeting room the student has not been told about yet.
func (r *Repository) FetchRoomAvailablePending(ctx context.Context, tx pgx.Tx, window time.Duration, limit int) ([]RoomLesson, error) {
	rows, err := tx.Query(ctx, roomLessonSelect+`
		WHERE l.status IN ('scheduled', 'in_progress')
		  AND COALESCE(l.meeting_url, '') <> ''
		  AND l.student_room_notified_at IS NULL
		  AND l.scheduled_at <= now() + make_interval(secs => $1)
		  AND l.scheduled_at + make_interval(mins => l.duration_minutes) > now()
		ORDER BY l.scheduled_at
		LIMIT $2
		FOR UPDATE OF l SKIP LOCKED
	`, window.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoomLessons(rows)
}

func collectRoomLessons(rows pgx.Rows) ([]RoomLesson, error) {
	var list []RoomLesson
	for rows.Next() {
		var l RoomLesson
		if err := rows.Scan(&l.ID, &l.StudentName, &l.StudentEmail, &l.TutorName, &l.TutorEmail, &l.ScheduledAt, &l.MeetingURL); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

func (r *Repository) MarkTutorRoomNotified(ctx context.Context, tx pgx.Tx, lessonID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE lessons SET tutor_room_notified_at = now() WHERE id = $1
	`, lessonID)
	return err
}

func (r *Repository) MarkStudentRoomNotified(ctx context.Context, tx pgx.Tx, lessonID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE lessons SET student_room_notified_at = now() WHERE id = $1
	`, lessonID)
	return err
}

// WeeklyTutorHours sums declared recurring availability per tutor, in hours
// per week. Tutors with no availability rows come back with zero.
func (r *Repository) WeeklyTutorHours(ctx context.Context) ([]lessons.TutorHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.name,
		       COALESCE(SUM(EXTRACT(EPOCH FROM (a.end_time - a.start_time))) / 3600, 0)
		FROM users t
		LEFT JOIN tutor_availability a ON a.tutor_id = t.id
		WHERE t.role = 'tutor'
		GROUP BY t.id, t.name
		ORDER BY 3, t.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []lessons.TutorHours
	for rows.Next() {
		var th lessons.TutorHours
		if err := rows.Scan(&th.TutorID, &th.TutorName, &th.WeeklyHours); err != nil {
			return nil, err
		}
		hours = append(hours, th)
	}
	return hours, rows.Err()
}

// ClaimRun records that jobName ran for periodKey. It returns false when the
// period was already claimed, by this instance or another.
func (r *Repository) ClaimRun(ctx context.Context, tx pgx.Tx, jobName string, periodKey string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO job_runs (job_name, period_key)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, jobName, periodKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeAllRefreshTokens invalidates every live refresh token.
func (r *Repository) RevokeAllRefreshTokens(ctx context.Context, tx pgx.Tx) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = now()
		WHERE revoked_at IS NULL
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
