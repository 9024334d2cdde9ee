package storage

import (
	"context"

	"github.com/lessondesk/lessondesk/libs/db"
)

// Notification is one row of the delivery audit log. Every message the
// dispatcher handles lands here, whether it was sent, failed, or suppressed
// as a duplicate.
type Notification struct {
	Type          string
	LessonID      int64
	RecipientType string
	Recipient     string
	Subject       string
	Status        string
}

const (
	StatusSent       = "sent"
	StatusFailed     = "failed"
	StatusSuppressed = "suppressed"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	var lessonID *int64
	if n.LessonID > 0 {
		lessonID = &n.LessonID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (type, lesson_id, recipient_type, recipient, subject, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.Type, lessonID, n.RecipientType, n.Recipient, n.Subject, n.Status)
	return err
}
