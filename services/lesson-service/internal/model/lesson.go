package model

import (
	"time"

	"github.com/lessondesk/lessondesk/libs/lessons"
)

// Lesson is a scheduled tutoring session between one student and one tutor.
// Rows are never deleted; cancelled lessons stay on record.
type Lesson struct {
	ID                 int64
	StudentID          int64
	TutorID            int64
	StudentName        string
	StudentEmail       string
	TutorName          string
	TutorEmail         string
	ScheduledAt        time.Time
	DurationMinutes    int
	Status             lessons.Status
	CancelledBy        *int64
	CancellationReason string
	MeetingURL         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ScheduledEnd is the nominal end of the session.
func (l *Lesson) ScheduledEnd() time.Time {
	return l.ScheduledAt.Add(time.Duration(l.DurationMinutes) * time.Minute)
}

// Snapshot builds the event payload view of the lesson.
func (l *Lesson) Snapshot() lessons.Snapshot {
	return lessons.Snapshot{
		LessonID:     l.ID,
		StudentName:  l.StudentName,
		StudentEmail: l.StudentEmail,
		TutorName:    l.TutorName,
		TutorEmail:   l.TutorEmail,
		ScheduledAt:  l.ScheduledAt.UTC().Format(time.RFC3339),
	}
}
