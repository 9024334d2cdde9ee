package lessons

// Event types double as Kafka topic names (event per topic, like the rest of
// the platform).
const (
	EventLessonBooked       = "lesson.booked.v1"
	EventLessonCancelled    = "lesson.cancelled.v1"
	EventRoomAvailable      = "lesson.room.available.v1"
	EventRoomCreate         = "lesson.room.create.v1"
	EventAvailabilityDigest = "lesson.availability.digest.v1"
)

// Snapshot is the lesson view embedded in every event payload so the
// notification side never has to query the lessons table.
type Snapshot struct {
	LessonID     int64  `json:"lesson_id"`
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
	TutorName    string `json:"tutor_name"`
	TutorEmail   string `json:"tutor_email"`
	ScheduledAt  string `json:"scheduled_at"` // RFC 3339
}

type BookedEvent struct {
	Snapshot
}

type CancelledEvent struct {
	Snapshot
	CancelledBy Role   `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
	Urgent      bool   `json:"urgent"`
}

type RoomAvailableEvent struct {
	Snapshot
	MeetingURL string `json:"meeting_url"`
}

type RoomCreateEvent struct {
	Snapshot
	DashboardURL string `json:"dashboard_url"`
}

// TutorHours is one row of the monthly availability digest.
type TutorHours struct {
	TutorID     int64   `json:"tutor_id"`
	TutorName   string  `json:"tutor_name"`
	WeeklyHours float64 `json:"weekly_hours"`
}

type AvailabilityDigestEvent struct {
	Month          string       `json:"month"` // YYYY-MM
	Tutors         []TutorHours `json:"tutors"`
	LowTutors      []TutorHours `json:"low_tutors"`
	ThresholdHours float64      `json:"threshold_hours"`
}
