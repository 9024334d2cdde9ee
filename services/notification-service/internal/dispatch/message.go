package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lessondesk/lessondesk/libs/lessons"
	"github.com/lessondesk/lessondesk/services/notification-service/internal/email"
)

// Message is one email the dispatcher should deliver, plus the fields the
// notifications audit table wants.
type Message struct {
	EventType     string
	LessonID      int64
	RecipientType string
	Recipient     string
	Email         email.Message
}

// Builder turns lesson events into outgoing messages. It is pure so the
// recipient and wording rules are testable without Kafka or SMTP.
type Builder struct {
	AdminEmail string
}

// Build maps an event to zero or more messages. Unknown event types and
// payloads it cannot decode produce no messages and no error; the caller
// logs and moves on rather than retrying a poison message.
func (b Builder) Build(eventType string, payload []byte) []Message {
	switch eventType {
	case lessons.EventLessonBooked:
		var evt lessons.BookedEvent
		if json.Unmarshal(payload, &evt) != nil {
			return nil
		}
		return b.booked(evt)
	case lessons.EventLessonCancelled:
		var evt lessons.CancelledEvent
		if json.Unmarshal(payload, &evt) != nil {
			return nil
		}
		return b.cancelled(evt)
	case lessons.EventRoomCreate:
		var evt lessons.RoomCreateEvent
		if json.Unmarshal(payload, &evt) != nil {
			return nil
		}
		return b.roomCreate(evt)
	case lessons.EventRoomAvailable:
		var evt lessons.RoomAvailableEvent
		if json.Unmarshal(payload, &evt) != nil {
			return nil
		}
		return b.roomAvailable(evt)
	case lessons.EventAvailabilityDigest:
		var evt lessons.AvailabilityDigestEvent
		if json.Unmarshal(payload, &evt) != nil {
			return nil
		}
		return b.digest(evt)
	default:
		return nil
	}
}

func (b Builder) booked(evt lessons.BookedEvent) []Message {
	when := formatWhen(evt.ScheduledAt)
	return []Message{
		{
			EventType:     lessons.EventLessonBooked,
			LessonID:      evt.LessonID,
			RecipientType: "student",
			Recipient:     evt.StudentEmail,
			Email: email.Message{
				To:      evt.StudentEmail,
				Subject: "Potwierdzenie rezerwacji lekcji",
				Body:    fmt.Sprintf("Twoja lekcja z lektorem %s została zaplanowana na %s.", evt.TutorName, when),
			},
		},
		{
			EventType:     lessons.EventLessonBooked,
			LessonID:      evt.LessonID,
			RecipientType: "tutor",
			Recipient:     evt.TutorEmail,
			Email: email.Message{
				To:      evt.TutorEmail,
				Subject: "Nowa rezerwacja lekcji",
				Body:    fmt.Sprintf("Student %s zarezerwował lekcję na %s.", evt.StudentName, when),
			},
		},
	}
}

func (b Builder) cancelled(evt lessons.CancelledEvent) []Message {
	when := formatWhen(evt.ScheduledAt)
	subject := "Lekcja odwołana"
	if evt.Urgent {
		subject = "PILNE: " + subject
	}

	body := func(line string) string {
		var sb strings.Builder
		sb.WriteString(line)
		if evt.Urgent {
			sb.WriteString("\nLekcja miała odbyć się za mniej niż 12 godzin.")
		}
		if reason := strings.TrimSpace(evt.Reason); reason != "" {
			sb.WriteString("\nPowód: ")
			sb.WriteString(reason)
		}
		return sb.String()
	}

	toTutor := Message{
		EventType:     lessons.EventLessonCancelled,
		LessonID:      evt.LessonID,
		RecipientType: "tutor",
		Recipient:     evt.TutorEmail,
		Email: email.Message{
			To:           evt.TutorEmail,
			Subject:      subject,
			Body:         body(fmt.Sprintf("Student %s odwołał lekcję zaplanowaną na %s.", evt.StudentName, when)),
			HighPriority: evt.Urgent,
		},
	}
	toStudent := Message{
		EventType:     lessons.EventLessonCancelled,
		LessonID:      evt.LessonID,
		RecipientType: "student",
		Recipient:     evt.StudentEmail,
		Email: email.Message{
			To:           evt.StudentEmail,
			Subject:      subject,
			Body:         body(fmt.Sprintf("Lektor %s odwołał lekcję zaplanowaną na %s.", evt.TutorName, when)),
			HighPriority: evt.Urgent,
		},
	}

	// The cancelling party already knows; notify the other side. An admin
	// cancellation informs both.
	switch evt.CancelledBy {
	case lessons.RoleStudent:
		return []Message{toTutor}
	case lessons.RoleTutor:
		return []Message{toStudent}
	default:
		line := fmt.Sprintf("Lekcja zaplanowana na %s została odwołana przez administratora.", when)
		toStudent.Email.Body = body(line)
		toTutor.Email.Body = body(line)
		return []Message{toStudent, toTutor}
	}
}

func (b Builder) roomCreate(evt lessons.RoomCreateEvent) []Message {
	when := formatWhen(evt.ScheduledAt)
	return []Message{{
		EventType:     lessons.EventRoomCreate,
		LessonID:      evt.LessonID,
		RecipientType: "tutor",
		Recipient:     evt.TutorEmail,
		Email: email.Message{
			To:      evt.TutorEmail,
			Subject: "Utwórz pokój do lekcji",
			Body: fmt.Sprintf("Lekcja ze studentem %s zaczyna się o %s i nie ma jeszcze pokoju spotkania.\nUtwórz pokój w panelu: %s",
				evt.StudentName, when, evt.DashboardURL),
			HighPriority: true,
		},
	}}
}

func (b Builder) roomAvailable(evt lessons.RoomAvailableEvent) []Message {
	when := formatWhen(evt.ScheduledAt)
	return []Message{{
		EventType:     lessons.EventRoomAvailable,
		LessonID:      evt.LessonID,
		RecipientType: "student",
		Recipient:     evt.StudentEmail,
		Email: email.Message{
			To:      evt.StudentEmail,
			Subject: "Pokój do lekcji jest gotowy",
			Body: fmt.Sprintf("Twoja lekcja z lektorem %s zaczyna się o %s.\nDołącz do pokoju: %s",
				evt.TutorName, when, evt.MeetingURL),
			HighPriority: true,
		},
	}}
}

func (b Builder) digest(evt lessons.AvailabilityDigestEvent) []Message {
	if b.AdminEmail == "" {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Dostępność lektorów w miesiącu %s:\n", evt.Month)
	for _, th := range evt.Tutors {
		fmt.Fprintf(&sb, "- %s: %.1f h/tydzień\n", th.TutorName, th.WeeklyHours)
	}
	if len(evt.LowTutors) > 0 {
		fmt.Fprintf(&sb, "\nLektorzy poniżej %.0f h/tydzień:\n", evt.ThresholdHours)
		for _, th := range evt.LowTutors {
			fmt.Fprintf(&sb, "- %s: %.1f h/tydzień\n", th.TutorName, th.WeeklyHours)
		}
	}

	return []Message{{
		EventType:     lessons.EventAvailabilityDigest,
		RecipientType: "admin",
		Recipient:     b.AdminEmail,
		Email: email.Message{
			To:      b.AdminEmail,
			Subject: fmt.Sprintf("Zestawienie dostępności lektorów %s", evt.Month),
			Body:    sb.String(),
		},
	}}
}

var warsaw = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		return time.UTC
	}
	return loc
}()

func formatWhen(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.In(warsaw).Format("02.01.2006 15:04")
}
