package dispatch

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/lessondesk/lessondesk/libs/lessons"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return raw
}

func snapshot() lessons.Snapshot {
	return lessons.Snapshot{
		LessonID:     42,
		StudentName:  "Jan Kowalski",
		StudentEmail: "jan@example.com",
		TutorName:    "Maria Nowak",
		TutorEmail:   "maria@example.com",
		ScheduledAt:  "2026-09-10T15:00:00Z",
	}
}

func TestBuild_BookedNotifiesBothSides(t *testing.T) {
	b := Builder{}
	payload := mustMarshal(t, lessons.BookedEvent{Snapshot: snapshot()})

	msgs := b.Build(lessons.EventLessonBooked, payload)

	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want student and tutor", len(msgs))
	}
	if msgs[0].Recipient != "jan@example.com" || msgs[0].Email.Subject != "Potwierdzenie rezerwacji lekcji" {
		t.Fatalf("student message = %+v", msgs[0])
	}
	if msgs[1].Recipient != "maria@example.com" || msgs[1].Email.Subject != "Nowa rezerwacja lekcji" {
		t.Fatalf("tutor message = %+v", msgs[1])
	}
	if msgs[0].LessonID != 42 {
		t.Fatalf("lesson id = %d, want 42", msgs[0].LessonID)
	}
}

func TestBuild_CancelledByStudentNotifiesTutorOnly(t *testing.T) {
	b := Builder{}
	payload := mustMarshal(t, lessons.CancelledEvent{
		Snapshot:    snapshot(),
		CancelledBy: lessons.RoleStudent,
		Reason:      "choroba",
	})

	msgs := b.Build(lessons.EventLessonCancelled, payload)

	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want only the tutor", len(msgs))
	}
	m := msgs[0]
	if m.RecipientType != "tutor" || m.Recipient != "maria@example.com" {
		t.Fatalf("recipient = %s %s, want the tutor", m.RecipientType, m.Recipient)
	}
	if m.Email.Subject != "Lekcja odwołana" {
		t.Fatalf("subject = %q, want no urgency prefix", m.Email.Subject)
	}
	if m.Email.HighPriority {
		t.Fatal("non-urgent cancellation flagged high priority")
	}
	if !strings.Contains(m.Email.Body, "Powód: choroba") {
		t.Fatalf("body misses reason: %q", m.Email.Body)
	}
}

func TestBuild_UrgentCancellationGetsPrefixAndPriority(t *testing.T) {
	b := Builder{}
	payload := mustMarshal(t, lessons.CancelledEvent{
		Snapshot:    snapshot(),
		CancelledBy: lessons.RoleTutor,
		Urgent:      true,
	})

	msgs := b.Build(lessons.EventLessonCancelled, payload)

	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want only the student", len(msgs))
	}
	m := msgs[0]
	if m.RecipientType != "student" {
		t.Fatalf("recipient type = %q, want student", m.RecipientType)
	}
	if m.Email.Subject != "PILNE: Lekcja odwołana" {
		t.Fatalf("subject = %q, want PILNE prefix", m.Email.Subject)
	}
	if !m.Email.HighPriority {
		t.Fatal("urgent cancellation not flagged high priority")
	}
}

func TestBuild_CancelledByAdminNotifiesBoth(t *testing.T) {
	b := Builder{}
	payload := mustMarshal(t, lessons.CancelledEvent{
		Snapshot:    snapshot(),
		CancelledBy: lessons.RoleAdmin,
	})

	msgs := b.Build(lessons.EventLessonCancelled, payload)

	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want both parties", len(msgs))
	}
	for _, m := range msgs {
		if !strings.Contains(m.Email.Body, "administratora") {
			t.Fatalf("body misses admin wording: %q", m.Email.Body)
		}
	}
}

func TestBuild_RoomEventsTargetTheRightParty(t *testing.T) {
	b := Builder{}

	create := b.Build(lessons.EventRoomCreate, mustMarshal(t, lessons.RoomCreateEvent{
		Snapshot:     snapshot(),
		DashboardURL: "https://app.lessondesk.pl",
	}))
	if len(create) != 1 || create[0].RecipientType != "tutor" {
		t.Fatalf("room create messages = %+v, want one to the tutor", create)
	}
	if !strings.Contains(create[0].Email.Body, "https://app.lessondesk.pl") {
		t.Fatalf("room create body misses dashboard link: %q", create[0].Email.Body)
	}

	available := b.Build(lessons.EventRoomAvailable, mustMarshal(t, lessons.RoomAvailableEvent{
		Snapshot:   snapshot(),
		MeetingURL: "https://meet.example.com/x",
	}))
	if len(available) != 1 || available[0].RecipientType != "student" {
		t.Fatalf("room available messages = %+v, want one to the student", available)
	}
	if !available[0].Email.HighPriority {
		t.Fatal("room available not flagged high priority")
	}
	if !strings.Contains(available[0].Email.Body, "https://meet.example.com/x") {
		t.Fatalf("room available body misses join link: %q", available[0].Email.Body)
	}
}

func TestBuild_DigestGoesToAdmin(t *testing.T) {
	b := Builder{AdminEmail: "admin@lessondesk.pl"}
	payload := mustMarshal(t, lessons.AvailabilityDigestEvent{
		Month: "2026-08",
		Tutors: []lessons.TutorHours{
			{TutorID: 1, TutorName: "Maria Nowak", WeeklyHours: 4},
		},
		LowTutors: []lessons.TutorHours{
			{TutorID: 1, TutorName: "Maria Nowak", WeeklyHours: 4},
		},
		ThresholdHours: 10,
	})

	msgs := b.Build(lessons.EventAvailabilityDigest, payload)

	if len(msgs) != 1 || msgs[0].Recipient != "admin@lessondesk.pl" {
		t.Fatalf("digest messages = %+v, want one to the admin", msgs)
	}
	if !strings.Contains(msgs[0].Email.Body, "Maria Nowak: 4.0 h/tydzień") {
		t.Fatalf("digest body = %q", msgs[0].Email.Body)
	}
}

func TestBuild_DigestWithoutAdminEmailIsDropped(t *testing.T) {
	b := Builder{}
	payload := mustMarshal(t, lessons.AvailabilityDigestEvent{Month: "2026-08"})

	if msgs := b.Build(lessons.EventAvailabilityDigest, payload); len(msgs) != 0 {
		t.Fatalf("messages = %+v, want none without ADMIN_EMAIL", msgs)
	}
}

func TestBuild_UnknownEventIsIgnored(t *testing.T) {
	b := Builder{}
	if msgs := b.Build("billing.invoice.created.v1", []byte(`{}`)); msgs != nil {
		t.Fatalf("messages = %+v, want nil", msgs)
	}
}
