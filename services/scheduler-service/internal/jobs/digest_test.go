package jobs

import (
	"testing"

	"github.com/lessondesk/lessondesk/libs/lessons"
)

func TestBuildDigestEvent_SplitsLowTutors(t *testing.T) {
	hours := []lessons.TutorHours{
		{TutorID: 1, TutorName: "Anna", WeeklyHours: 2.5},
		{TutorID: 2, TutorName: "Bartek", WeeklyHours: 10},
		{TutorID: 3, TutorName: "Celina", WeeklyHours: 25},
	}

	event := buildDigestEvent("2026-08", hours, 10)

	if event.Month != "2026-08" {
		t.Fatalf("month = %q, want 2026-08", event.Month)
	}
	if event.ThresholdHours != 10 {
		t.Fatalf("threshold = %v, want 10", event.ThresholdHours)
	}
	if len(event.Tutors) != 3 {
		t.Fatalf("tutors = %d, want all 3", len(event.Tutors))
	}
	if len(event.LowTutors) != 1 {
		t.Fatalf("low tutors = %v, want only Anna", event.LowTutors)
	}
	if event.LowTutors[0].TutorID != 1 {
		t.Fatalf("low tutor = %+v, want tutor 1", event.LowTutors[0])
	}
}

func TestBuildDigestEvent_ThresholdIsExclusive(t *testing.T) {
	hours := []lessons.TutorHours{
		{TutorID: 1, TutorName: "Anna", WeeklyHours: 10},
	}

	event := buildDigestEvent("2026-08", hours, 10)

	if len(event.LowTutors) != 0 {
		t.Fatalf("tutor exactly at threshold flagged low: %+v", event.LowTutors)
	}
}

func TestBuildDigestEvent_NoTutors(t *testing.T) {
	event := buildDigestEvent("2026-08", nil, 10)

	if len(event.Tutors) != 0 || len(event.LowTutors) != 0 {
		t.Fatalf("unexpected tutors in empty digest: %+v", event)
	}
}
