package lessons

import (
	"errors"
	"testing"
	"time"
)

func TestValidateTransition_TerminalStatesAreClosed(t *testing.T) {
	terminals := []Status{StatusCompleted, StatusCancelled, StatusNoShowStudent, StatusNoShowTutor, StatusTechnicalIssues}
	targets := []Status{StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShowStudent, StatusNoShowTutor, StatusTechnicalIssues}

	for _, from := range terminals {
		for _, to := range targets {
			err := ValidateTransition(from, to, RoleAdmin)
			if !errors.Is(err, ErrInvalidStatus) {
				t.Errorf("ValidateTransition(%s, %s, admin) = %v, want ErrInvalidStatus", from, to, err)
			}
		}
	}
}

func TestValidateTransition_InProgressOnlyFromScheduled(t *testing.T) {
	if err := ValidateTransition(StatusScheduled, StatusInProgress, RoleAdmin); err != nil {
		t.Fatalf("scheduled -> in_progress should be allowed: %v", err)
	}
	err := ValidateTransition(StatusInProgress, StatusInProgress, RoleAdmin)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("in_progress -> in_progress = %v, want ErrInvalidStatus", err)
	}
}

func TestValidateTransition_UnknownStatus(t *testing.T) {
	err := ValidateTransition(StatusScheduled, Status("postponed"), RoleAdmin)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("unknown status = %v, want ErrInvalidStatus", err)
	}
}

func TestValidateTransition_RoleGating(t *testing.T) {
	cases := []struct {
		role    Role
		to      Status
		allowed bool
	}{
		{RoleStudent, StatusCompleted, false},
		{RoleStudent, StatusCancelled, true},
		{RoleStudent, StatusNoShowTutor, true},
		{RoleStudent, StatusNoShowStudent, false},
		{RoleStudent, StatusTechnicalIssues, false},
		{RoleTutor, StatusCompleted, true},
		{RoleTutor, StatusCancelled, true},
		{RoleTutor, StatusNoShowStudent, true},
		{RoleTutor, StatusNoShowTutor, false},
		{RoleTutor, StatusTechnicalIssues, true},
		{RoleAdmin, StatusCompleted, true},
		{RoleAdmin, StatusNoShowTutor, true},
	}

	for _, tc := range cases {
		err := ValidateTransition(StatusScheduled, tc.to, tc.role)
		if tc.allowed && err != nil {
			t.Errorf("%s setting %s should be allowed: %v", tc.role, tc.to, err)
		}
		if !tc.allowed && !errors.Is(err, ErrForbidden) {
			t.Errorf("%s setting %s = %v, want ErrForbidden", tc.role, tc.to, err)
		}
	}
}

func TestStatusOptionsFor(t *testing.T) {
	student := StatusOptionsFor(RoleStudent)
	if len(student) != 2 {
		t.Fatalf("student options = %v, want exactly cancelled and no_show_tutor", student)
	}
	if student["cancelled"] != "Anulowana" || student["no_show_tutor"] != "Lektor nieobecny" {
		t.Fatalf("student options carry wrong labels: %v", student)
	}

	admin := StatusOptionsFor(RoleAdmin)
	if len(admin) != 7 {
		t.Fatalf("admin options = %d entries, want all 7", len(admin))
	}

	tutor := StatusOptionsFor(RoleTutor)
	if len(tutor) != 4 {
		t.Fatalf("tutor options = %v, want 4 entries", tutor)
	}
	if _, ok := tutor["no_show_tutor"]; ok {
		t.Fatal("tutor must not be able to mark their own no-show")
	}
}

func TestIsUrgent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		scheduledAt time.Time
		urgent      bool
	}{
		{"2h ahead", now.Add(2 * time.Hour), true},
		{"exactly 12h", now.Add(12 * time.Hour), false},
		{"just under 12h", now.Add(12*time.Hour - time.Second), true},
		{"48h ahead", now.Add(48 * time.Hour), false},
		{"already past", now.Add(-3 * time.Hour), true},
	}

	for _, tc := range cases {
		if got := IsUrgent(tc.scheduledAt, now); got != tc.urgent {
			t.Errorf("%s: IsUrgent = %v, want %v", tc.name, got, tc.urgent)
		}
	}
}

func TestHoursUntil_Signed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if got := HoursUntil(now.Add(-2*time.Hour), now); got != -2 {
		t.Fatalf("HoursUntil past lesson = %v, want -2", got)
	}
	if got := HoursUntil(now.Add(30*time.Minute), now); got != 0.5 {
		t.Fatalf("HoursUntil = %v, want 0.5", got)
	}
}

func TestRecordsCancellation(t *testing.T) {
	want := map[Status]bool{
		StatusCancelled:       true,
		StatusNoShowStudent:   true,
		StatusNoShowTutor:     true,
		StatusCompleted:       false,
		StatusTechnicalIssues: false,
		StatusScheduled:       false,
	}
	for status, expected := range want {
		if got := RecordsCancellation(status); got != expected {
			t.Errorf("RecordsCancellation(%s) = %v, want %v", status, got, expected)
		}
	}
}

func TestBadgesCoverAllStatuses(t *testing.T) {
	for status := range Labels {
		if Badges[status] == "" {
			t.Errorf("status %s has no badge variant", status)
		}
	}
}
