package lessons

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lesson lifecycle state. Scheduled is the initial state of
// every booked lesson; everything except Scheduled and InProgress is terminal.
type Status string

const (
	StatusScheduled       Status = "scheduled"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusNoShowStudent   Status = "no_show_student"
	StatusNoShowTutor     Status = "no_show_tutor"
	StatusTechnicalIssues Status = "technical_issues"
)

// Role is the dashboard role carried in the JWT.
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

var (
	ErrNotFound      = errors.New("lesson not found")
	ErrForbidden     = errors.New("role not permitted to set this status")
	ErrInvalidStatus = errors.New("invalid lesson status")
)

// Labels are the dashboard display names, as shipped to the front-end.
var Labels = map[Status]string{
	StatusScheduled:       "Zaplanowana",
	StatusInProgress:      "W trakcie",
	StatusCompleted:       "Zakończona",
	StatusCancelled:       "Anulowana",
	StatusNoShowStudent:   "Student nieobecny",
	StatusNoShowTutor:     "Lektor nieobecny",
	StatusTechnicalIssues: "Problemy techniczne",
}

// Badges map statuses to the badge variant the front-end renders.
var Badges = map[Status]string{
	StatusScheduled:       "primary",
	StatusInProgress:      "info",
	StatusCompleted:       "success",
	StatusCancelled:       "danger",
	StatusNoShowStudent:   "warning",
	StatusNoShowTutor:     "warning",
	StatusTechnicalIssues: "secondary",
}

func (s Status) Known() bool {
	_, ok := Labels[s]
	return ok
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShowStudent, StatusNoShowTutor, StatusTechnicalIssues:
		return true
	}
	return false
}

// Label returns the display name, or the raw value for unknown statuses.
func (s Status) Label() string {
	if l, ok := Labels[s]; ok {
		return l
	}
	return string(s)
}

// allowedNext is the transition table. Terminal states have no entries.
var allowedNext = map[Status][]Status{
	StatusScheduled: {
		StatusInProgress,
		StatusCompleted,
		StatusCancelled,
		StatusNoShowStudent,
		StatusNoShowTutor,
		StatusTechnicalIssues,
	},
	StatusInProgress: {
		StatusCompleted,
		StatusCancelled,
		StatusNoShowStudent,
		StatusNoShowTutor,
		StatusTechnicalIssues,
	},
}

func canTransition(from, to Status) bool {
	for _, next := range allowedNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// roleMaySet is the role permission table: which target statuses each role is
// allowed to request. Admin may set anything.
var roleMaySet = map[Role]map[Status]bool{
	RoleStudent: {
		StatusCancelled:   true,
		StatusNoShowTutor: true,
	},
	RoleTutor: {
		StatusCompleted:       true,
		StatusCancelled:       true,
		StatusNoShowStudent:   true,
		StatusTechnicalIssues: true,
	},
}

func RoleMaySet(role Role, status Status) bool {
	if role == RoleAdmin {
		return true
	}
	return roleMaySet[role][status]
}

// StatusOptionsFor returns the {value: label} map a given role may pick from.
func StatusOptionsFor(role Role) map[string]string {
	out := make(map[string]string)
	for status, label := range Labels {
		if RoleMaySet(role, status) {
			out[string(status)] = label
		}
	}
	return out
}

// ValidateTransition checks a requested status change without applying it.
// The same-status no-op case is the caller's business; from == to is rejected
// here like any other disallowed move.
func ValidateTransition(from, to Status, role Role) error {
	if !to.Known() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, to)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: lesson already %s", ErrInvalidStatus, from)
	}
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s not allowed", ErrInvalidStatus, from, to)
	}
	if !RoleMaySet(role, to) {
		return fmt.Errorf("%w: %s may not set %s", ErrForbidden, role, to)
	}
	return nil
}

// RecordsCancellation reports whether the target status stores who triggered
// it and the free-text reason.
func RecordsCancellation(s Status) bool {
	return s == StatusCancelled || s == StatusNoShowStudent || s == StatusNoShowTutor
}

// UrgencyThreshold is the window under which a cancellation is escalated.
const UrgencyThreshold = 12 * time.Hour

// IsUrgent reports whether a cancellation now of a lesson scheduled at
// scheduledAt must be flagged urgent. Strictly less than the threshold: a
// lesson exactly 12h away is not urgent. Past lessons (negative remaining
// time) are.
func IsUrgent(scheduledAt, now time.Time) bool {
	return scheduledAt.Sub(now) < UrgencyThreshold
}

// HoursUntil returns the signed number of hours from now to the lesson.
func HoursUntil(scheduledAt, now time.Time) float64 {
	return scheduledAt.Sub(now).Hours()
}
