package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lessondesk/lessondesk/libs/lessons"
	"github.com/lessondesk/lessondesk/libs/outbox"
	"github.com/lessondesk/lessondesk/services/lesson-service/internal/model"
	"github.com/lessondesk/lessondesk/services/lesson-service/internal/status"
	"github.com/lessondesk/lessondesk/services/lesson-service/internal/storage"
)

type LessonHandler struct {
	engine *status.Engine
	repo   *storage.LessonRepository
	outbox *outbox.Repository
	logger *slog.Logger
}

func NewLessonHandler(engine *status.Engine, repo *storage.LessonRepository, outboxRepo *outbox.Repository, logger *slog.Logger) *LessonHandler {
	return &LessonHandler{
		engine: engine,
		repo:   repo,
		outbox: outboxRepo,
		logger: logger,
	}
}

// Register mounts the lesson routes on the mux.
func (h *LessonHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /lessons/status-options", h.StatusOptions)
	mux.HandleFunc("PUT /lessons/{id}/status", h.UpdateStatus)
	mux.HandleFunc("PUT /lessons/{id}/room", h.SetRoom)
	mux.HandleFunc("POST /lessons", h.Create)
	mux.HandleFunc("GET /lessons", h.List)
}

// StatusOptions returns the statuses the caller's role may set, as a
// value -> label map for the dashboard dropdown.
func (h *LessonHandler) StatusOptions(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
		return
	}
	writeSuccess(w, http.StatusOK, lessons.StatusOptionsFor(p.Role))
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *LessonHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
		return
	}

	lessonID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || lessonID <= 0 {
		writeError(w, http.StatusNotFound, "lesson_not_found", msgLessonNotFound)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", msgInvalidBody)
		return
	}

	actor := status.Actor{ID: p.UserID, Role: p.Role}
	_, err = h.engine.Transition(r.Context(), lessonID, lessons.Status(strings.TrimSpace(req.Status)), actor, strings.TrimSpace(req.Reason))
	if err != nil {
		switch {
		case errors.Is(err, lessons.ErrNotFound):
			writeError(w, http.StatusNotFound, "lesson_not_found", msgLessonNotFound)
		case errors.Is(err, lessons.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden", msgForbidden)
		case errors.Is(err, lessons.ErrInvalidStatus):
			writeError(w, http.StatusUnprocessableEntity, "invalid_status", msgInvalidStatus)
		default:
			h.logger.Error("status transition failed", "err", err, "lesson_id", lessonID)
			writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		}
		return
	}

	writeSuccess(w, http.StatusOK, nil)
}

type createLessonRequest struct {
	StudentID       int64  `json:"student_id"`
	TutorID         int64  `json:"tutor_id"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (h *LessonHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
		return
	}

	var req createLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", msgInvalidBody)
		return
	}

	// Students book for themselves; admins may book on anyone's behalf.
	switch p.Role {
	case lessons.RoleStudent:
		req.StudentID = p.UserID
	case lessons.RoleAdmin:
		if req.StudentID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_body", msgInvalidBody)
			return
		}
	default:
		writeError(w, http.StatusForbidden, "forbidden", msgForbidden)
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil || req.TutorID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", msgInvalidBody)
		return
	}
	if !scheduledAt.After(time.Now()) {
		writeError(w, http.StatusUnprocessableEntity, "invalid_schedule", "Termin lekcji musi być w przyszłości")
		return
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = 60
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.repo.Create(ctx, tx, req.StudentID, req.TutorID, scheduledAt, duration)
	if err != nil {
		if storage.IsForeignKeyViolation(err) {
			writeError(w, http.StatusUnprocessableEntity, "unknown_user", "Nieznany student lub lektor")
			return
		}
		h.logger.Error("lesson create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}

	lesson, err := h.repo.Get(ctx, tx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}

	payload, err := json.Marshal(lessons.BookedEvent{Snapshot: lesson.Snapshot()})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "lesson",
		AggregateID:   fmt.Sprintf("%d", id),
		EventType:     lessons.EventLessonBooked,
		Payload:       payload,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]any{"lesson_id": id})
}

type lessonItem struct {
	ID              int64  `json:"id"`
	StudentName     string `json:"student_name"`
	TutorName       string `json:"tutor_name"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	StatusLabel     string `json:"status_label"`
	Badge           string `json:"badge"`
	MeetingURL      string `json:"meeting_url,omitempty"`
}

func (h *LessonHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	var (
		list []model.Lesson
		err  error
	)
	if p.Role == lessons.RoleAdmin {
		list, err = h.repo.ListAll(r.Context(), limit)
	} else {
		list, err = h.repo.ListForParticipant(r.Context(), p.UserID, limit)
	}
	if err != nil {
		h.logger.Error("lesson list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}

	items := make([]lessonItem, 0, len(list))
	for _, l := range list {
		items = append(items, lessonItem{
			ID:              l.ID,
			StudentName:     l.StudentName,
			TutorName:       l.TutorName,
			ScheduledAt:     l.ScheduledAt.UTC().Format(time.RFC3339),
			DurationMinutes: l.DurationMinutes,
			Status:          string(l.Status),
			StatusLabel:     l.Status.Label(),
			Badge:           lessons.Badges[l.Status],
			MeetingURL:      l.MeetingURL,
		})
	}
	writeSuccess(w, http.StatusOK, items)
}

type setRoomRequest struct {
	MeetingURL string `json:"meeting_url"`
}

// SetRoom lets the lesson's tutor (or an admin) attach the meeting room link.
// The room notifier informs the student on its next tick.
func (h *LessonHandler) SetRoom(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
		return
	}

	lessonID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || lessonID <= 0 {
		writeError(w, http.StatusNotFound, "lesson_not_found", msgLessonNotFound)
		return
	}

	var req setRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", msgInvalidBody)
		return
	}
	meetingURL := strings.TrimSpace(req.MeetingURL)
	if meetingURL == "" || !strings.HasPrefix(meetingURL, "https://") {
		writeError(w, http.StatusBadRequest, "invalid_body", msgInvalidBody)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lesson, err := h.repo.GetForUpdate(ctx, tx, lessonID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "lesson_not_found", msgLessonNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}

	if p.Role != lessons.RoleAdmin && (p.Role != lessons.RoleTutor || lesson.TutorID != p.UserID) {
		writeError(w, http.StatusForbidden, "forbidden", msgForbidden)
		return
	}
	if lesson.Status.Terminal() {
		writeError(w, http.StatusUnprocessableEntity, "invalid_status", msgInvalidStatus)
		return
	}

	if err := h.repo.SetMeetingURL(ctx, tx, lessonID, meetingURL); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", msgServerError)
		return
	}

	writeSuccess(w, http.StatusOK, nil)
}
