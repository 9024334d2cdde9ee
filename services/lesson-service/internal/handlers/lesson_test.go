package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lessondesk/lessondesk/libs/auth"
	"github.com/lessondesk/lessondesk/libs/httpx"
)

const testSecret = "test-secret"

func signToken(t *testing.T, sub, role string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.Claims{
		Sub:  sub,
		Role: role,
		Name: "Test User",
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	return token
}

func newTestMux(t *testing.T) http.Handler {
	t.Helper()
	h := NewLessonHandler(nil, nil, nil, slog.Default())
	mux := http.NewServeMux()
	h.Register(mux)
	return httpx.Chain(mux, RequireAuth(testSecret))
}

func TestStatusOptions_StudentSubset(t *testing.T) {
	srv := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/lessons/status-options", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "7", "student"))
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}
	var resp struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success envelope")
	}
	if len(resp.Data) != 2 {
		t.Fatalf("student options = %v, want only cancelled and no_show_tutor", resp.Data)
	}
	if resp.Data["cancelled"] != "Anulowana" {
		t.Fatalf("cancelled label = %q", resp.Data["cancelled"])
	}
	if resp.Data["no_show_tutor"] != "Lektor nieobecny" {
		t.Fatalf("no_show_tutor label = %q", resp.Data["no_show_tutor"])
	}
}

func TestStatusOptions_AdminSeesAll(t *testing.T) {
	srv := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/lessons/status-options", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "1", "admin"))
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)

	var resp struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(resp.Data) != 7 {
		t.Fatalf("admin options = %d entries, want 7", len(resp.Data))
	}
}

func TestStatusOptions_RequiresToken(t *testing.T) {
	srv := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/lessons/status-options", nil)
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)

	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rw.Code)
	}
	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Success || resp.Error.Code != "unauthorized" {
		t.Fatalf("unexpected error envelope: %+v", resp)
	}
}

func TestUpdateStatus_RejectsUnknownRole(t *testing.T) {
	srv := newTestMux(t)

	req := httptest.NewRequest(http.MethodGet, "/lessons/status-options", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "7", "superuser"))
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)

	if rw.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rw.Code)
	}
}

func TestUpdateStatus_BadLessonID(t *testing.T) {
	srv := newTestMux(t)

	req := httptest.NewRequest(http.MethodPut, "/lessons/abc/status", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "7", "student"))
	rw := httptest.NewRecorder()
	srv.ServeHTTP(rw, req)

	if rw.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rw.Code)
	}
}
