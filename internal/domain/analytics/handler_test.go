package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/session"
)

func withSession(req *http.Request, s *session.Session) *http.Request {
	return req.WithContext(session.WithSession(req.Context(), s))
}

func TestHandler_Dashboard_Patient(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	req := withSession(httptest.NewRequest(http.MethodGet, "/analytics/dashboard", nil), &session.Session{
		UserID: uuid.New().String(), Role: session.RolePatient, Profile: session.Profile{ID: f.patient.String()},
	})
	rec := httptest.NewRecorder()
	if err := h.Dashboard(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st DashboardStats
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.TotalTests != 2 {
		t.Errorf("expected the patient's 2 tests, got %d", st.TotalTests)
	}
}

func TestHandler_Trends_BadDays(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	req := withSession(httptest.NewRequest(http.MethodGet, "/analytics/trends?days=abc", nil), &session.Session{
		UserID: f.doctor.String(), Role: session.RoleDoctor,
	})
	err := h.Trends(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Dashboard_NoSession(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	err := h.Dashboard(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_LogActivity(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	uid := uuid.New()
	req := withSession(httptest.NewRequest(http.MethodPost, "/analytics/activity",
		strings.NewReader(`{"action":"viewed_report","details":{"report":"r1"}}`)),
		&session.Session{UserID: uid.String(), Role: session.RoleDoctor})
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.LogActivity(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if len(f.repo.logs) != 1 || *f.repo.logs[0].UserID != uid || f.repo.logs[0].Details["report"] != "r1" {
		t.Errorf("unexpected stored log %+v", f.repo.logs)
	}
}

func TestHandler_System(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	rec := httptest.NewRecorder()
	if err := h.System(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total_users":9`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
