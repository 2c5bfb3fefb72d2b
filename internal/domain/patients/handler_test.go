package patients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/session"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler()
	doctor := uuid.New()
	body := `{"name":"Kofi Mensah","age":41,"phone":"024 000 0000","date_of_birth":"1983-01-09"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(session.WithSession(req.Context(), &session.Session{UserID: doctor.String(), Role: session.RoleDoctor}))
	rec := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Patient
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.CreatedBy == nil || *p.CreatedBy != doctor {
		t.Errorf("expected created_by from session, got %v", p.CreatedBy)
	}
}

func TestHandler_Create_BadRequest(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if err := h.Create(e.NewContext(req, httptest.NewRecorder())); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestHandler_Delete_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.Delete(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetMine(t *testing.T) {
	h, e := newTestHandler()
	p := validPatient()
	h.svc.Create(context.Background(), p)

	req := httptest.NewRequest(http.MethodGet, "/patient/me", nil)
	req = req.WithContext(session.WithSession(req.Context(), &session.Session{
		Role:    session.RolePatient,
		Profile: session.Profile{ID: p.ID.String()},
	}))
	rec := httptest.NewRecorder()

	if err := h.GetMine(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"medical_record_number":"MRN123456"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
