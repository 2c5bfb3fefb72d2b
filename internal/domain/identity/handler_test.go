package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/domain/patients"
	"github.com/malariadx/malariadx/internal/session"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_Login_InvalidCredentials(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"email":"x@example.com","password":"nope"}`), httptest.NewRecorder())
	err := h.Login(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Signup(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"email":"doc@example.com","password":"s3cret-pass","role":"doctor",
		"profile":{"name":"Dr. A","org_id":"` + f.orgID.String() + `"},"secret_code":"ABCD2345"}`
	rec := httptest.NewRecorder()
	if err := h.Signup(e.NewContext(jsonRequest(http.MethodPost, body), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	err := h.Signup(e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 for a reused email, got %v", err)
	}

	wrong := strings.Replace(body, "doc@", "doc2@", 1)
	wrong = strings.Replace(wrong, "ABCD2345", "ZZZZ9999", 1)
	err = h.Signup(e.NewContext(jsonRequest(http.MethodPost, wrong), httptest.NewRecorder()))
	he, ok = err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a wrong secret code, got %v", err)
	}
}

func TestHandler_PatientLogin(t *testing.T) {
	h, f, e := newTestHandler()
	p := &patients.Patient{ID: uuid.New(), Name: "Amina", MedicalRecordNumber: "MRN1", DateOfBirth: "1990-05-17"}
	f.patients.items[p.ID] = p

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"medical_record_number":"MRN1","date_of_birth":"1990-05-17"}`), rec)
	if err := h.PatientLogin(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s session.Session
	json.Unmarshal(rec.Body.Bytes(), &s)
	if s.Role != session.RolePatient || s.AccessToken == "" {
		t.Errorf("unexpected session %s", rec.Body.String())
	}

	c = e.NewContext(jsonRequest(http.MethodPost, `{"medical_record_number":"MRN1","date_of_birth":"2000-01-01"}`), httptest.NewRecorder())
	err := h.PatientLogin(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	h, f, e := newTestHandler()
	p := &patients.Patient{ID: uuid.New(), Name: "Amina", MedicalRecordNumber: "MRN1", DateOfBirth: "1990-05-17"}
	f.patients.items[p.ID] = p

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(session.WithSession(req.Context(), &session.Session{
		UserID: p.ID.String(), Role: session.RolePatient, Profile: session.Profile{ID: p.ID.String()},
	}))
	rec := httptest.NewRecorder()
	if err := h.Me(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got meResponse
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Profile.Name != "Amina" || got.Profile.MedicalRecordNumber != "MRN1" {
		t.Errorf("unexpected profile %+v", got.Profile)
	}
	if len(got.Navigation) == 0 {
		t.Error("expected navigation links")
	}
}
