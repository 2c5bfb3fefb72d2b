package detection

import (
	"bytes"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	"github.com/labstack/echo/v4"

	"github.com/malariadx/malariadx/internal/session"
)

func newTestHandler(t *testing.T) (*Handler, *fixture, *echo.Echo) {
	f := newFixture(t)
	reg := NewRegistry(time.Minute)
	reg.now = f.orch.now
	return NewHandler(f.orch, reg), f, echo.New()
}

var doctorSession = &session.Session{
	UserID:      testDoctor.String(),
	Role:        session.RoleDoctor,
	AccessToken: "tok-doc",
	Profile:     session.Profile{Name: "Dr. Okafor"},
}

func withSession(req *http.Request, s *session.Session) *http.Request {
	return req.WithContext(session.WithSession(req.Context(), s))
}

func multipartFile(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()
	return &buf, w.FormDataContentType()
}

func createWorkspace(t *testing.T, h *Handler, e *echo.Echo) Snapshot {
	t.Helper()
	body, ct := multipartFile(t, "smear.jpg", bytes.Repeat([]byte{0xff}, 2048))
	req := withSession(httptest.NewRequest(http.MethodPost, "/", body), doctorSession)
	req.Header.Set(echo.HeaderContentType, ct)
	rec := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	return snap
}

func idContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, id uuid.UUID) echo.Context {
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	return c
}

func TestHandler_Create(t *testing.T) {
	h, _, e := newTestHandler(t)
	snap := createWorkspace(t, h, e)

	if snap.State != StateUploading {
		t.Errorf("expected uploading, got %s", snap.State)
	}
	if snap.Image == nil || snap.Image.MIMEType != "image/jpeg" {
		t.Fatalf("expected a jpeg image, got %+v", snap.Image)
	}
	if !strings.HasPrefix(snap.Image.Preview, "data:image/jpeg;base64,") {
		t.Errorf("unexpected preview prefix: %.30s", snap.Image.Preview)
	}
	if h.registry.Len() != 1 {
		t.Errorf("expected 1 workspace, got %d", h.registry.Len())
	}
}

func TestHandler_Create_RejectsText(t *testing.T) {
	h, f, e := newTestHandler(t)
	body, ct := multipartFile(t, "notes.txt", []byte("hello"))
	req := withSession(httptest.NewRequest(http.MethodPost, "/", body), doctorSession)
	req.Header.Set(echo.HeaderContentType, ct)

	err := h.Create(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if he.Message != "Please upload an image file" {
		t.Errorf("unexpected message: %v", he.Message)
	}
	if h.registry.Len() != 0 {
		t.Errorf("rejected upload should not keep a workspace")
	}
	if n := f.mt.GetTotalCallCount(); n != 0 {
		t.Errorf("expected no inference calls, got %d", n)
	}
}

func TestHandler_AnalyzeAndReport(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.mt.RegisterResponder(http.MethodPost, mlBase+"/predict/complete",
		httpmock.NewStringResponder(http.StatusOK, parasitizedBody))
	snap := createWorkspace(t, h, e)

	req := withSession(httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"patient_id":"`+testPatient.String()+`"}`)), doctorSession)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Analyze(idContext(e, req, rec, snap.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got Snapshot
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.State != StateResult || got.Outcome == nil {
		t.Fatalf("expected a result, got %+v", got)
	}
	if got.Outcome.Result.ConfidencePercent != 95 || !got.Outcome.Persisted {
		t.Errorf("unexpected outcome: %+v", got.Outcome)
	}

	req = withSession(httptest.NewRequest(http.MethodGet, "/", nil), doctorSession)
	rec = httptest.NewRecorder()
	if err := h.Report(idContext(e, req, rec, snap.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", ct)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "Malaria_Report_Patient_3-1-2024.pdf") {
		t.Errorf("unexpected disposition: %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("expected a PDF body")
	}
}

func TestHandler_Analyze_ServiceError(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.mt.RegisterResponder(http.MethodPost, mlBase+"/predict/complete",
		httpmock.NewStringResponder(http.StatusInternalServerError, "model unavailable"))
	snap := createWorkspace(t, h, e)

	req := withSession(httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"patient_id":"`+testPatient.String()+`"}`)), doctorSession)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Analyze(idContext(e, req, rec, snap.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var got Snapshot
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.State != StateError || got.Image == nil {
		t.Errorf("expected error state with image kept, got %+v", got)
	}
	if !strings.Contains(got.Error, "model unavailable") {
		t.Errorf("unexpected error text: %q", got.Error)
	}
}

func TestHandler_Analyze_MissingPatient(t *testing.T) {
	h, _, e := newTestHandler(t)
	snap := createWorkspace(t, h, e)

	req := withSession(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)), doctorSession)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.Analyze(idContext(e, req, httptest.NewRecorder(), snap.ID))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_OtherUsersWorkspace(t *testing.T) {
	h, _, e := newTestHandler(t)
	snap := createWorkspace(t, h, e)

	other := &session.Session{UserID: uuid.NewString(), Role: session.RoleDoctor}
	req := withSession(httptest.NewRequest(http.MethodGet, "/", nil), other)
	err := h.Get(idContext(e, req, httptest.NewRecorder(), snap.ID))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}

	admin := &session.Session{UserID: uuid.NewString(), Role: session.RoleAdmin}
	req = withSession(httptest.NewRequest(http.MethodGet, "/", nil), admin)
	rec := httptest.NewRecorder()
	if err := h.Get(idContext(e, req, rec, snap.ID)); err != nil {
		t.Fatalf("admin should see the workspace: %v", err)
	}
}

func TestHandler_ResetAndShare(t *testing.T) {
	h, _, e := newTestHandler(t)
	snap := createWorkspace(t, h, e)

	req := withSession(httptest.NewRequest(http.MethodPost, "/", nil), doctorSession)
	rec := httptest.NewRecorder()
	if err := h.Share(idContext(e, req, rec, snap.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	req = withSession(httptest.NewRequest(http.MethodDelete, "/", nil), doctorSession)
	rec = httptest.NewRecorder()
	if err := h.Reset(idContext(e, req, rec, snap.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Snapshot
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.State != StateIdle || got.Image != nil {
		t.Errorf("expected idle workspace, got %+v", got)
	}

	req = withSession(httptest.NewRequest(http.MethodGet, "/", nil), doctorSession)
	err := h.Report(idContext(e, req, httptest.NewRecorder(), snap.ID))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 without a result, got %v", err)
	}
}

func TestRegistry_UnknownWorkspace(t *testing.T) {
	reg := NewRegistry(time.Minute)
	if _, err := reg.Get(uuid.New()); err != ErrWorkspaceNotFound {
		t.Errorf("expected ErrWorkspaceNotFound, got %v", err)
	}
	ws := reg.Create("u-1")
	reg.Delete(ws.ID)
	if reg.Len() != 0 {
		t.Errorf("expected empty registry")
	}
}

func TestHandler_Report_QuotedPatientName(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.orch.SetPatientLookup(fakePatients{
		testPatient: {ID: testPatient, Name: `Ngozi "Nkem" Eze/Obi`},
	})
	f.mt.RegisterResponder(http.MethodPost, mlBase+"/predict/complete",
		httpmock.NewStringResponder(http.StatusOK, parasitizedBody))
	snap := createWorkspace(t, h, e)

	req := withSession(httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"patient_id":"`+testPatient.String()+`"}`)), doctorSession)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if err := h.Analyze(idContext(e, req, httptest.NewRecorder(), snap.ID)); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	req = withSession(httptest.NewRequest(http.MethodGet, "/", nil), doctorSession)
	rec := httptest.NewRecorder()
	if err := h.Report(idContext(e, req, rec, snap.ID)); err != nil {
		t.Fatalf("report: %v", err)
	}
	disp, params, err := mime.ParseMediaType(rec.Header().Get(echo.HeaderContentDisposition))
	if err != nil {
		t.Fatalf("unparseable disposition %q: %v", rec.Header().Get(echo.HeaderContentDisposition), err)
	}
	if disp != "attachment" || params["filename"] != "Malaria_Report_Ngozi__Nkem__Eze_Obi_3-1-2024.pdf" {
		t.Errorf("unexpected disposition %s %v", disp, params)
	}
}

func TestHandler_Analyze_ResultHeld(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.mt.RegisterResponder(http.MethodPost, mlBase+"/predict/complete",
		httpmock.NewStringResponder(http.StatusOK, parasitizedBody))
	snap := createWorkspace(t, h, e)

	analyze := func() error {
		req := withSession(httptest.NewRequest(http.MethodPost, "/",
			strings.NewReader(`{"patient_id":"`+testPatient.String()+`"}`)), doctorSession)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return h.Analyze(idContext(e, req, httptest.NewRecorder(), snap.ID))
	}
	if err := analyze(); err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	err := analyze()
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
	if he.Message != ErrResultHeld.Error() {
		t.Errorf("unexpected message: %v", he.Message)
	}
	if n := f.mt.GetTotalCallCount(); n != 1 {
		t.Errorf("expected one inference call, got %d", n)
	}
}
