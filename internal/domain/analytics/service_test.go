package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/malariadx/malariadx/internal/domain/tests"
	"github.com/malariadx/malariadx/internal/session"
)

type mockTests struct {
	items []*tests.Test
	err   error
}

func (m *mockTests) ListAll(_ context.Context, f tests.Filter) ([]*tests.Test, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*tests.Test
	for _, t := range m.items {
		if f.PatientID != nil && t.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && (t.DoctorID == nil || *t.DoctorID != *f.DoctorID) {
			continue
		}
		if f.Start != nil && t.CreatedAt.Before(*f.Start) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type mockRepo struct {
	patients map[uuid.UUID]int
	users    int
	doctors  int
	logs     []*ActivityLog
	err      error
}

func (m *mockRepo) CountPatients(_ context.Context, createdBy *uuid.UUID) (int, error) {
	if createdBy != nil {
		return m.patients[*createdBy], nil
	}
	var n int
	for _, c := range m.patients {
		n += c
	}
	return n, nil
}

func (m *mockRepo) CountUsers(context.Context) (int, int, error) {
	return m.users, m.doctors, nil
}

func (m *mockRepo) InsertActivity(_ context.Context, a *ActivityLog) error {
	if m.err != nil {
		return m.err
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.logs = append(m.logs, a)
	return nil
}

func (m *mockRepo) ListActivity(_ context.Context, limit int) ([]*ActivityLog, error) {
	if limit < len(m.logs) {
		return m.logs[:limit], nil
	}
	return m.logs, nil
}

var testNow = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	repo    *mockRepo
	src     *mockTests
	doctor  uuid.UUID
	patient uuid.UUID
}

func newFixture() *fixture {
	doctor, patient := uuid.New(), uuid.New()
	other := uuid.New()
	day := func(d int) time.Time { return testNow.AddDate(0, 0, -d) }
	src := &mockTests{items: []*tests.Test{
		{PatientID: patient, DoctorID: &doctor, Result: tests.ResultPositive, Confidence: 90, CreatedAt: day(1)},
		{PatientID: patient, DoctorID: &doctor, Result: tests.ResultNegative, Confidence: 70, CreatedAt: day(1)},
		{PatientID: uuid.New(), DoctorID: &doctor, Result: tests.ResultPending, Confidence: 0, CreatedAt: day(3)},
		{PatientID: uuid.New(), DoctorID: &other, Result: tests.ResultPositive, Confidence: 80, CreatedAt: day(2)},
		{PatientID: patient, DoctorID: &doctor, Result: tests.ResultPositive, Confidence: 99, CreatedAt: day(45)},
	}}
	repo := &mockRepo{patients: map[uuid.UUID]int{doctor: 4, other: 2}, users: 9, doctors: 3}
	svc := NewService(repo, src, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return &fixture{svc: svc, repo: repo, src: src, doctor: doctor, patient: patient}
}

func TestDashboardStats_Doctor(t *testing.T) {
	f := newFixture()
	st, err := f.svc.DashboardStats(context.Background(), f.doctor, session.RoleDoctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.TotalTests != 3 || st.PositiveTests != 1 || st.NegativeTests != 1 {
		t.Errorf("unexpected counts %+v", st)
	}
	if st.TotalPatients != 4 {
		t.Errorf("expected 4 patients, got %d", st.TotalPatients)
	}
	if st.AverageConfidence < 53.3 || st.AverageConfidence > 53.4 {
		t.Errorf("expected average confidence ~53.33, got %v", st.AverageConfidence)
	}
}

func TestDashboardStats_PatientAndAdmin(t *testing.T) {
	f := newFixture()
	st, _ := f.svc.DashboardStats(context.Background(), f.patient, session.RolePatient)
	if st.TotalTests != 2 || st.TotalPatients != 0 {
		t.Errorf("unexpected patient stats %+v", st)
	}
	st, _ = f.svc.DashboardStats(context.Background(), uuid.New(), session.RoleAdmin)
	if st.TotalTests != 4 || st.TotalPatients != 6 {
		t.Errorf("unexpected admin stats %+v", st)
	}
}

func TestDashboardStats_Empty(t *testing.T) {
	f := newFixture()
	st, err := f.svc.DashboardStats(context.Background(), uuid.New(), session.RoleDoctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.TotalTests != 0 || st.AverageConfidence != 0 {
		t.Errorf("expected zero stats, got %+v", st)
	}
}

func TestTestTrends(t *testing.T) {
	f := newFixture()
	pts, err := f.svc.TestTrends(context.Background(), f.doctor, session.RoleDoctor, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 days, got %d", len(pts))
	}
	if pts[0].Date != "2024-03-03" || pts[0].Total != 1 || pts[0].Positive != 0 {
		t.Errorf("unexpected first point %+v", pts[0])
	}
	if pts[1].Date != "2024-03-05" || pts[1].Total != 2 || pts[1].Positive != 1 || pts[1].Negative != 1 {
		t.Errorf("unexpected second point %+v", pts[1])
	}

	pts, _ = f.svc.TestTrends(context.Background(), f.doctor, session.RoleDoctor, 2)
	if len(pts) != 1 {
		t.Errorf("expected 1 day in a 2 day window, got %d", len(pts))
	}
}

func TestSystemStats(t *testing.T) {
	f := newFixture()
	st, err := f.svc.SystemStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.TotalTests != 5 || st.TotalUsers != 9 || st.TotalDoctors != 3 || st.TotalPatients != 6 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.PositiveRate != 60 {
		t.Errorf("expected 60%% positive, got %v", st.PositiveRate)
	}

	f.src.err = errors.New("db down")
	if _, err := f.svc.SystemStats(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestPositiveRate_Empty(t *testing.T) {
	if got := PositiveRate(nil); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestLogActivity(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.LogActivity(ctx, nil, "  ", nil); err == nil {
		t.Error("expected error for blank action")
	}
	uid := uuid.New()
	a, err := f.svc.LogActivity(ctx, &uid, "login", map[string]interface{}{"role": "doctor"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == uuid.Nil || a.Action != "login" {
		t.Errorf("unexpected log %+v", a)
	}

	f.svc.Record(ctx, uuid.Nil, "signup", nil)
	if len(f.repo.logs) != 2 || f.repo.logs[1].UserID != nil {
		t.Error("expected anonymous activity to be recorded without a user")
	}

	f.repo.err = errors.New("db down")
	f.svc.Record(ctx, uid, "logout", nil)
	if len(f.repo.logs) != 2 {
		t.Error("expected failed record to be dropped")
	}
}

func TestActivityLogs_Limit(t *testing.T) {
	f := newFixture()
	for i := 0; i < 60; i++ {
		f.svc.Record(context.Background(), uuid.New(), "login", nil)
	}
	items, _ := f.svc.ActivityLogs(context.Background(), 0)
	if len(items) != DefaultActivityRows {
		t.Errorf("expected %d rows, got %d", DefaultActivityRows, len(items))
	}
}
