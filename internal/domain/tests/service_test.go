package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/platform/blobstore"
	"github.com/malariadx/malariadx/internal/platform/db"
)

type mockTestRepo struct {
	items map[uuid.UUID]*Test
}

func newMockTestRepo() *mockTestRepo {
	return &mockTestRepo{items: make(map[uuid.UUID]*Test)}
}

func (m *mockTestRepo) Create(_ context.Context, t *Test) error {
	t.ID = uuid.New()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.UpdatedAt = time.Now()
	m.items[t.ID] = t
	return nil
}

func (m *mockTestRepo) GetByID(_ context.Context, id uuid.UUID) (*Test, error) {
	t, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (m *mockTestRepo) Update(_ context.Context, t *Test) error {
	if _, ok := m.items[t.ID]; !ok {
		return db.ErrNotFound
	}
	m.items[t.ID] = t
	return nil
}

func (m *mockTestRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockTestRepo) matches(t *Test, f Filter) bool {
	if f.PatientID != nil && t.PatientID != *f.PatientID {
		return false
	}
	if f.DoctorID != nil && (t.DoctorID == nil || *t.DoctorID != *f.DoctorID) {
		return false
	}
	if f.Result != "" && t.Result != f.Result {
		return false
	}
	if f.Start != nil && t.CreatedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && t.CreatedAt.After(*f.End) {
		return false
	}
	return !f.PostedOnly || t.PostedToPatient
}

func (m *mockTestRepo) ListAll(_ context.Context, f Filter) ([]*Test, error) {
	var result []*Test
	for _, t := range m.items {
		if m.matches(t, f) {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *mockTestRepo) List(ctx context.Context, f Filter, limit, offset int) ([]*Test, int, error) {
	result, _ := m.ListAll(ctx, f)
	return result, len(result), nil
}

func (m *mockTestRepo) MarkPosted(_ context.Context, id uuid.UUID, at time.Time) (*Test, error) {
	t, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	t.PostedToPatient = true
	t.PostedAt = &at
	t.Status = StatusCompleted
	return t, nil
}

func (m *mockTestRepo) SetImageURL(_ context.Context, id uuid.UUID, url string) error {
	t, ok := m.items[id]
	if !ok {
		return db.ErrNotFound
	}
	t.ImageURL = url
	return nil
}

var testNow = time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) // a Wednesday

func newTestService() *Service {
	svc := NewService(newMockTestRepo(), blobstore.NewMemoryStore(), "http://files.test")
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestService_Create(t *testing.T) {
	svc := newTestService()
	tr := &Test{PatientID: uuid.New()}
	if err := svc.Create(context.Background(), tr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if tr.Result != ResultPending || tr.Status != StatusPending {
		t.Errorf("expected pending defaults, got %s/%s", tr.Result, tr.Status)
	}
}

func TestService_Create_Validation(t *testing.T) {
	svc := newTestService()
	cases := map[string]*Test{
		"missing patient": {},
		"bad result":      {PatientID: uuid.New(), Result: "maybe"},
		"bad status":      {PatientID: uuid.New(), Status: "archived"},
		"bad confidence":  {PatientID: uuid.New(), Confidence: 120},
	}
	for name, tr := range cases {
		if err := svc.Create(context.Background(), tr); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestService_Stats(t *testing.T) {
	svc := newTestService()
	doctor := uuid.New()
	other := uuid.New()
	ctx := context.Background()
	for _, tr := range []*Test{
		{PatientID: uuid.New(), DoctorID: &doctor, Result: ResultPositive, Status: StatusCompleted, Confidence: 90},
		{PatientID: uuid.New(), DoctorID: &doctor, Result: ResultNegative, Status: StatusCompleted, Confidence: 80},
		{PatientID: uuid.New(), DoctorID: &doctor, Result: ResultPending, Status: StatusPending, Confidence: 40},
		{PatientID: uuid.New(), DoctorID: &other, Result: ResultPositive, Status: StatusCompleted, Confidence: 99},
	} {
		if err := svc.Create(ctx, tr); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	stats, err := svc.Stats(ctx, Filter{DoctorID: &doctor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Stats{TotalTests: 3, PositiveTests: 1, NegativeTests: 1, PendingTests: 1, AverageConfidence: 70}
	if stats != want {
		t.Errorf("expected %+v, got %+v", want, stats)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	if s := ComputeStats(nil); s != (Stats{}) {
		t.Errorf("expected zero stats, got %+v", s)
	}
}

func TestService_Weekly(t *testing.T) {
	svc := newTestService()
	repo := svc.repo.(*mockTestRepo)
	ctx := context.Background()
	// Monday and Tuesday this week, plus one outside the window.
	for _, tr := range []*Test{
		{PatientID: uuid.New(), Result: ResultPositive, CreatedAt: testNow.AddDate(0, 0, -2)},
		{PatientID: uuid.New(), Result: ResultNegative, CreatedAt: testNow.AddDate(0, 0, -2)},
		{PatientID: uuid.New(), Result: ResultPositive, CreatedAt: testNow.AddDate(0, 0, -1)},
		{PatientID: uuid.New(), Result: ResultPositive, CreatedAt: testNow.AddDate(0, 0, -30)},
	} {
		repo.Create(ctx, tr)
	}

	days, err := svc.Weekly(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 7 || days[0].Day != "Sun" || days[6].Day != "Sat" {
		t.Fatalf("expected Sun..Sat, got %+v", days)
	}
	if days[1] != (DayCount{Day: "Mon", Tests: 2, Positive: 1}) {
		t.Errorf("unexpected Monday: %+v", days[1])
	}
	if days[2] != (DayCount{Day: "Tue", Tests: 1, Positive: 1}) {
		t.Errorf("unexpected Tuesday: %+v", days[2])
	}
	total := 0
	for _, d := range days {
		total += d.Tests
	}
	if total != 3 {
		t.Errorf("expected 3 tests in window, got %d", total)
	}
}

func TestService_PostToPatient(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	patient := uuid.New()
	posted := &Test{PatientID: patient, Result: ResultNegative}
	hidden := &Test{PatientID: patient, Result: ResultPositive}
	svc.Create(ctx, posted)
	svc.Create(ctx, hidden)

	got, err := svc.PostToPatient(ctx, posted.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.PostedToPatient || got.Status != StatusCompleted || got.PostedAt == nil {
		t.Errorf("expected posted and completed, got %+v", got)
	}

	items, total, err := svc.ListPostedForPatient(ctx, patient, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].ID != posted.ID {
		t.Errorf("expected only the posted test, got %d items", total)
	}
}

func TestService_UploadImage(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	tr := &Test{PatientID: uuid.New()}
	svc.Create(ctx, tr)

	url, err := svc.UploadImage(ctx, tr.ID, "slide.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantKey := blobstore.TimestampedKey("test-images", tr.ID.String(), "slide.png", testNow)
	if url != blobstore.PublicURL("http://files.test", blobstore.BucketTestImages, wantKey) {
		t.Errorf("unexpected url %s", url)
	}
	if tr.ImageURL != url {
		t.Errorf("expected image_url recorded, got %q", tr.ImageURL)
	}
	if _, err := svc.blobs.Stat(ctx, blobstore.BucketTestImages, wantKey); err != nil {
		t.Errorf("expected stored object: %v", err)
	}
}

func TestService_UploadImage_UnknownTest(t *testing.T) {
	svc := newTestService()
	if _, err := svc.UploadImage(context.Background(), uuid.New(), "a.jpg", "image/jpeg", []byte("x")); err == nil {
		t.Error("expected error for unknown test")
	}
}

func TestService_Update_KeepsUnsetFields(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	tr := &Test{PatientID: uuid.New(), Result: ResultPositive, Status: StatusCompleted, Confidence: 95, ParasiteSpecies: "Parasitized"}
	if err := svc.Create(ctx, tr); err != nil {
		t.Fatalf("create: %v", err)
	}

	upd := &Test{ID: tr.ID, AdditionalNotes: "reviewed"}
	if err := svc.Update(ctx, upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Result != ResultPositive || upd.Status != StatusCompleted || upd.Confidence != 95 {
		t.Errorf("partial update changed stored fields: %+v", upd)
	}
	if upd.ParasiteSpecies != "Parasitized" || upd.AdditionalNotes != "reviewed" {
		t.Errorf("unexpected merged test: %+v", upd)
	}

	stats, err := svc.Stats(ctx, Filter{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PositiveTests != 1 {
		t.Errorf("expected the test to stay positive, got %+v", stats)
	}
}

func TestService_Update_Errors(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	tr := &Test{PatientID: uuid.New(), Result: ResultNegative, Confidence: 60}
	if err := svc.Create(ctx, tr); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Update(ctx, &Test{ID: uuid.New(), AdditionalNotes: "x"}); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := svc.Update(ctx, &Test{ID: tr.ID, Result: "maybe"}); err == nil {
		t.Error("expected error for invalid result")
	}
	if err := svc.Update(ctx, &Test{ID: tr.ID, Confidence: 150}); err == nil {
		t.Error("expected error for confidence above 100")
	}
	got, _ := svc.Get(ctx, tr.ID)
	if got.Result != ResultNegative || got.Confidence != 60 {
		t.Errorf("rejected update changed the stored test: %+v", got)
	}
}
