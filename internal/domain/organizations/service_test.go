package organizations

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/platform/db"
)

type mockOrgRepo struct {
	items map[uuid.UUID]*Organization
}

func (m *mockOrgRepo) Create(_ context.Context, o *Organization) error {
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	m.items[o.ID] = o
	return nil
}

func (m *mockOrgRepo) GetByID(_ context.Context, id uuid.UUID) (*Organization, error) {
	o, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrgRepo) List(_ context.Context) ([]*Organization, error) {
	var out []*Organization
	for _, o := range m.items {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type mockDoctorRepo struct {
	items map[uuid.UUID]*Doctor
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return d, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	for _, d := range m.items {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockDoctorRepo) ListByOrg(_ context.Context, orgID uuid.UUID, active *bool, status string) ([]*Doctor, error) {
	var out []*Doctor
	for _, d := range m.items {
		if d.OrgID == nil || *d.OrgID != orgID {
			continue
		}
		if active != nil && d.IsActive != *active {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockDoctorRepo) Approve(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	d.IsActive = true
	d.Status = DoctorActive
	return d, nil
}

func (m *mockDoctorRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockDoctorRepo) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	d, ok := m.items[id]
	if !ok {
		return db.ErrNotFound
	}
	d.LastLogin = &at
	return nil
}

func newTestService() (*Service, *mockDoctorRepo) {
	doctors := &mockDoctorRepo{items: make(map[uuid.UUID]*Doctor)}
	svc := NewService(&mockOrgRepo{items: make(map[uuid.UUID]*Organization)}, doctors)
	svc.code = func() (string, error) { return "ABCD2345", nil }
	return svc, doctors
}

func addDoctor(repo *mockDoctorRepo, org uuid.UUID, name string, active bool) *Doctor {
	d := &Doctor{ID: uuid.New(), UserID: uuid.New(), OrgID: &org, Name: name, IsActive: active, Status: DoctorPending}
	if active {
		d.Status = DoctorActive
	}
	repo.items[d.ID] = d
	return d
}

func TestGenerateSecretCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateSecretCode()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("expected %d characters, got %q", codeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("unexpected character %q in %q", r, code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("expected codes to vary")
	}
}

func TestService_CreateAndVerify(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if err := svc.Create(ctx, &Organization{Name: "  "}); err == nil {
		t.Error("expected error for blank name")
	}

	o := &Organization{Name: " Lagos General "}
	if err := svc.Create(ctx, o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Name != "Lagos General" || o.SecretCode != "ABCD2345" {
		t.Errorf("unexpected organization %+v", o)
	}

	for code, want := range map[string]bool{"ABCD2345": true, "abcd2345": true, " abcd2345 ": true, "ABCD2346": false, "": false} {
		got, err := svc.VerifySecretCode(ctx, o.ID, code)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("VerifySecretCode(%q) = %v, want %v", code, got, want)
		}
	}

	got, err := svc.VerifySecretCode(ctx, uuid.New(), "ABCD2345")
	if err != nil || got {
		t.Errorf("expected unknown organization not to match, got %v %v", got, err)
	}
}

func TestService_ListHidesSecret(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.Create(ctx, &Organization{Name: "B"})
	svc.Create(ctx, &Organization{Name: "A"})

	items, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].Name != "A" {
		t.Fatalf("unexpected list %+v", items)
	}
	for _, o := range items {
		if o.SecretCode != "" {
			t.Error("expected secret code to be cleared")
		}
	}
	got, _ := svc.Get(ctx, items[0].ID)
	if got.SecretCode == "" {
		t.Error("expected Get to keep the secret code")
	}
}

func TestService_DoctorApproval(t *testing.T) {
	svc, doctors := newTestService()
	ctx := context.Background()
	org, other := uuid.New(), uuid.New()

	pending := addDoctor(doctors, org, "Dr. Bello", false)
	addDoctor(doctors, org, "Dr. Adeyemi", true)
	foreign := addDoctor(doctors, other, "Dr. Chen", false)

	list, _ := svc.PendingDoctors(ctx, org)
	if len(list) != 1 || list[0].ID != pending.ID {
		t.Fatalf("expected one pending doctor, got %d", len(list))
	}

	if _, err := svc.ApproveDoctor(ctx, org, foreign.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found for another organization's doctor, got %v", err)
	}

	d, err := svc.ApproveDoctor(ctx, org, pending.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.IsActive || d.Status != DoctorActive {
		t.Errorf("expected active doctor, got %+v", d)
	}

	list, _ = svc.ListApprovedDoctors(ctx, org)
	if len(list) != 2 || list[0].Name != "Dr. Adeyemi" {
		t.Errorf("expected two approved doctors ordered by name, got %d", len(list))
	}
	list, _ = svc.PendingDoctors(ctx, org)
	if len(list) != 0 {
		t.Errorf("expected no pending doctors, got %d", len(list))
	}
}

func TestService_RejectDoctor(t *testing.T) {
	svc, doctors := newTestService()
	ctx := context.Background()
	org := uuid.New()
	d := addDoctor(doctors, org, "Dr. Bello", false)

	if err := svc.RejectDoctor(ctx, uuid.New(), d.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := svc.RejectDoctor(ctx, org, d.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := doctors.items[d.ID]; ok {
		t.Error("expected doctor to be removed")
	}
}

func TestService_RecordLogin(t *testing.T) {
	svc, doctors := newTestService()
	at := time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }
	d := addDoctor(doctors, uuid.New(), "Dr. Bello", true)

	if err := svc.RecordLogin(context.Background(), d.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.LastLogin == nil || !d.LastLogin.Equal(at) {
		t.Errorf("expected last login %v, got %v", at, d.LastLogin)
	}
}
