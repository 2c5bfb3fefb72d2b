package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/malariadx/malariadx/internal/domain/tests"
	"github.com/malariadx/malariadx/internal/session"
)

// TestSource lists test results. tests.Repository satisfies it.
type TestSource interface {
	ListAll(ctx context.Context, f tests.Filter) ([]*tests.Test, error)
}

type Service struct {
	repo   Repository
	tests  TestSource
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, src TestSource, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tests: src, logger: logger, now: time.Now}
}

// scope narrows a test filter to what the caller may see. For patients id
// is the patient record; for doctors it is the user.
func scope(f *tests.Filter, id uuid.UUID, role session.Role) {
	switch role {
	case session.RoleDoctor:
		f.DoctorID = &id
	case session.RolePatient:
		f.PatientID = &id
	}
}

// DashboardStats summarises the last DashboardWindowDays of tests. Patient
// counts cover every patient the doctor registered, or all patients for
// admins, and are zero for patients.
func (s *Service) DashboardStats(ctx context.Context, id uuid.UUID, role session.Role) (DashboardStats, error) {
	since := s.now().AddDate(0, 0, -DashboardWindowDays)
	f := tests.Filter{Start: &since}
	scope(&f, id, role)

	items, err := s.tests.ListAll(ctx, f)
	if err != nil {
		return DashboardStats{}, err
	}
	st := tests.ComputeStats(items)
	out := DashboardStats{
		TotalTests:        st.TotalTests,
		PositiveTests:     st.PositiveTests,
		NegativeTests:     st.NegativeTests,
		AverageConfidence: st.AverageConfidence,
	}

	switch role {
	case session.RoleDoctor:
		out.TotalPatients, err = s.repo.CountPatients(ctx, &id)
	case session.RoleAdmin:
		out.TotalPatients, err = s.repo.CountPatients(ctx, nil)
	}
	return out, err
}

// TestTrends counts tests per day over the last days days.
func (s *Service) TestTrends(ctx context.Context, id uuid.UUID, role session.Role, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = DefaultTrendDays
	}
	if days > MaxTrendDays {
		days = MaxTrendDays
	}
	since := s.now().AddDate(0, 0, -days)
	f := tests.Filter{Start: &since}
	scope(&f, id, role)

	items, err := s.tests.ListAll(ctx, f)
	if err != nil {
		return nil, err
	}
	return Trends(items), nil
}

// SystemStats reports platform-wide totals. The three sources are read
// concurrently.
func (s *Service) SystemStats(ctx context.Context) (SystemStats, error) {
	var (
		out   SystemStats
		items []*tests.Test
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.tests.ListAll(ctx, tests.Filter{})
		return err
	})
	g.Go(func() error {
		var err error
		out.TotalUsers, out.TotalDoctors, err = s.repo.CountUsers(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.TotalPatients, err = s.repo.CountPatients(ctx, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return SystemStats{}, fmt.Errorf("system stats: %w", err)
	}
	out.TotalTests = len(items)
	out.PositiveRate = PositiveRate(items)
	return out, nil
}

func (s *Service) ActivityLogs(ctx context.Context, limit int) ([]*ActivityLog, error) {
	if limit <= 0 {
		limit = DefaultActivityRows
	}
	if limit > MaxActivityRows {
		limit = MaxActivityRows
	}
	return s.repo.ListActivity(ctx, limit)
}

func (s *Service) LogActivity(ctx context.Context, userID *uuid.UUID, action string, details map[string]interface{}) (*ActivityLog, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, fmt.Errorf("action is required")
	}
	a := &ActivityLog{UserID: userID, Action: action, Details: details}
	if err := s.repo.InsertActivity(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Record logs an activity, warning instead of returning an error.
func (s *Service) Record(ctx context.Context, userID uuid.UUID, action string, details map[string]interface{}) {
	uid := &userID
	if userID == uuid.Nil {
		uid = nil
	}
	if _, err := s.LogActivity(ctx, uid, action, details); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Str("user_id", userID.String()).Msg("activity log write failed")
	}
}
