package predictions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prediction, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Prediction, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// ListByPatient returns the patient's samples, newest first, each with its
// predictions.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Sample, error) {
	return s.repo.ListSamplesByPatient(ctx, patientID)
}

func (s *Service) Stats(ctx context.Context, f Filter) (Stats, error) {
	items, err := s.repo.ListAll(ctx, f)
	if err != nil {
		return Stats{}, fmt.Errorf("prediction stats: %w", err)
	}
	return ComputeStats(items), nil
}

func (s *Service) History(ctx context.Context, f HistoryFilter) ([]*HistoryEntry, error) {
	return s.repo.History(ctx, f)
}

// Weekly covers predictions since the start of the day seven days ago.
func (s *Service) Weekly(ctx context.Context, doctorID *uuid.UUID) ([]DayCount, error) {
	y, m, d := s.now().AddDate(0, 0, -7).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	items, err := s.repo.ListAll(ctx, Filter{DoctorID: doctorID, Start: &start})
	if err != nil {
		return nil, fmt.Errorf("weekly predictions: %w", err)
	}
	return WeeklyCounts(items), nil
}
