package predictions

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Prediction, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Prediction, int, error)
	ListAll(ctx context.Context, f Filter) ([]*Prediction, error)
	ListSamplesByPatient(ctx context.Context, patientID uuid.UUID) ([]*Sample, error)
	History(ctx context.Context, f HistoryFilter) ([]*HistoryEntry, error)
}
