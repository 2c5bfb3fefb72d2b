package appointments

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List orders by appointment date, earliest first. limit <= 0 means all.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	Cancel(ctx context.Context, id uuid.UUID, reason *string) (*Appointment, error)
}
