package organizations

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
}

type DoctorRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	// ListByOrg returns the org's doctors; active nil means every doctor.
	ListByOrg(ctx context.Context, orgID uuid.UUID, active *bool, status string) ([]*Doctor, error)
	Approve(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Delete(ctx context.Context, id uuid.UUID) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}
