package tests

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Test) error
	GetByID(ctx context.Context, id uuid.UUID) (*Test, error)
	Update(ctx context.Context, t *Test) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Test, int, error)
	ListAll(ctx context.Context, f Filter) ([]*Test, error)
	MarkPosted(ctx context.Context, id uuid.UUID, at time.Time) (*Test, error)
	SetImageURL(ctx context.Context, id uuid.UUID, url string) error
}
