package reports

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	Update(ctx context.Context, r *Report) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Report, int, error)
	ListAll(ctx context.Context, f Filter) ([]*Report, error)
	MarkPosted(ctx context.Context, id uuid.UUID) (*Report, error)
}
