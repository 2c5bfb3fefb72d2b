package analytics

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// CountPatients counts patients registered by createdBy, or all when nil.
	CountPatients(ctx context.Context, createdBy *uuid.UUID) (int, error)
	CountUsers(ctx context.Context) (total, doctors int, err error)
	InsertActivity(ctx context.Context, a *ActivityLog) error
	ListActivity(ctx context.Context, limit int) ([]*ActivityLog, error)
}
