package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrEmailTaken is returned when a sign-up reuses an email address.
var ErrEmailTaken = errors.New("email already registered")

type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	CreateDoctor(ctx context.Context, d *Doctor) error
	GetDoctorByUser(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	UpdateDoctor(ctx context.Context, d *Doctor) error

	CreateAdmin(ctx context.Context, a *Admin) error
	GetAdminByUser(ctx context.Context, userID uuid.UUID) (*Admin, error)
	UpdateAdmin(ctx context.Context, a *Admin) error
}
