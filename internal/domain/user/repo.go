package user

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, mustChange bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
}
