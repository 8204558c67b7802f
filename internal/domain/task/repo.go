package task

import (
	"context"

	"github.com/google/uuid"
)

type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListAssignedTo(ctx context.Context, userID uuid.UUID, status string) ([]*Task, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}
