package patient

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	GetByID(ctx context.Context, patientID string) (*Patient, error)
	ListAssignedTo(ctx context.Context, userID uuid.UUID) ([]*Patient, error)
	IsAssigned(ctx context.Context, userID uuid.UUID, patientID string) (bool, error)
	Assign(ctx context.Context, userID uuid.UUID, patientID string) error

	CreateFollowUp(ctx context.Context, f *FollowUp) error
	GetFollowUp(ctx context.Context, id uuid.UUID) (*FollowUp, error)
	ListFollowUps(ctx context.Context, patientID string) ([]*FollowUp, error)
	UpdateFollowUpStatus(ctx context.Context, id uuid.UUID, status string) error
}
