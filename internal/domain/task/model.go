package task

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Task is a unit of work one user assigns to another, usually tied to a
// patient (call back, review labs, schedule a visit).
type Task struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	PatientID   *string    `db:"patient_id" json:"patient_id,omitempty"`
	AssignedBy  uuid.UUID  `db:"assigned_by" json:"assigned_by"`
	AssignedTo  uuid.UUID  `db:"assigned_to" json:"assigned_to"`
	Status      string     `db:"status" json:"status"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
