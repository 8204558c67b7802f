package escalation

import (
	"time"

	"github.com/google/uuid"

	"github.com/readmit/readmit/internal/domain/risk"
)

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Escalation is a request to change a patient's risk classification.
// Records are append-only: a row is written once at creation and mutated
// exactly once by the admin decision, never deleted.
type Escalation struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     string     `db:"patient_id" json:"patient_id"`
	RequestedBy   uuid.UUID  `db:"requested_by" json:"requested_by"`
	OldRisk       risk.Level `db:"old_risk" json:"old_risk"`
	NewRisk       risk.Level `db:"new_risk" json:"new_risk"`
	Description   string     `db:"description" json:"description"`
	Status        string     `db:"status" json:"status"`
	RejectionNote *string    `db:"rejection_note" json:"rejection_note,omitempty"`
	DecidedBy     *uuid.UUID `db:"decided_by" json:"decided_by,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Pending reports whether the escalation is still awaiting a decision.
func (e *Escalation) Pending() bool { return e.Status == StatusPending }

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Status      string
	PatientID   string
	RequestedBy uuid.UUID
}

// Event types handed to the notification sink.
const (
	EventCreated  = "escalation.created"
	EventAccepted = "escalation.accepted"
	EventRejected = "escalation.rejected"
)

// Event describes an escalation transition for one recipient. Delivery is
// the sink's concern; a failed hand-off never rolls back the transition.
type Event struct {
	Type         string    `json:"type"`
	EscalationID uuid.UUID `json:"escalation_id"`
	PatientID    string    `json:"patient_id"`
	Recipient    uuid.UUID `json:"recipient"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}
