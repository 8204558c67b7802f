package escalation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EscalationRepository is the sole mutator of escalation records.
type EscalationRepository interface {
	// Create persists a new pending escalation. Returns Conflict when the
	// patient already has one pending.
	Create(ctx context.Context, e *Escalation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Escalation, error)
	// List returns escalations matching the filter, most recent first,
	// ties broken by id ascending, plus the total match count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Escalation, int, error)
	ListForPatient(ctx context.Context, patientID string) ([]*Escalation, error)
	// Decide is a compare-and-set on status == pending. It reports false
	// when the row was not pending (or does not exist), in which case
	// nothing was written.
	Decide(ctx context.Context, id uuid.UUID, status string, note *string, decidedBy uuid.UUID, at time.Time) (bool, error)
}
