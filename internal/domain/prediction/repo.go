package prediction

import (
	"context"

	"github.com/readmit/readmit/internal/domain/risk"
)

type PredictionRepository interface {
	Create(ctx context.Context, p *Prediction) error
	LatestForPatient(ctx context.Context, patientID string) (*Prediction, error)
	LatestRisks(ctx context.Context, patientIDs []string) (map[string]risk.Level, error)
	// SetLatestRisk overrides the risk on the patient's most recent
	// prediction row. Used when an escalation decision changes the level.
	SetLatestRisk(ctx context.Context, patientID string, level risk.Level) error
	ListForPatient(ctx context.Context, patientID string, limit int) ([]*Prediction, error)
}
