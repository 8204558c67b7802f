package prediction

import (
	"context"
	"encoding/json"

	"github.com/readmit/readmit/internal/domain/risk"
	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/auth"
	"github.com/readmit/readmit/internal/platform/predictor"
)

// Scorer is the slice of the model client the service needs.
type Scorer interface {
	Predict(ctx context.Context, condition string, input map[string]interface{}) (*predictor.Result, error)
}

type Service struct {
	repo   PredictionRepository
	scorer Scorer
}

func NewService(repo PredictionRepository, scorer Scorer) *Service {
	return &Service{repo: repo, scorer: scorer}
}

// Predict scores the given features against the condition's model, derives
// the risk level, and persists the prediction as the patient's latest.
func (s *Service) Predict(ctx context.Context, actor auth.Actor, condition, patientID string, input map[string]interface{}) (*Prediction, error) {
	if !SupportedConditions[condition] {
		return nil, apperr.New(apperr.Validation, "unsupported condition: %s", condition)
	}
	if patientID == "" {
		return nil, apperr.New(apperr.Validation, "patient_id is required")
	}
	if len(input) == 0 {
		return nil, apperr.New(apperr.Validation, "prediction input is required")
	}

	result, err := s.scorer.Predict(ctx, condition, input)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "encode prediction input")
	}
	p := &Prediction{
		PatientID:            patientID,
		RequestedBy:          actor.ID,
		Condition:            condition,
		PredictedClass:       result.PredictedClass,
		PredictedProbability: result.PredictedProbability,
		Risk:                 risk.Derive(result.PredictedClass, result.PredictedProbability),
		Input:                raw,
	}
	if result.Explanation != "" {
		p.Explanation = &result.Explanation
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Latest returns the patient's most recent prediction, or nil when the
// patient has never been scored.
func (s *Service) Latest(ctx context.Context, patientID string) (*Prediction, error) {
	p, err := s.repo.LatestForPatient(ctx, patientID)
	if apperr.IsKind(err, apperr.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LatestRisks returns the current risk level for each patient that has at
// least one prediction.
func (s *Service) LatestRisks(ctx context.Context, patientIDs []string) (map[string]risk.Level, error) {
	return s.repo.LatestRisks(ctx, patientIDs)
}

// History lists the patient's recent predictions, newest first.
func (s *Service) History(ctx context.Context, patientID string, limit int) ([]*Prediction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListForPatient(ctx, patientID, limit)
}

// UpdatePatientRisk overrides the patient's current risk level. Called from
// within an escalation decision transaction so the override commits or
// rolls back with the status change.
func (s *Service) UpdatePatientRisk(ctx context.Context, patientID string, level risk.Level) error {
	if !level.Valid() {
		return apperr.New(apperr.Validation, "invalid risk level: %s", level)
	}
	err := s.repo.SetLatestRisk(ctx, patientID, level)
	if apperr.IsKind(err, apperr.NotFound) {
		return apperr.Wrap(apperr.Dependency, err, "risk store has no record for patient %s", patientID)
	}
	return err
}
