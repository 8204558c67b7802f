package patient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/readmit/readmit/internal/domain/escalation"
	"github.com/readmit/readmit/internal/domain/risk"
	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/auth"
)

// PredictionReader supplies the latest model output per patient. Implemented
// by the prediction domain; patient detail views only need this slice of it.
type PredictionReader interface {
	LatestSummary(ctx context.Context, patientID string) (*PredictionSummary, error)
	LatestRisks(ctx context.Context, patientIDs []string) (map[string]risk.Level, error)
}

// EscalationHistory lists a patient's escalations for the profile view.
type EscalationHistory interface {
	HistoryForPatient(ctx context.Context, patientID string) ([]*escalation.Escalation, error)
}

type Service struct {
	patients    PatientRepository
	predictions PredictionReader
	escalations EscalationHistory
}

func NewService(patients PatientRepository, predictions PredictionReader, escalations EscalationHistory) *Service {
	return &Service{patients: patients, predictions: predictions, escalations: escalations}
}

// IsAssigned reports whether the user is the clinician responsible for the
// patient. This also backs the escalation domain's authorization check.
func (s *Service) IsAssigned(ctx context.Context, userID uuid.UUID, patientID string) (bool, error) {
	return s.patients.IsAssigned(ctx, userID, patientID)
}

// Assign links a clinician to a patient. Admin only.
func (s *Service) Assign(ctx context.Context, actor auth.Actor, userID uuid.UUID, patientID string) error {
	if !actor.IsAdmin() {
		return apperr.New(apperr.Forbidden, "only admins can assign patients")
	}
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return err
	}
	return s.patients.Assign(ctx, userID, patientID)
}

// AssignedPatients returns the actor's patients with their latest risk.
// Patients without a prediction on record report risk "unknown".
func (s *Service) AssignedPatients(ctx context.Context, actor auth.Actor) ([]*AssignedPatient, error) {
	patients, err := s.patients.ListAssignedTo(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return []*AssignedPatient{}, nil
	}

	ids := make([]string, len(patients))
	for i, p := range patients {
		ids[i] = p.PatientID
	}
	risks, err := s.predictions.LatestRisks(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*AssignedPatient, len(patients))
	for i, p := range patients {
		level, ok := risks[p.PatientID]
		if !ok {
			level = risk.Unknown
		}
		out[i] = &AssignedPatient{
			PatientID:    p.PatientID,
			Name:         p.Name,
			Age:          p.Age,
			Gender:       p.Gender,
			MobileNumber: p.MobileNumber,
			Condition:    p.Condition,
			Risk:         level,
		}
	}
	return out, nil
}

// Details is the full patient profile: reference data, follow-ups, the
// latest prediction, and the escalation history (read-only, append-only).
type Details struct {
	Patient
	FollowUps   []*FollowUp              `json:"follow_ups"`
	Prediction  *PredictionSummary       `json:"prediction,omitempty"`
	Escalations []*escalation.Escalation `json:"escalations"`
}

// Details assembles the profile view for one patient. Admins see every
// patient; clinicians only their assigned ones.
func (s *Service) Details(ctx context.Context, actor auth.Actor, patientID string) (*Details, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		assigned, err := s.patients.IsAssigned(ctx, actor.ID, patientID)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, apperr.New(apperr.Forbidden, "patient is not assigned to you")
		}
	}

	followUps, err := s.patients.ListFollowUps(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if followUps == nil {
		followUps = []*FollowUp{}
	}
	summary, err := s.predictions.LatestSummary(ctx, patientID)
	if err != nil {
		return nil, err
	}
	history, err := s.escalations.HistoryForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []*escalation.Escalation{}
	}

	return &Details{
		Patient:     *p,
		FollowUps:   followUps,
		Prediction:  summary,
		Escalations: history,
	}, nil
}

var validFollowUpStatuses = map[string]bool{
	FollowUpPending:   true,
	FollowUpUpcoming:  true,
	FollowUpCompleted: true,
	FollowUpCancelled: true,
}

var validFollowUpTypes = map[string]bool{
	"phone":   true,
	"onsite":  true,
	"virtual": true,
}

// FollowUpInput carries the fields for scheduling a follow-up.
type FollowUpInput struct {
	Notes        *string   `json:"notes"`
	FollowUpType *string   `json:"follow_up_type"`
	Status       string    `json:"status"`
	FollowUpDate time.Time `json:"follow_up_date"`
}

// AddFollowUp schedules a follow-up for the patient.
func (s *Service) AddFollowUp(ctx context.Context, actor auth.Actor, patientID string, in FollowUpInput) (*FollowUp, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = FollowUpUpcoming
	}
	if !validFollowUpStatuses[in.Status] {
		return nil, apperr.New(apperr.Validation, "invalid follow-up status: %s", in.Status)
	}
	if in.FollowUpType != nil && *in.FollowUpType != "" && !validFollowUpTypes[*in.FollowUpType] {
		return nil, apperr.New(apperr.Validation, "invalid follow-up type: %s", *in.FollowUpType)
	}
	if in.FollowUpDate.IsZero() {
		return nil, apperr.New(apperr.Validation, "follow_up_date is required")
	}

	f := &FollowUp{
		PatientID:    patientID,
		UserID:       actor.ID,
		Notes:        in.Notes,
		FollowUpType: in.FollowUpType,
		Status:       in.Status,
		FollowUpDate: in.FollowUpDate,
	}
	if err := s.patients.CreateFollowUp(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateFollowUpStatus moves a follow-up to a new status. Only the clinician
// who scheduled it or an admin may change it.
func (s *Service) UpdateFollowUpStatus(ctx context.Context, actor auth.Actor, id uuid.UUID, status string) (*FollowUp, error) {
	if !validFollowUpStatuses[status] {
		return nil, apperr.New(apperr.Validation, "invalid follow-up status: %s", status)
	}
	f, err := s.patients.GetFollowUp(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && f.UserID != actor.ID {
		return nil, apperr.New(apperr.Forbidden, "you can only update your own follow-ups")
	}
	if err := s.patients.UpdateFollowUpStatus(ctx, id, status); err != nil {
		return nil, err
	}
	f.Status = status
	return f, nil
}
