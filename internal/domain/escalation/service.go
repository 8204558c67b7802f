package escalation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/readmit/readmit/internal/domain/risk"
	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/auth"
	"github.com/readmit/readmit/pkg/pagination"
)

// AssignmentChecker answers whether a clinician is responsible for a
// patient. Satisfied by the patient service.
type AssignmentChecker interface {
	IsAssigned(ctx context.Context, userID uuid.UUID, patientID string) (bool, error)
}

// RiskStore holds each patient's current risk level. Mutated only here,
// on accept, inside the decision transaction. Satisfied by the prediction
// service.
type RiskStore interface {
	UpdatePatientRisk(ctx context.Context, patientID string, level risk.Level) error
}

// NotificationSink receives transition events. Delivery failures are the
// sink's concern and never roll back a transition.
type NotificationSink interface {
	Publish(ctx context.Context, ev Event) error
}

// AdminDirectory lists the users who can decide escalations, so creation
// events reach them.
type AdminDirectory interface {
	AdminIDs(ctx context.Context) ([]uuid.UUID, error)
}

// TxRunner executes fn atomically. The production runner is db.WithTx over
// the shared pool.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo        EscalationRepository
	assignments AssignmentChecker
	risks       RiskStore
	sink        NotificationSink
	admins      AdminDirectory
	inTx        TxRunner
	log         zerolog.Logger
}

func NewService(repo EscalationRepository, assignments AssignmentChecker, risks RiskStore,
	sink NotificationSink, admins AdminDirectory, inTx TxRunner, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		assignments: assignments,
		risks:       risks,
		sink:        sink,
		admins:      admins,
		inTx:        inTx,
		log:         log,
	}
}

// canCreate: only the clinician currently assigned to the patient may
// request a risk change for that patient.
func (s *Service) canCreate(ctx context.Context, actor auth.Actor, patientID string) error {
	assigned, err := s.assignments.IsAssigned(ctx, actor.ID, patientID)
	if err != nil {
		return err
	}
	if !assigned {
		return apperr.New(apperr.Forbidden, "you are not assigned to patient %s", patientID)
	}
	return nil
}

// canDecide: deciding requires administrative capability.
func (s *Service) canDecide(actor auth.Actor) error {
	if !actor.IsAdmin() {
		return apperr.New(apperr.Forbidden, "only admins can decide escalations")
	}
	return nil
}

// CreateInput carries the fields for filing an escalation.
type CreateInput struct {
	PatientID   string     `json:"patient_id"`
	OldRisk     risk.Level `json:"old_risk"`
	NewRisk     risk.Level `json:"new_risk"`
	Description string     `json:"description"`
}

// Create files a pending escalation. At most one escalation per patient may
// be pending; a second create while one is open fails with Conflict.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Escalation, error) {
	if in.PatientID == "" {
		return nil, apperr.New(apperr.Validation, "patient_id is required")
	}
	if !in.OldRisk.Valid() {
		return nil, apperr.New(apperr.Validation, "old_risk must be one of low, medium, high")
	}
	if !in.NewRisk.Valid() {
		return nil, apperr.New(apperr.Validation, "new_risk must be one of low, medium, high")
	}
	if in.NewRisk == in.OldRisk {
		return nil, apperr.New(apperr.Validation, "new_risk must differ from old_risk")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, apperr.New(apperr.Validation, "description is required")
	}
	if err := s.canCreate(ctx, actor, in.PatientID); err != nil {
		return nil, err
	}

	e := &Escalation{
		PatientID:   in.PatientID,
		RequestedBy: actor.ID,
		OldRisk:     in.OldRisk,
		NewRisk:     in.NewRisk,
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.fanOutCreated(ctx, e, actor)
	return e, nil
}

// Get returns one escalation. The requester and admins may view it.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Escalation, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && e.RequestedBy != actor.ID {
		return nil, apperr.New(apperr.Forbidden, "you did not file this escalation")
	}
	return e, nil
}

// List returns escalations matching the filter, newest first. Non-admins
// only ever see their own requests regardless of the filter.
func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter, page pagination.Params) (*pagination.Response, error) {
	if f.Status != "" && f.Status != StatusPending && f.Status != StatusAccepted && f.Status != StatusRejected {
		return nil, apperr.New(apperr.Validation, "invalid status filter: %s", f.Status)
	}
	if !actor.IsAdmin() {
		f.RequestedBy = actor.ID
	}
	list, total, err := s.repo.List(ctx, f, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Escalation{}
	}
	return pagination.NewResponse(list, total, page.Limit, page.Offset), nil
}

// HistoryForPatient is the read-only escalation trail embedded in patient
// profiles.
func (s *Service) HistoryForPatient(ctx context.Context, patientID string) ([]*Escalation, error) {
	return s.repo.ListForPatient(ctx, patientID)
}

// Decision is what an admin submits for a pending escalation.
type Decision struct {
	Accept        bool
	RejectionNote string
}

// Decide resolves a pending escalation. The transition is a compare-and-set
// on status == pending, so concurrent decisions produce exactly one winner;
// the loser gets InvalidState. On accept the risk-store update joins the
// same transaction: if it fails, the escalation stays pending.
func (s *Service) Decide(ctx context.Context, actor auth.Actor, id uuid.UUID, d Decision) (*Escalation, error) {
	if err := s.canDecide(actor); err != nil {
		return nil, err
	}

	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.Pending() {
		return nil, apperr.New(apperr.InvalidState, "escalation is already %s", e.Status)
	}

	status := StatusAccepted
	var note *string
	if !d.Accept {
		trimmed := strings.TrimSpace(d.RejectionNote)
		if trimmed == "" {
			return nil, apperr.New(apperr.Validation, "rejection_note is required when rejecting")
		}
		status = StatusRejected
		note = &trimmed
	}

	now := time.Now().UTC()
	err = s.inTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.Decide(ctx, id, status, note, actor.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.InvalidState, "escalation was already decided")
		}
		if d.Accept {
			if err := s.risks.UpdatePatientRisk(ctx, e.PatientID, e.NewRisk); err != nil {
				if apperr.KindOf(err) == apperr.Internal {
					err = apperr.Wrap(apperr.Dependency, err, "risk update failed")
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Status = status
	e.RejectionNote = note
	e.DecidedBy = &actor.ID
	e.UpdatedAt = now

	s.fanOutDecided(ctx, e)
	return e, nil
}

func (s *Service) fanOutCreated(ctx context.Context, e *Escalation, actor auth.Actor) {
	adminIDs, err := s.admins.AdminIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("escalation_id", e.ID.String()).Msg("resolving admin recipients failed")
		return
	}
	msg := fmt.Sprintf("%s requested a risk change for patient %s: %s to %s",
		actor.Username, e.PatientID, e.OldRisk, e.NewRisk)
	for _, recipient := range adminIDs {
		s.publish(ctx, Event{
			Type:         EventCreated,
			EscalationID: e.ID,
			PatientID:    e.PatientID,
			Recipient:    recipient,
			Message:      msg,
			CreatedAt:    e.CreatedAt,
		})
	}
}

func (s *Service) fanOutDecided(ctx context.Context, e *Escalation) {
	evType := EventAccepted
	msg := fmt.Sprintf("Your escalation for patient %s was accepted; risk is now %s", e.PatientID, e.NewRisk)
	if e.Status == StatusRejected {
		evType = EventRejected
		msg = fmt.Sprintf("Your escalation for patient %s was rejected: %s", e.PatientID, *e.RejectionNote)
	}
	s.publish(ctx, Event{
		Type:         evType,
		EscalationID: e.ID,
		PatientID:    e.PatientID,
		Recipient:    e.RequestedBy,
		Message:      msg,
		CreatedAt:    e.UpdatedAt,
	})
}

// publish hands an event to the sink. Failures are logged, never returned:
// the transition is already committed.
func (s *Service) publish(ctx context.Context, ev Event) {
	if err := s.sink.Publish(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", ev.Type).
			Str("escalation_id", ev.EscalationID.String()).
			Msg("notification hand-off failed")
	}
}
