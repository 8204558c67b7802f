package patient

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/readmit/readmit/internal/domain/risk"
)

// Patient maps to the patient_reference table. Patient identifiers come
// from the upstream hospital system and are treated as opaque strings.
type Patient struct {
	PatientID    string           `db:"patient_id" json:"patient_id"`
	Name         string           `db:"name" json:"name"`
	Age          int              `db:"age" json:"age"`
	Gender       string           `db:"gender" json:"gender"`
	MobileNumber string           `db:"mobile_number" json:"mobile_number"`
	Condition    string           `db:"condition" json:"condition"`
	ClinicalInfo *json.RawMessage `db:"clinical_info" json:"clinical_info,omitempty"`
}

// Assignment links a clinician to a patient they are responsible for.
type Assignment struct {
	ID         uuid.UUID `db:"id" json:"id"`
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	PatientID  string    `db:"patient_id" json:"patient_id"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
}

// FollowUp statuses and contact types.
const (
	FollowUpPending   = "pending"
	FollowUpUpcoming  = "upcoming"
	FollowUpCompleted = "completed"
	FollowUpCancelled = "cancelled"
)

// FollowUp is a scheduled post-discharge contact with a patient.
type FollowUp struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    string    `db:"patient_id" json:"patient_id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	Notes        *string   `db:"notes" json:"notes,omitempty"`
	FollowUpType *string   `db:"follow_up_type" json:"follow_up_type,omitempty"`
	Status       string    `db:"status" json:"status"`
	FollowUpDate time.Time `db:"follow_up_date" json:"follow_up_date"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AssignedPatient is the list row for a clinician's dashboard: patient
// reference data plus the latest predicted risk.
type AssignedPatient struct {
	PatientID    string     `json:"patient_id"`
	Name         string     `json:"name"`
	Age          int        `json:"age"`
	Gender       string     `json:"gender"`
	MobileNumber string     `json:"mobile_number"`
	Condition    string     `json:"condition"`
	Risk         risk.Level `json:"risk"`
}

// PredictionSummary is the slice of a prediction embedded in patient detail.
type PredictionSummary struct {
	Risk                 risk.Level `json:"risk"`
	PredictedProbability float64    `json:"predicted_probability"`
	PredictedClass       int        `json:"predicted_class"`
}
