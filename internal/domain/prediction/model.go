package prediction

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/readmit/readmit/internal/domain/risk"
)

// Supported prediction conditions. Each maps to a model endpoint on the
// external scoring service.
var SupportedConditions = map[string]bool{
	"heart":        true,
	"diabetes":     true,
	"stroke":       true,
	"hypertension": true,
}

// Prediction is one persisted model output for a patient. The latest row
// per patient is the patient's current risk.
type Prediction struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	PatientID            string          `db:"patient_id" json:"patient_id"`
	RequestedBy          uuid.UUID       `db:"requested_by" json:"requested_by"`
	Condition            string          `db:"condition" json:"condition"`
	PredictedClass       int             `db:"predicted_class" json:"predicted_class"`
	PredictedProbability float64         `db:"predicted_probability" json:"predicted_probability"`
	Risk                 risk.Level      `db:"risk" json:"risk"`
	Explanation          *string         `db:"explanation" json:"explanation,omitempty"`
	Input                json.RawMessage `db:"input" json:"input,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}
