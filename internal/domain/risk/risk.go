// Package risk defines the readmission risk classification shared by the
// prediction, patient, and escalation domains.
package risk

import "fmt"

// Level is a patient's readmission risk classification. It is assigned by
// the prediction pipeline and mutable only through an accepted escalation.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Unknown is reported for patients with no prediction on record.
const Unknown Level = "unknown"

// Valid reports whether l is one of the three assignable levels.
func (l Level) Valid() bool {
	return l == Low || l == Medium || l == High
}

func (l Level) String() string { return string(l) }

// Parse converts a wire value into a Level.
func Parse(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("invalid risk level %q", s)
	}
	return l, nil
}

// Derive maps a model prediction to a risk level. Thresholds follow the
// deployed readmission models: a positive prediction is high risk from 0.85
// probability and medium from 0.6; a negative prediction is at most medium.
func Derive(predictedClass int, probability float64) Level {
	if predictedClass == 1 {
		switch {
		case probability >= 0.85:
			return High
		case probability >= 0.6:
			return Medium
		default:
			return Low
		}
	}
	if probability >= 0.6 {
		return Medium
	}
	return Low
}
