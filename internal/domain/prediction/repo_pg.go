package prediction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readmit/readmit/internal/domain/risk"
	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type predictionRepoPG struct{ pool *pgxpool.Pool }

func NewPredictionRepoPG(pool *pgxpool.Pool) PredictionRepository {
	return &predictionRepoPG{pool: pool}
}

func (r *predictionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const predictionCols = `id, patient_id, requested_by, condition, predicted_class, predicted_probability, risk, explanation, input, created_at`

func scanPrediction(row pgx.Row) (*Prediction, error) {
	var p Prediction
	err := row.Scan(&p.ID, &p.PatientID, &p.RequestedBy, &p.Condition, &p.PredictedClass,
		&p.PredictedProbability, &p.Risk, &p.Explanation, &p.Input, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "prediction not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *predictionRepoPG) Create(ctx context.Context, p *Prediction) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO predictions (`+predictionCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.PatientID, p.RequestedBy, p.Condition, p.PredictedClass,
		p.PredictedProbability, p.Risk, p.Explanation, p.Input, p.CreatedAt)
	return err
}

func (r *predictionRepoPG) LatestForPatient(ctx context.Context, patientID string) (*Prediction, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+predictionCols+` FROM predictions
		WHERE patient_id = $1
		ORDER BY created_at DESC, id ASC
		LIMIT 1`, patientID)
	return scanPrediction(row)
}

func (r *predictionRepoPG) LatestRisks(ctx context.Context, patientIDs []string) (map[string]risk.Level, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT ON (patient_id) patient_id, risk
		FROM predictions
		WHERE patient_id = ANY($1)
		ORDER BY patient_id, created_at DESC, id ASC`, patientIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]risk.Level, len(patientIDs))
	for rows.Next() {
		var id string
		var level risk.Level
		if err := rows.Scan(&id, &level); err != nil {
			return nil, err
		}
		out[id] = level
	}
	return out, rows.Err()
}

func (r *predictionRepoPG) SetLatestRisk(ctx context.Context, patientID string, level risk.Level) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE predictions SET risk = $2
		WHERE id = (
			SELECT id FROM predictions
			WHERE patient_id = $1
			ORDER BY created_at DESC, id ASC
			LIMIT 1
		)`, patientID, level)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "no prediction on record for patient %s", patientID)
	}
	return nil
}

func (r *predictionRepoPG) ListForPatient(ctx context.Context, patientID string, limit int) ([]*Prediction, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+predictionCols+` FROM predictions
		WHERE patient_id = $1
		ORDER BY created_at DESC, id ASC
		LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
