package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readmit/readmit/internal/platform/apperr"
	"github.com/readmit/readmit/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `patient_id, name, age, gender, mobile_number, condition, clinical_info`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.PatientID, &p.Name, &p.Age, &p.Gender, &p.MobileNumber, &p.Condition, &p.ClinicalInfo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "patient not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, patientID string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient_reference WHERE patient_id = $1`, patientID))
}

func (r *patientRepoPG) ListAssignedTo(ctx context.Context, userID uuid.UUID) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.patient_id, p.name, p.age, p.gender, p.mobile_number, p.condition, p.clinical_info
		FROM patient_reference p
		JOIN assignments a ON a.patient_id = p.patient_id
		WHERE a.user_id = $1
		ORDER BY p.patient_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) IsAssigned(ctx context.Context, userID uuid.UUID, patientID string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM assignments WHERE user_id = $1 AND patient_id = $2)`,
		userID, patientID).Scan(&exists)
	return exists, err
}

func (r *patientRepoPG) Assign(ctx context.Context, userID uuid.UUID, patientID string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO assignments (id, user_id, patient_id) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		uuid.New(), userID, patientID)
	return err
}

const followUpCols = `id, patient_id, user_id, notes, follow_up_type, status, follow_up_date, created_at`

func scanFollowUp(row pgx.Row) (*FollowUp, error) {
	var f FollowUp
	err := row.Scan(&f.ID, &f.PatientID, &f.UserID, &f.Notes, &f.FollowUpType, &f.Status, &f.FollowUpDate, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "follow-up not found")
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *patientRepoPG) CreateFollowUp(ctx context.Context, f *FollowUp) error {
	f.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO follow_ups (id, patient_id, user_id, notes, follow_up_type, status, follow_up_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.PatientID, f.UserID, f.Notes, f.FollowUpType, f.Status, f.FollowUpDate)
	return err
}

func (r *patientRepoPG) GetFollowUp(ctx context.Context, id uuid.UUID) (*FollowUp, error) {
	return scanFollowUp(r.conn(ctx).QueryRow(ctx,
		`SELECT `+followUpCols+` FROM follow_ups WHERE id = $1`, id))
}

func (r *patientRepoPG) ListFollowUps(ctx context.Context, patientID string) ([]*FollowUp, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+followUpCols+` FROM follow_ups
		WHERE patient_id = $1 ORDER BY follow_up_date DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*FollowUp
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) UpdateFollowUpStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE follow_ups SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "follow-up not found")
	}
	return nil
}
