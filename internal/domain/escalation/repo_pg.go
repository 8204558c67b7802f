package escalation

import (
	"context"
	"errors"
	"strconv"
	"time"

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

type escalationRepoPG struct{ pool *pgxpool.Pool }

func NewEscalationRepoPG(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepoPG{pool: pool}
}

func (r *escalationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const escalationCols = `id, patient_id, requested_by, old_risk, new_risk, description, status, rejection_note, decided_by, created_at, updated_at`

func scanEscalation(row pgx.Row) (*Escalation, error) {
	var e Escalation
	err := row.Scan(&e.ID, &e.PatientID, &e.RequestedBy, &e.OldRisk, &e.NewRisk,
		&e.Description, &e.Status, &e.RejectionNote, &e.DecidedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "escalation not found")
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// A partial unique index on (patient_id) WHERE status = 'pending' backs the
// one-pending-per-patient invariant; concurrent creates race on it and the
// loser surfaces here as a unique violation.
func (r *escalationRepoPG) Create(ctx context.Context, e *Escalation) error {
	e.ID = uuid.New()
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Status = StatusPending

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO escalations (`+escalationCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.PatientID, e.RequestedBy, e.OldRisk, e.NewRisk,
		e.Description, e.Status, e.RejectionNote, e.DecidedBy, e.CreatedAt, e.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.New(apperr.Conflict, "patient %s already has a pending escalation", e.PatientID)
	}
	return err
}

func (r *escalationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Escalation, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+escalationCols+` FROM escalations WHERE id = $1`, id)
	return scanEscalation(row)
}

func (r *escalationRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Escalation, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		where += ` AND status = ` + arg(f.Status)
	}
	if f.PatientID != "" {
		where += ` AND patient_id = ` + arg(f.PatientID)
	}
	if f.RequestedBy != uuid.Nil {
		where += ` AND requested_by = ` + arg(f.RequestedBy)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT count(*) FROM escalations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + escalationCols + ` FROM escalations` + where +
		` ORDER BY created_at DESC, id ASC LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *escalationRepoPG) ListForPatient(ctx context.Context, patientID string) ([]*Escalation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+escalationCols+` FROM escalations
		WHERE patient_id = $1
		ORDER BY created_at DESC, id ASC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Decide guards the transition with status = 'pending' in the WHERE clause
// so concurrent decisions serialize on the row: exactly one UPDATE matches.
func (r *escalationRepoPG) Decide(ctx context.Context, id uuid.UUID, status string, note *string, decidedBy uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE escalations
		SET status = $2, rejection_note = $3, decided_by = $4, updated_at = $5
		WHERE id = $1 AND status = 'pending'`,
		id, status, note, decidedBy, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
