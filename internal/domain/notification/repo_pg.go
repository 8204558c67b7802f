package notification

import (
	"context"
	"errors"
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

type notificationRepoPG struct{ pool *pgxpool.Pool }

func NewNotificationRepoPG(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepoPG{pool: pool}
}

func (r *notificationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const notificationCols = `id, title, message, recipients, read_by, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.Title, &n.Message, &n.Recipients, &n.ReadBy, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "notification not found")
	}
	if err != nil {
		return nil, err
	}
	if n.ReadBy == nil {
		n.ReadBy = []uuid.UUID{}
	}
	return &n, nil
}

func (r *notificationRepoPG) Create(ctx context.Context, n *Notification) error {
	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	if n.ReadBy == nil {
		n.ReadBy = []uuid.UUID{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notifications (`+notificationCols+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.Title, n.Message, n.Recipients, n.ReadBy, n.CreatedAt)
	return err
}

func (r *notificationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+notificationCols+` FROM notifications WHERE id = $1`, id)
	return scanNotification(row)
}

func (r *notificationRepoPG) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT count(*) FROM notifications WHERE $1 = ANY(recipients)`, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+notificationCols+` FROM notifications
		WHERE $1 = ANY(recipients)
		ORDER BY created_at DESC, id ASC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

func (r *notificationRepoPG) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE notifications
		SET read_by = array_append(read_by, $2)
		WHERE id = $1 AND $2 = ANY(recipients) AND NOT ($2 = ANY(read_by))`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either unknown id, not a recipient, or already read. Disambiguate
		// so already-read stays idempotent.
		n, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		for _, rec := range n.Recipients {
			if rec == userID {
				return nil
			}
		}
		return apperr.New(apperr.Forbidden, "notification is not addressed to you")
	}
	return nil
}
