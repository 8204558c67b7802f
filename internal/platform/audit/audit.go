// Package audit records every mutating action as an append-only trail in
// Postgres, with a structured-log fallback when the database write fails.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Entry is a single audit record.
type Entry struct {
	ID        uuid.UUID              `json:"id"`
	UserID    *uuid.UUID             `json:"user_id,omitempty"`
	Action    string                 `json:"action"`
	Endpoint  string                 `json:"endpoint,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, e Entry) error

func (f RecorderFunc) Record(ctx context.Context, e Entry) error { return f(ctx, e) }

type pgRecorder struct{ pool *pgxpool.Pool }

// NewPGRecorder returns a Recorder backed by the audit_log table.
func NewPGRecorder(pool *pgxpool.Pool) Recorder {
	return &pgRecorder{pool: pool}
}

func (r *pgRecorder) Record(ctx context.Context, e Entry) error {
	var payload []byte
	if e.Payload != nil {
		payload, _ = json.Marshal(e.Payload)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, user_id, action, endpoint, payload, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.UserID, e.Action, e.Endpoint, payload, e.Timestamp)
	return err
}

// Log writes audit entries through a Recorder. Failures never propagate to
// the caller; an action that succeeded is not rolled back because its audit
// write failed, it is logged instead.
type Log struct {
	rec    Recorder
	logger zerolog.Logger
}

func NewLog(rec Recorder, logger zerolog.Logger) *Log {
	return &Log{rec: rec, logger: logger}
}

// Action records an action performed by a user.
func (l *Log) Action(ctx context.Context, userID *uuid.UUID, action, endpoint string, payload map[string]interface{}) {
	e := Entry{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Endpoint:  endpoint,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if l.rec != nil {
		if err := l.rec.Record(ctx, e); err == nil {
			return
		} else {
			l.logger.Error().Err(err).Str("action", action).Msg("audit record failed")
		}
	}
	evt := l.logger.Info().Str("action", action).Str("endpoint", endpoint)
	if userID != nil {
		evt = evt.Str("user_id", userID.String())
	}
	evt.Msg("audit")
}
