package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/readmit/readmit/internal/domain/patient"
	"github.com/readmit/readmit/internal/domain/user"
	"github.com/readmit/readmit/internal/platform/auth"
	"github.com/readmit/readmit/internal/platform/db"
)

// globalPool is the shared test database, initialized once in TestMain.
// Tests are skipped entirely when TEST_DATABASE_URL is not set.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		fmt.Fprintln(os.Stderr, "TEST_DATABASE_URL not set; skipping integration tests")
		os.Exit(0)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to test database: %v\n", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ping test database: %v\n", err)
		os.Exit(1)
	}

	migrator := db.NewMigrator(pool, findMigrationsDir())
	if _, err := migrator.Up(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "run migrations: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	os.Exit(code)
}

// findMigrationsDir locates the migrations directory relative to this file.
func findMigrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
}

func requireDB(t *testing.T) {
	t.Helper()
	if globalPool == nil {
		t.Skip("no test database")
	}
}

func createTestUser(t *testing.T, ctx context.Context, username, role string) auth.Actor {
	t.Helper()
	hash, err := auth.HashPassword("test-password-123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &user.User{
		Username:           username,
		Email:              username + "@example.org",
		PasswordHash:       hash,
		Role:               role,
		MustChangePassword: false,
	}
	if err := user.NewUserRepoPG(globalPool).Create(ctx, u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	t.Cleanup(func() {
		_, _ = globalPool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, u.ID)
	})
	return auth.Actor{ID: u.ID, Username: u.Username, Role: u.Role}
}

func createTestPatient(t *testing.T, ctx context.Context, patientID, name string) {
	t.Helper()
	_, err := globalPool.Exec(ctx, `
		INSERT INTO patient_reference (patient_id, name, age, gender, condition)
		VALUES ($1, $2, 67, 'female', 'heart')`, patientID, name)
	if err != nil {
		t.Fatalf("create patient %s: %v", patientID, err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = globalPool.Exec(ctx, `DELETE FROM escalations WHERE patient_id = $1`, patientID)
		_, _ = globalPool.Exec(ctx, `DELETE FROM predictions WHERE patient_id = $1`, patientID)
		_, _ = globalPool.Exec(ctx, `DELETE FROM follow_ups WHERE patient_id = $1`, patientID)
		_, _ = globalPool.Exec(ctx, `DELETE FROM assignments WHERE patient_id = $1`, patientID)
		_, _ = globalPool.Exec(ctx, `DELETE FROM patient_reference WHERE patient_id = $1`, patientID)
	})
}

func assignPatient(t *testing.T, ctx context.Context, userID uuid.UUID, patientID string) {
	t.Helper()
	if err := patient.NewPatientRepoPG(globalPool).Assign(ctx, userID, patientID); err != nil {
		t.Fatalf("assign patient: %v", err)
	}
}

func uniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
