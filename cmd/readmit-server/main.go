package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/readmit/readmit/internal/config"
	"github.com/readmit/readmit/internal/domain/escalation"
	"github.com/readmit/readmit/internal/domain/notification"
	"github.com/readmit/readmit/internal/domain/patient"
	"github.com/readmit/readmit/internal/domain/prediction"
	"github.com/readmit/readmit/internal/domain/risk"
	"github.com/readmit/readmit/internal/domain/task"
	"github.com/readmit/readmit/internal/domain/user"
	"github.com/readmit/readmit/internal/platform/audit"
	"github.com/readmit/readmit/internal/platform/auth"
	"github.com/readmit/readmit/internal/platform/db"
	"github.com/readmit/readmit/internal/platform/middleware"
	"github.com/readmit/readmit/internal/platform/predictor"
)

// PredictionReaderAdapter adapts the prediction service to the
// patient.PredictionReader interface, avoiding a circular import between
// the patient and prediction packages.
type PredictionReaderAdapter struct {
	svc *prediction.Service
}

func (a *PredictionReaderAdapter) LatestSummary(ctx context.Context, patientID string) (*patient.PredictionSummary, error) {
	p, err := a.svc.Latest(ctx, patientID)
	if err != nil || p == nil {
		return nil, err
	}
	return &patient.PredictionSummary{
		Risk:                 p.Risk,
		PredictedProbability: p.PredictedProbability,
		PredictedClass:       p.PredictedClass,
	}, nil
}

func (a *PredictionReaderAdapter) LatestRisks(ctx context.Context, patientIDs []string) (map[string]risk.Level, error) {
	return a.svc.LatestRisks(ctx, patientIDs)
}

// NotificationSinkAdapter turns escalation events into in-app
// notifications.
type NotificationSinkAdapter struct {
	svc *notification.Service
}

func (a *NotificationSinkAdapter) Publish(ctx context.Context, ev escalation.Event) error {
	var title string
	switch ev.Type {
	case escalation.EventCreated:
		title = "Escalation pending review"
	case escalation.EventAccepted:
		title = "Escalation accepted"
	case escalation.EventRejected:
		title = "Escalation rejected"
	default:
		title = "Escalation update"
	}
	return a.svc.Notify(ctx, []uuid.UUID{ev.Recipient}, title, ev.Message)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "readmit-server",
		Short: "Readmission risk dashboard API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

// createAdminCmd bootstraps the first administrator. Registration through
// the API requires an existing admin, so the very first one is seeded from
// the command line.
func createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			u := &user.User{
				Username:           username,
				Email:              email,
				PasswordHash:       hash,
				Role:               auth.RoleAdmin,
				MustChangePassword: true,
			}
			if err := user.NewUserRepoPG(pool).Create(ctx, u); err != nil {
				return err
			}
			fmt.Printf("Admin %q created (id %s). The password must be changed on first login.\n", username, u.ID)
			return nil
		},
	}
	cmd.Flags().String("username", "", "Admin username")
	cmd.Flags().String("email", "", "Admin email")
	cmd.Flags().String("password", "", "Initial password")
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Shared platform pieces
	auditLog := audit.NewLog(audit.NewPGRecorder(pool), logger)
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.TokenTTL)

	// Repositories
	userRepo := user.NewUserRepoPG(pool)
	patientRepo := patient.NewPatientRepoPG(pool)
	predictionRepo := prediction.NewPredictionRepoPG(pool)
	escalationRepo := escalation.NewEscalationRepoPG(pool)
	taskRepo := task.NewTaskRepoPG(pool)
	notificationRepo := notification.NewNotificationRepoPG(pool)

	// Services
	userSvc := user.NewService(userRepo, tokens)
	notificationSvc := notification.NewService(notificationRepo)
	predictionSvc := prediction.NewService(predictionRepo, predictor.NewClient(cfg.PredictorURL))
	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	escalationSvc := escalation.NewService(
		escalationRepo,
		patientRepo,
		predictionSvc,
		&NotificationSinkAdapter{svc: notificationSvc},
		userSvc,
		inTx,
		logger,
	)
	patientSvc := patient.NewService(patientRepo, &PredictionReaderAdapter{svc: predictionSvc}, escalationSvc)
	taskSvc := task.NewService(taskRepo, notificationSvc, logger)

	// Route groups: /api/v1 requires auth, public carries login and health.
	public := e.Group("/api/v1")
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() && cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_SECRET unset; running with development auth, all requests are admin")
		apiV1.Use(auth.DevMiddleware())
	} else {
		apiV1.Use(auth.Middleware([]byte(cfg.JWTSecret)))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Handlers
	user.NewHandler(userSvc, auditLog).RegisterRoutes(public, apiV1)
	patient.NewHandler(patientSvc, auditLog).RegisterRoutes(apiV1)
	prediction.NewHandler(predictionSvc, auditLog).RegisterRoutes(apiV1)
	escalation.NewHandler(escalationSvc, auditLog).RegisterRoutes(apiV1)
	task.NewHandler(taskSvc, auditLog).RegisterRoutes(apiV1)
	notification.NewHandler(notificationSvc).RegisterRoutes(apiV1)

	// Health check
	e.GET("/health", db.HealthHandler(pool))

	// Start
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	return nil
}
