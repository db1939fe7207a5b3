package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vitalsuite/claims/internal/config"
	"github.com/vitalsuite/claims/internal/domain/adjudication"
	"github.com/vitalsuite/claims/internal/domain/catalog"
	"github.com/vitalsuite/claims/internal/domain/ledger"
	"github.com/vitalsuite/claims/internal/domain/membership"
	"github.com/vitalsuite/claims/internal/platform/auth"
	"github.com/vitalsuite/claims/internal/platform/db"
	"github.com/vitalsuite/claims/internal/platform/middleware"
	"github.com/vitalsuite/claims/internal/platform/notification"
	"github.com/vitalsuite/claims/internal/platform/sequence"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "claims-server",
		Short: "Medical aid claims adjudication server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adjudicateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the adjudication API server",
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
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	return cmd
}

// adjudicateCmd runs the automatic pipeline over pending claims from the
// command line, for operators draining a backlog without the HTTP surface.
func adjudicateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adjudicate",
		Short: "Adjudicate pending claims in a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			app := buildEngines(pool, cfg, logger)
			defer app.close()

			ids, err := app.claims.ListIDsByStatus(ctx, adjudication.ClaimNew, limit)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No pending claims.")
				return nil
			}

			summary := app.auto.ProcessBatch(ctx, ids)
			fmt.Printf("Processed %d claim(s): %d approved, %d declined, %d pending review, %d pending clinical, %d error(s).\n",
				summary.Processed, summary.Approved, summary.Declined,
				summary.PendingReview, summary.PendingClinical, len(summary.Errors))
			for _, e := range summary.Errors {
				fmt.Printf("  %s: %s\n", e.ClaimID, e.Error)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 100, "Maximum number of claims to process")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// app bundles the wired engines and the repositories the HTTP handler and
// batch command need, so serve and adjudicate share one construction path.
type app struct {
	auto     *adjudication.AutoEngine
	manual   *adjudication.ManualEngine
	claims   adjudication.ClaimRepository
	results  adjudication.ResultRepository
	notifier notification.Dispatcher
}

func (a *app) close() {
	if d, ok := a.notifier.(*notification.AMQPDispatcher); ok {
		d.Close()
	}
}

func buildEngines(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) *app {
	memberRepo := membership.NewPgRepository(pool)
	catalogRepo := catalog.NewPgRepository(pool)
	oracle := NewEligibilityAdapter(memberRepo, catalogRepo, pool)

	seq := sequence.NewPG(pool)
	accountRepo := ledger.NewPgAccountRepository(pool)
	txnRepo := ledger.NewPgTransactionRepository(pool)
	ledgerSvc := ledger.NewService(accountRepo, txnRepo, seq, logger)

	claimRepo := adjudication.NewPgClaimRepository(pool)
	requestRepo := adjudication.NewPgServiceRequestRepository(pool)
	resultRepo := adjudication.NewPgResultRepository(pool)
	ruleRepo := adjudication.NewPgRuleRepository(pool)

	// Outcome notifications go to AMQP when configured; otherwise they
	// collect in memory, which is fine for development.
	var notifier notification.Dispatcher
	if cfg.AMQPURL != "" {
		d, err := notification.DialAMQP(cfg.AMQPURL, cfg.NotifyExchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to AMQP broker")
		}
		notifier = d
	} else {
		logger.Warn().Msg("AMQP_URL not set; outcome notifications are in-memory only")
		notifier = notification.NewMemory()
	}

	thresholds := adjudication.Thresholds{
		ClaimMaxAgeDays:         cfg.ClaimMaxAgeDays,
		HighValueThreshold:      decimal.NewFromFloat(cfg.HighValueThreshold),
		ProviderDailyClaimLimit: cfg.ProviderDailyClaimLimit,
		SameDayClaimLimit:       cfg.SameDayClaimLimit,
		AnomalyMultiplier:       cfg.AnomalyMultiplier,
		AuthExpiryDays:          cfg.AuthExpiryDays,
	}

	runner := db.NewPoolRunner(pool)
	auto := adjudication.NewAutoEngine(adjudication.AutoEngineDeps{
		Claims:    claimRepo,
		Requests:  requestRepo,
		Results:   resultRepo,
		Rules:     ruleRepo,
		Oracle:    oracle,
		Ledger:    ledgerSvc,
		Runner:    runner,
		Sequences: seq,
		Notifier:  notifier,
	}, thresholds, logger)

	manual := adjudication.NewManualEngine(adjudication.ManualEngineDeps{
		Claims:   claimRepo,
		Results:  resultRepo,
		Ledger:   ledgerSvc,
		Auto:     auto,
		Runner:   runner,
		Notifier: notifier,
	}, thresholds, logger)

	return &app{
		auto:     auto,
		manual:   manual,
		claims:   claimRepo,
		results:  resultRepo,
		notifier: notifier,
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	app := buildEngines(pool, cfg, logger)
	defer app.close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(cfg.AuthSecret))
	}

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	handler := adjudication.NewHandler(app.auto, app.manual, app.results, app.claims)
	handler.RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
