package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/adpilot-inc/adpilot-engine/pkg/config"
	"github.com/adpilot-inc/adpilot-engine/pkg/database"
	"github.com/adpilot-inc/adpilot-engine/pkg/handlers"
	"github.com/adpilot-inc/adpilot-engine/pkg/logging"
	"github.com/adpilot-inc/adpilot-engine/pkg/metaapi"
	"github.com/adpilot-inc/adpilot-engine/pkg/repositories"
	"github.com/adpilot-inc/adpilot-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("database", cfg.Database.Host),
		zap.String("redis", cfg.Redis.Host),
		zap.String("meta_base_url", cfg.Meta.BaseURL))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Migrations run over a throwaway database/sql connection; the
	// application itself talks to Postgres through the pgx pool.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	apiClient := metaapi.NewClient(&cfg.Meta, logger)

	// Repositories
	ruleRepo := repositories.NewRuleRepository(db)
	decisionRepo := repositories.NewDecisionRepository(db)
	accountRepo := repositories.NewAccountRepository(db)
	metricRepo := repositories.NewMetricRepository(db)

	// Services
	ruleService := services.NewRuleService(ruleRepo, logger)
	syncService := services.NewSyncService(accountRepo, apiClient, redisClient, cfg.Redis.SnapshotTTL(), logger)
	executionService := services.NewExecutionService(decisionRepo, apiClient, cfg.Automation.DefaultCampaignBudget, logger)
	decisionService := services.NewDecisionService(decisionRepo, executionService, logger)
	sweepService := services.NewSweepService(ruleRepo, metricRepo, syncService, decisionService, apiClient, &cfg.Automation, logger)

	if cfg.Automation.SeedRulesPath != "" {
		seedUser, err := uuid.Parse(cfg.Automation.SeedUserID)
		if err != nil {
			logger.Fatal("AUTOMATION_SEED_USER_ID must be a UUID when a seed file is configured", zap.Error(err))
		}
		seeding := services.NewSeedingService(ruleService, logger)
		if _, err := seeding.LoadRuleFile(ctx, seedUser, cfg.Automation.SeedRulesPath); err != nil {
			logger.Fatal("Failed to load seed rules", zap.Error(err))
		}
	}

	mux := http.NewServeMux()

	// Register handlers
	healthHandler := handlers.NewHealthHandler(cfg, db, logger)
	healthHandler.RegisterRoutes(mux)

	ruleHandler := handlers.NewRuleHandler(ruleService, logger)
	ruleHandler.RegisterRoutes(mux)

	decisionHandler := handlers.NewDecisionHandler(decisionService, logger)
	decisionHandler.RegisterRoutes(mux)

	automationHandler := handlers.NewAutomationHandler(sweepService, &cfg.Automation, logger)
	automationHandler.RegisterRoutes(mux)

	metricsHandler := handlers.NewMetricsHandler(metricRepo, cfg.Automation.MetricsWindowDays, logger)
	metricsHandler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.BindAddr + ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("Starting adpilot-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
