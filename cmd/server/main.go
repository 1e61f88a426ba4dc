package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reclaimarr/reclaimarr/internal/api"
	"github.com/reclaimarr/reclaimarr/internal/clock"
	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/db"
	"github.com/reclaimarr/reclaimarr/internal/eventbus"
	"github.com/reclaimarr/reclaimarr/internal/integration"
	"github.com/reclaimarr/reclaimarr/internal/logger"
	"github.com/reclaimarr/reclaimarr/internal/metrics"
	"github.com/reclaimarr/reclaimarr/internal/notifier"
	"github.com/reclaimarr/reclaimarr/internal/services"
)

func main() {
	// A .env file next to the binary is optional; real environment
	// variables always win.
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables (RECLAIMARR_*)
	flagPort := flag.String("port", "", "HTTP server port (env: RECLAIMARR_PORT, default: 8585)")
	flagBasePath := flag.String("base-path", "", "URL base path for reverse proxy (env: RECLAIMARR_BASE_PATH, default: /)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: RECLAIMARR_LOG_LEVEL, default: info)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: RECLAIMARR_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: RECLAIMARR_DATABASE_PATH)")
	flagDryRun := flag.Bool("dry-run", false, "Dry run mode - log deletions without performing them (env: RECLAIMARR_DRY_RUN)")
	flagMovieDays := flag.Int("movie-retention-days", 0, "Movie age threshold in days (env: RECLAIMARR_MOVIE_RETENTION_DAYS, default: 7)")
	flagSeasonDays := flag.Int("season-retention-days", 0, "Season age threshold in days (env: RECLAIMARR_SEASON_RETENTION_DAYS, default: 28)")
	flagRequestTimeout := flag.Duration("request-timeout", 0, "Timeout for catalog and manager API calls (env: RECLAIMARR_REQUEST_TIMEOUT, default: 30s)")
	flagRetentionDays := flag.Int("retention-days", -1, "Days to keep old runs and events, 0 to disable pruning (env: RECLAIMARR_RETENTION_DAYS, default: 90)")
	flagRateLimitRPS := flag.Float64("arr-rate-limit", 0, "Max requests per second to collaborator APIs (env: RECLAIMARR_ARR_RATE_LIMIT_RPS, default: 5)")
	flagRateLimitBurst := flag.Int("arr-rate-burst", 0, "Burst size for collaborator rate limiting (env: RECLAIMARR_ARR_RATE_LIMIT_BURST, default: 10)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("Reclaimarr %s\n", config.Version)
		os.Exit(0)
	}

	config.Load()

	flagOverrides := config.FlagOverrides{
		Port:                flagPort,
		BasePath:            flagBasePath,
		LogLevel:            flagLogLevel,
		DataDir:             flagDataDir,
		DatabasePath:        flagDatabasePath,
		DryRunMode:          flagDryRun,
		MovieRetentionDays:  flagMovieDays,
		SeasonRetentionDays: flagSeasonDays,
		RequestTimeout:      flagRequestTimeout,
		ArrRateLimitRPS:     flagRateLimitRPS,
		ArrRateLimitBurst:   flagRateLimitBurst,
	}
	// Retention days: -1 means not set (use default), 0 means disable pruning
	if *flagRetentionDays >= 0 {
		flagOverrides.RetentionDays = flagRetentionDays
	}
	config.ApplyFlags(flagOverrides)

	cfg := config.Get()

	logger.Init(cfg.LogDir)
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting Reclaimarr %s...", config.Version)
	logger.Infof("Retention scanning and reclaiming for your media stack")
	logger.Infof("========================================")

	logger.Infof("Configuration:")
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Database: %s", cfg.DatabasePath)
	logger.Infof("  Log Directory: %s", cfg.LogDir)
	logger.Infof("  Movie Retention: %d days", cfg.MovieRetentionDays)
	logger.Infof("  Season Retention: %d days", cfg.SeasonRetentionDays)
	logger.Infof("  Request Timeout: %s", cfg.RequestTimeout)
	logger.Infof("  API Rate Limit: %.1f req/s (burst: %d)", cfg.ArrRateLimitRPS, cfg.ArrRateLimitBurst)
	if cfg.RetentionDays > 0 {
		logger.Infof("  Data Retention: %d days", cfg.RetentionDays)
	} else {
		logger.Infof("  Data Retention: disabled (no automatic pruning)")
	}
	if cfg.DryRunMode {
		logger.Infof("  ⚠️  DRY-RUN MODE: ENABLED (no files will be deleted)")
	}

	logger.Infof("Initializing database: %s", cfg.DatabasePath)
	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Infof("✓ Database initialized successfully")

	// Create a database backup on startup
	if backupPath, err := repo.Backup(cfg.DatabasePath); err != nil {
		logger.Errorf("Failed to create startup backup: %v", err)
	} else {
		logger.Infof("✓ Database backup created: %s", backupPath)
	}

	// Scheduled backup every 6 hours
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := repo.Backup(cfg.DatabasePath); err != nil {
				logger.Errorf("Scheduled backup failed: %v", err)
			}
		}
	}()

	// Daily maintenance at 3 AM local time
	go func() {
		retentionDays := cfg.RetentionDays
		for {
			now := time.Now()
			next3AM := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next3AM) {
				next3AM = next3AM.Add(24 * time.Hour)
			}
			sleepDuration := next3AM.Sub(now)
			logger.Debugf("Next database maintenance scheduled in %v", sleepDuration)

			time.Sleep(sleepDuration)

			if err := repo.RunMaintenance(retentionDays); err != nil {
				logger.Errorf("Scheduled maintenance failed: %v", err)
			}
		}
	}()

	stopCheckpoints := repo.StartPeriodicCheckpoint(5 * time.Minute)
	defer stopCheckpoints()

	// Load base path from database if not set via environment
	config.LoadBasePathFromDB(repo.DB)
	cfg = config.Get()
	logger.Infof("  Base Path: %s (source: %s)", cfg.BasePath, cfg.BasePathSource)

	logger.Infof("Initializing Event Bus...")
	eb := eventbus.NewEventBus(repo.DB)
	logger.Infof("✓ Event Bus initialized")

	logger.Infof("Initializing service registry (Jellyfin/Radarr/Sonarr clients)...")
	registry, err := integration.NewRegistry(repo.DB)
	if err != nil {
		logger.Errorf("Failed to initialize service registry: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Service registry initialized")

	logger.Infof("Initializing core services...")
	clk := clock.NewRealClock()

	exclusionService := services.NewExclusionService(repo.DB, eb)
	logger.Infof("✓ Exclusion Service (pins items against deletion)")

	scanService := services.NewScanService(repo.DB, registry, exclusionService, eb, clk)
	logger.Infof("✓ Scan Service (evaluates retention policy against the catalog)")

	orchestrator := services.NewOrchestrator(repo.DB, registry, eb, clk)
	logger.Infof("✓ Deletion Orchestrator (processes deletion batches)")

	logger.Infof("Initializing Notification Service...")
	notifierService := notifier.NewNotifier(repo.DB, eb)
	if err := notifierService.Start(); err != nil {
		logger.Errorf("Failed to start notification service: %v", err)
		// Non-fatal - continue without notifications
	} else {
		logger.Infof("✓ Notification Service (alerts for events)")
	}

	logger.Infof("Initializing Metrics Service...")
	metricsService := metrics.NewMetricsService(eb)
	metricsService.Start()
	logger.Infof("✓ Metrics Service (Prometheus endpoint at /metrics)")

	logger.Infof("Initializing REST API and WebSocket server...")
	apiServer := api.NewRESTServer(api.ServerDeps{
		DB:           repo.DB,
		EventBus:     eb,
		Registry:     registry,
		Source:       registry,
		Scanner:      scanService,
		Orchestrator: orchestrator,
		Exclusions:   exclusionService,
		Notifier:     notifierService,
		Metrics:      metricsService,
	})
	go func() {
		addr := ":" + cfg.Port
		if err := apiServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to start API server: %v", err)
			os.Exit(1)
		}
	}()

	logger.Infof("========================================")
	logger.Infof("✓ Reclaimarr %s started successfully", config.Version)
	logger.Infof("✓ Server listening on port %s", cfg.Port)
	if cfg.BasePath != "/" {
		logger.Infof("✓ API available at base path: %s", cfg.BasePath)
	}
	logger.Infof("========================================")

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Infof("========================================")
	logger.Infof("Received signal %v, initiating graceful shutdown...", sig)
	logger.Infof("========================================")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown in reverse order of startup
	logger.Infof("Stopping Notification Service...")
	notifierService.Stop()
	logger.Infof("✓ Notification Service stopped")

	logger.Infof("Stopping Event Bus...")
	eb.Shutdown()
	logger.Infof("✓ Event Bus stopped")

	logger.Infof("Stopping API Server...")
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API Server shutdown error: %v", err)
	} else {
		logger.Infof("✓ API Server stopped")
	}

	logger.Infof("Closing database connection...")
	if err := repo.GracefulClose(); err != nil {
		logger.Errorf("Failed to close database connection: %v", err)
	} else {
		logger.Infof("✓ Database connection closed")
	}

	logger.Infof("========================================")
	logger.Infof("✓ Reclaimarr shutdown complete")
	logger.Infof("========================================")
}
