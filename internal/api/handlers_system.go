package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// formatUptime returns a human-readable uptime string
func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// checkDatabaseHealth checks database connectivity and returns status
func (s *RESTServer) checkDatabaseHealth(ctx context.Context) (gin.H, bool) {
	dbHealth := gin.H{"status": "connected"}
	healthy := true

	if err := s.db.PingContext(ctx); err != nil {
		healthy = false
		dbHealth["status"] = "error"
		dbHealth["error"] = err.Error()
	} else {
		dbPath := config.Get().DatabasePath
		if info, err := os.Stat(dbPath); err == nil {
			dbHealth["size_bytes"] = info.Size()
		}
	}

	return dbHealth, healthy
}

// serviceCounts returns how many service instances are configured and how
// many of those are enabled.
func (s *RESTServer) serviceCounts(ctx context.Context) (total, enabled int) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(enabled), 0) FROM service_instances")
	if err := row.Scan(&total, &enabled); err != nil {
		logger.Debugf("Failed to count service instances: %v", err)
	}
	return total, enabled
}

// handleHealth returns server health status for container orchestration.
// This endpoint must return quickly (within 5 seconds) for Docker healthchecks.
func (s *RESTServer) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, dbHealthy := s.checkDatabaseHealth(ctx)
	total, enabled := s.serviceCounts(ctx)

	status := "healthy"
	if !dbHealthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"version":           config.Version,
		"uptime":            formatUptime(time.Since(s.startTime)),
		"database":          dbHealth,
		"services":          gin.H{"configured": total, "enabled": enabled},
		"eligible_items":    len(s.scanner.Eligible()),
		"websocket_clients": s.hub.ClientCount(),
	})
}

// SystemInfo contains runtime environment information
type SystemInfo struct {
	Version     string           `json:"version"`
	Environment string           `json:"environment"` // "docker" or "native"
	OS          string           `json:"os"`
	Arch        string           `json:"arch"`
	GoVersion   string           `json:"go_version"`
	Uptime      string           `json:"uptime"`
	UptimeSecs  int64            `json:"uptime_seconds"`
	StartedAt   time.Time        `json:"started_at"`
	Config      SystemConfigInfo `json:"config"`
}

// SystemConfigInfo contains configuration details
type SystemConfigInfo struct {
	Port                string `json:"port"`
	BasePath            string `json:"base_path"`
	BasePathSource      string `json:"base_path_source"`
	LogLevel            string `json:"log_level"`
	DataDir             string `json:"data_dir"`
	DatabasePath        string `json:"database_path"`
	LogDir              string `json:"log_dir"`
	DryRunMode          bool   `json:"dry_run_mode"`
	MovieRetentionDays  int    `json:"movie_retention_days"`
	SeasonRetentionDays int    `json:"season_retention_days"`
	ScanLimit           int    `json:"scan_limit"`
	RetentionDays       int    `json:"retention_days"`
	RequestTimeout      string `json:"request_timeout"`
}

// isDockerEnvironment detects whether the process runs inside a container.
func isDockerEnvironment() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return os.Getenv("RECLAIMARR_DOCKER") == "true"
}

// handleSystemInfo returns runtime environment information
func (s *RESTServer) handleSystemInfo(c *gin.Context) {
	cfg := config.Get()
	uptime := time.Since(s.startTime)

	environment := "native"
	if isDockerEnvironment() {
		environment = "docker"
	}

	c.JSON(http.StatusOK, SystemInfo{
		Version:     config.Version,
		Environment: environment,
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		GoVersion:   runtime.Version(),
		Uptime:      formatUptime(uptime),
		UptimeSecs:  int64(uptime.Seconds()),
		StartedAt:   s.startTime,
		Config: SystemConfigInfo{
			Port:                cfg.Port,
			BasePath:            cfg.BasePath,
			BasePathSource:      cfg.BasePathSource,
			LogLevel:            cfg.LogLevel,
			DataDir:             cfg.DataDir,
			DatabasePath:        cfg.DatabasePath,
			LogDir:              cfg.LogDir,
			DryRunMode:          cfg.DryRunMode,
			MovieRetentionDays:  cfg.MovieRetentionDays,
			SeasonRetentionDays: cfg.SeasonRetentionDays,
			ScanLimit:           cfg.ScanLimit,
			RetentionDays:       cfg.RetentionDays,
			RequestTimeout:      cfg.RequestTimeout.String(),
		},
	})
}

// handleRecentLogs returns the in-memory ring buffer of recent log entries.
func (s *RESTServer) handleRecentLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		limit = 100
	}
	c.JSON(http.StatusOK, logger.Recent(limit))
}
