package config

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

// Config holds all application configuration loaded from environment variables.
// All fields have sensible defaults if environment variables are not set.
type Config struct {
	// Port is the HTTP server listen port (default: 8585)
	Port string

	// BasePath is the URL base path for reverse proxy setups (default: "/")
	// Example: "/reclaimarr" if hosting at domain.com/reclaimarr/
	BasePath string

	// BasePathSource indicates where the base path came from: "environment", "database", or "default"
	BasePathSource string

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string

	// MovieRetentionDays is the default movie age threshold in days (default: 7)
	// Persisted policy settings in the database override this at runtime.
	MovieRetentionDays int

	// SeasonRetentionDays is the default season age threshold in days (default: 28)
	SeasonRetentionDays int

	// RequestTimeout bounds every call to the catalog and acquisition
	// manager APIs (default: 30s). A timed-out call surfaces as a failed
	// outcome for that item, never a hang.
	RequestTimeout time.Duration

	// ScanLimit caps how many catalog entries a scan requests per kind (default: 0 = no cap)
	ScanLimit int

	// DryRunMode when true, logs deletion actions without calling the
	// acquisition managers (default: false)
	DryRunMode bool

	// ArrRateLimitRPS is the maximum requests per second to collaborator APIs (default: 5)
	ArrRateLimitRPS float64

	// ArrRateLimitBurst is the burst size for collaborator rate limiting (default: 10)
	ArrRateLimitBurst int

	// RetentionDays is the number of days to keep old events, runs and
	// outcome rows (default: 90). Set to 0 to disable automatic pruning.
	RetentionDays int

	// DataDir is the directory for persistent data (database, logs, backups)
	// Default: /config in Docker, ./config locally
	DataDir string

	// DatabasePath is the SQLite database file path (default: <DataDir>/reclaimarr.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string
}

// Global singleton
var cfg *Config

// Load reads configuration from environment variables with sensible defaults.
// Should be called once at application startup.
func Load() *Config {
	basePath := getEnvOrDefault("RECLAIMARR_BASE_PATH", "")
	basePathSource := "default"

	if basePath != "" {
		basePathSource = "environment"
	} else {
		basePath = "/"
	}
	basePath = normalizeBasePath(basePath)

	// DataDir is where all persistent data lives.
	// Docker images ship a /config volume; bare metal falls back to ./config.
	dataDir := getEnvOrDefault("RECLAIMARR_DATA_DIR", "")
	if dataDir == "" {
		if info, err := os.Stat("/config"); err == nil && info.IsDir() {
			dataDir = "/config"
		} else if execPath, err := os.Executable(); err == nil {
			dataDir = filepath.Join(filepath.Dir(execPath), "config")
		} else if cwd, err := os.Getwd(); err == nil {
			dataDir = filepath.Join(cwd, "config")
		} else {
			dataDir = "./config"
		}
	}
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}
	os.MkdirAll(dataDir, 0755)

	dbPath := getEnvOrDefault("RECLAIMARR_DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "reclaimarr.db")
	}

	logDir := filepath.Join(dataDir, "logs")
	os.MkdirAll(logDir, 0755)

	cfg = &Config{
		Port:                getEnvOrDefault("RECLAIMARR_PORT", "8585"),
		BasePath:            basePath,
		BasePathSource:      basePathSource,
		LogLevel:            strings.ToLower(getEnvOrDefault("RECLAIMARR_LOG_LEVEL", "info")),
		MovieRetentionDays:  getEnvIntOrDefault("RECLAIMARR_MOVIE_RETENTION_DAYS", 7),
		SeasonRetentionDays: getEnvIntOrDefault("RECLAIMARR_SEASON_RETENTION_DAYS", 28),
		RequestTimeout:      getEnvDurationOrDefault("RECLAIMARR_REQUEST_TIMEOUT", 30*time.Second),
		ScanLimit:           getEnvIntOrDefault("RECLAIMARR_SCAN_LIMIT", 0),
		DryRunMode:          getEnvBoolOrDefault("RECLAIMARR_DRY_RUN", false),
		ArrRateLimitRPS:     getEnvFloatOrDefault("RECLAIMARR_ARR_RATE_LIMIT_RPS", 5.0),
		ArrRateLimitBurst:   getEnvIntOrDefault("RECLAIMARR_ARR_RATE_LIMIT_BURST", 10),
		RetentionDays:       getEnvIntOrDefault("RECLAIMARR_RETENTION_DAYS", 90),
		DataDir:             dataDir,
		DatabasePath:        dbPath,
		LogDir:              logDir,
	}

	// Validate log level
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		cfg.LogLevel = "info"
	}

	return cfg
}

func normalizeBasePath(basePath string) string {
	if basePath == "/" {
		return basePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimSuffix(basePath, "/")
}

// LoadBasePathFromDB loads the base path from the database if not set via environment.
// Should be called after database is initialized.
func LoadBasePathFromDB(db *sql.DB) {
	if cfg == nil {
		return
	}
	if cfg.BasePathSource == "environment" {
		return
	}

	var basePath string
	err := db.QueryRow("SELECT value FROM settings WHERE key = 'base_path'").Scan(&basePath)
	if err != nil || basePath == "" {
		return // Keep default
	}

	cfg.BasePath = normalizeBasePath(basePath)
	cfg.BasePathSource = "database"
}

// Get returns the current configuration. Panics if Load() hasn't been called.
func Get() *Config {
	if cfg == nil {
		panic("config.Load() must be called before config.Get()")
	}
	return cfg
}

// SetForTesting allows tests to set the global config without calling Load().
// This should ONLY be used in test code.
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a minimal Config suitable for unit tests.
func NewTestConfig() *Config {
	return &Config{
		Port:                "8080",
		BasePath:            "/",
		BasePathSource:      "test",
		LogLevel:            "debug",
		MovieRetentionDays:  7,
		SeasonRetentionDays: 28,
		RequestTimeout:      30 * time.Second,
		ScanLimit:           0,
		DryRunMode:          false,
		ArrRateLimitRPS:     5,
		ArrRateLimitBurst:   10,
		RetentionDays:       90,
		DataDir:             "/tmp/reclaimarr-test",
		DatabasePath:        "/tmp/reclaimarr-test/reclaimarr.db",
		LogDir:              "/tmp/reclaimarr-test/logs",
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable as an int or the default if not set/invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable as a duration or the default if not set/invalid.
// Accepts Go duration strings like "30s", "5m", "2h".
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable as a bool or the default if not set.
// Accepts "true", "1", "yes" as true values (case-insensitive).
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

// getEnvFloatOrDefault returns the environment variable as a float64 or the default if not set/invalid.
func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FlagOverrides holds command-line flag values that can override environment variables
type FlagOverrides struct {
	Port                *string
	BasePath            *string
	LogLevel            *string
	MovieRetentionDays  *int
	SeasonRetentionDays *int
	RequestTimeout      *time.Duration
	DryRunMode          *bool
	ArrRateLimitRPS     *float64
	ArrRateLimitBurst   *int
	RetentionDays       *int
	DataDir             *string
	DatabasePath        *string
}

// ApplyFlags applies command-line flag overrides to the configuration.
// Should be called after Load() and after flag parsing.
// Only non-nil values with non-default flag values will override.
func ApplyFlags(flags FlagOverrides) {
	if cfg == nil {
		return
	}

	if flags.Port != nil && *flags.Port != "" {
		cfg.Port = *flags.Port
	}
	if flags.BasePath != nil && *flags.BasePath != "" {
		cfg.BasePath = normalizeBasePath(*flags.BasePath)
		cfg.BasePathSource = "flag"
	}
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*flags.LogLevel)
	}
	if flags.MovieRetentionDays != nil && *flags.MovieRetentionDays > 0 {
		cfg.MovieRetentionDays = *flags.MovieRetentionDays
	}
	if flags.SeasonRetentionDays != nil && *flags.SeasonRetentionDays > 0 {
		cfg.SeasonRetentionDays = *flags.SeasonRetentionDays
	}
	if flags.RequestTimeout != nil && *flags.RequestTimeout != 0 {
		cfg.RequestTimeout = *flags.RequestTimeout
	}
	if flags.DryRunMode != nil {
		cfg.DryRunMode = *flags.DryRunMode
	}
	if flags.ArrRateLimitRPS != nil && *flags.ArrRateLimitRPS != 0 {
		cfg.ArrRateLimitRPS = *flags.ArrRateLimitRPS
	}
	if flags.ArrRateLimitBurst != nil && *flags.ArrRateLimitBurst != 0 {
		cfg.ArrRateLimitBurst = *flags.ArrRateLimitBurst
	}
	if flags.RetentionDays != nil {
		cfg.RetentionDays = *flags.RetentionDays
	}
	if flags.DataDir != nil && *flags.DataDir != "" {
		cfg.DataDir = *flags.DataDir
	}
	if flags.DatabasePath != nil && *flags.DatabasePath != "" {
		cfg.DatabasePath = *flags.DatabasePath
	}
}
