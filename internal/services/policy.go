package services

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/db"
	"github.com/reclaimarr/reclaimarr/internal/domain"
)

// Settings keys for retention thresholds.
const (
	settingMovieRetentionDays  = "retention_movie_days"
	settingSeasonRetentionDays = "retention_season_days"
)

// LoadPolicy returns the active retention policy: values persisted in the
// settings table, falling back to the configured defaults.
func LoadPolicy(database *sql.DB) domain.RetentionPolicy {
	cfg := config.Get()
	policy := domain.RetentionPolicy{
		MovieDays:  cfg.MovieRetentionDays,
		SeasonDays: cfg.SeasonRetentionDays,
	}

	if v, ok := loadIntSetting(database, settingMovieRetentionDays); ok {
		policy.MovieDays = v
	}
	if v, ok := loadIntSetting(database, settingSeasonRetentionDays); ok {
		policy.SeasonDays = v
	}
	return policy
}

// SavePolicy persists the retention thresholds to the settings table.
func SavePolicy(database *sql.DB, policy domain.RetentionPolicy) error {
	if policy.MovieDays < 0 || policy.SeasonDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	if err := saveIntSetting(database, settingMovieRetentionDays, policy.MovieDays); err != nil {
		return err
	}
	return saveIntSetting(database, settingSeasonRetentionDays, policy.SeasonDays)
}

func loadIntSetting(database *sql.DB, key string) (int, bool) {
	var value string
	err := database.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

func saveIntSetting(database *sql.DB, key string, value int) error {
	_, err := db.ExecWithRetry(database,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, strconv.Itoa(value))
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}
