// Package domain defines the core types shared across Reclaimarr services:
// catalog entries, retention policy, acquisition-manager records, and
// per-item deletion outcomes.
package domain

import (
	"time"
)

// Kind identifies the type of a catalog entry.
type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
	KindSeason Kind = "season"
)

// Provider-identifier keys as reported by the catalog service.
const (
	ProviderTmdb = "Tmdb"
	ProviderTvdb = "Tvdb"
	ProviderImdb = "Imdb"
)

// CatalogEntry is a media item as known by the catalog service.
// Read-only to Reclaimarr; the catalog owns it.
type CatalogEntry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`

	// Season entries only: the series the season belongs to.
	ParentSeriesID   string `json:"parent_series_id,omitempty"`
	ParentSeriesName string `json:"parent_series_name,omitempty"`

	// External provider name -> identifier (e.g. "Tmdb" -> "603").
	ProviderIDs map[string]string `json:"provider_ids,omitempty"`
}

// ProviderID returns the external identifier for the given provider,
// or "" if the entry does not carry one.
func (e *CatalogEntry) ProviderID(provider string) string {
	if e.ProviderIDs == nil {
		return ""
	}
	return e.ProviderIDs[provider]
}

// RetentionPolicy holds the per-kind age thresholds in whole days.
// Immutable for the duration of a scan.
type RetentionPolicy struct {
	MovieDays  int `json:"movie_days"`
	SeasonDays int `json:"season_days"`
}

// DefaultRetentionPolicy returns the out-of-the-box thresholds.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{MovieDays: 7, SeasonDays: 28}
}

// EligibleItem is a catalog entry that passed the retention and exclusion
// checks for one scan, plus its age at evaluation time.
type EligibleItem struct {
	Entry    CatalogEntry `json:"entry"`
	AgeDays  float64      `json:"age_days"`
	ImageURL string       `json:"image_url,omitempty"`
}

// MovieRecord is a movie as known by the movie acquisition manager.
type MovieRecord struct {
	ID     int64  `json:"id"`
	TmdbID int64  `json:"tmdbId"`
	Title  string `json:"title"`
}

// SeriesRecord is a series as known by the series acquisition manager.
type SeriesRecord struct {
	ID     int64  `json:"id"`
	TvdbID int64  `json:"tvdbId"`
	Title  string `json:"title"`
}

// EpisodeRecord is a single episode of a series in the acquisition manager.
// EpisodeFileID is only meaningful when HasFile is true.
type EpisodeRecord struct {
	ID            int64 `json:"id"`
	SeasonNumber  int   `json:"seasonNumber"`
	EpisodeNumber int   `json:"episodeNumber"`
	HasFile       bool  `json:"hasFile"`
	EpisodeFileID int64 `json:"episodeFileId"`
}

// UpcomingEpisode is a calendar entry from the series acquisition manager.
type UpcomingEpisode struct {
	SeriesTitle   string    `json:"series_title"`
	Title         string    `json:"title"`
	SeasonNumber  int       `json:"season_number"`
	EpisodeNumber int       `json:"episode_number"`
	AirDate       time.Time `json:"air_date"`
}

// OutcomeResult classifies the terminal result of processing one item.
type OutcomeResult string

const (
	ResultSucceeded             OutcomeResult = "succeeded"
	ResultSkippedUnconfigured   OutcomeResult = "skipped_unconfigured"
	ResultSkippedNoExternalID   OutcomeResult = "skipped_no_external_id"
	ResultSkippedNoMatch        OutcomeResult = "skipped_no_match"
	ResultSkippedNoSeasonNumber OutcomeResult = "skipped_no_season_number"
	ResultSkippedDryRun         OutcomeResult = "skipped_dry_run"
	ResultPartiallyFailed       OutcomeResult = "partially_failed"
	ResultFailed                OutcomeResult = "failed"
)

// IsFailure reports whether the result counts as a failure for metrics
// and notification purposes. Skips are informational, not failures.
func (r OutcomeResult) IsFailure() bool {
	return r == ResultFailed || r == ResultPartiallyFailed
}

// DeletionOutcome is the record emitted for one processed item.
// Exactly one outcome exists per item of a deletion batch.
type DeletionOutcome struct {
	ItemID    string        `json:"item_id"`
	Title     string        `json:"title"`
	Result    OutcomeResult `json:"result"`
	Detail    string        `json:"detail,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// RunStatus is the lifecycle state of a deletion run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// DeletionRun is the persisted record of one orchestration run.
type DeletionRun struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	ItemCount   int        `json:"item_count"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
