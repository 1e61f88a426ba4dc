package integration

import (
	"context"
	"time"

	"github.com/reclaimarr/reclaimarr/internal/domain"
)

// Service instance type constants, as stored in service_instances.type.
const (
	ServiceTypeCatalog = "catalog"
	ServiceTypeRadarr  = "radarr"
	ServiceTypeSonarr  = "sonarr"
)

// ServiceInfo represents a configured external service instance.
type ServiceInfo struct {
	ID      int64
	Name    string
	Type    string // catalog, radarr, sonarr
	URL     string
	APIKey  string
	Enabled bool
}

// CatalogClient reads from the media catalog (Jellyfin-compatible API).
// The catalog is the source of truth for what exists and when it was added;
// Reclaimarr never writes to it.
type CatalogClient interface {
	// ListEntries returns catalog entries of the given kinds. A limit of 0
	// means no limit.
	ListEntries(ctx context.Context, kinds []domain.Kind, limit int) ([]domain.CatalogEntry, error)
	// GetEntriesByIDs returns the entries for the given catalog item IDs.
	// IDs the catalog does not know are simply absent from the result.
	GetEntriesByIDs(ctx context.Context, ids []string) ([]domain.CatalogEntry, error)
	// ImageURL returns the primary image URL for an entry, or "" if none.
	ImageURL(entry domain.CatalogEntry) string
	Ping(ctx context.Context) error
}

// MovieManager is the movie acquisition manager (Radarr-compatible API).
type MovieManager interface {
	ListMovies(ctx context.Context) ([]domain.MovieRecord, error)
	// DeleteMovie removes the movie record and its files.
	DeleteMovie(ctx context.Context, movieID int64) error
	Ping(ctx context.Context) error
}

// SeriesManager is the series acquisition manager (Sonarr-compatible API).
type SeriesManager interface {
	ListSeries(ctx context.Context) ([]domain.SeriesRecord, error)
	ListEpisodes(ctx context.Context, seriesID int64) ([]domain.EpisodeRecord, error)
	// DeleteEpisodeFile removes a single episode file record and its file.
	DeleteEpisodeFile(ctx context.Context, episodeFileID int64) error
	Calendar(ctx context.Context, from, to time.Time) ([]domain.UpcomingEpisode, error)
	Ping(ctx context.Context) error
}
