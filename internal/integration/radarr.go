package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// RadarrClient talks to a Radarr-compatible movie acquisition manager.
type RadarrClient struct {
	baseClient
}

// NewRadarrClient creates a movie manager client for the given instance.
func NewRadarrClient(info ServiceInfo, timeout time.Duration, rps float64, burst int) *RadarrClient {
	return &RadarrClient{
		baseClient: newBaseClient(info.Name, info.URL, info.APIKey, "X-Api-Key", timeout, rps, burst),
	}
}

var _ MovieManager = (*RadarrClient)(nil)

// ListMovies fetches the full movie library.
func (c *RadarrClient) ListMovies(ctx context.Context) ([]domain.MovieRecord, error) {
	var movies []domain.MovieRecord
	if err := c.getJSON(ctx, "/api/v3/movie", &movies); err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	logger.Debugf("Fetched %d movies from %s", len(movies), c.name)
	return movies, nil
}

// DeleteMovie removes the movie record and its files from the manager.
func (c *RadarrClient) DeleteMovie(ctx context.Context, movieID int64) error {
	endpoint := fmt.Sprintf("/api/v3/movie/%d?deleteFiles=true&addImportExclusion=false", movieID)
	if err := c.delete(ctx, endpoint); err != nil {
		return fmt.Errorf("delete movie %d: %w", movieID, err)
	}
	logger.Infof("Deleted movie %d from %s", movieID, c.name)
	return nil
}

// Ping checks that the manager is reachable and the API key works.
func (c *RadarrClient) Ping(ctx context.Context) error {
	var status struct {
		AppName string `json:"appName"`
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/api/v3/system/status", &status); err != nil {
		return fmt.Errorf("movie manager ping: %w", err)
	}
	return nil
}
