package integration

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// SonarrClient talks to a Sonarr-compatible series acquisition manager.
type SonarrClient struct {
	baseClient
}

// NewSonarrClient creates a series manager client for the given instance.
func NewSonarrClient(info ServiceInfo, timeout time.Duration, rps float64, burst int) *SonarrClient {
	return &SonarrClient{
		baseClient: newBaseClient(info.Name, info.URL, info.APIKey, "X-Api-Key", timeout, rps, burst),
	}
}

var _ SeriesManager = (*SonarrClient)(nil)

// ListSeries fetches the full series library.
func (c *SonarrClient) ListSeries(ctx context.Context) ([]domain.SeriesRecord, error) {
	var series []domain.SeriesRecord
	if err := c.getJSON(ctx, "/api/v3/series", &series); err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	logger.Debugf("Fetched %d series from %s", len(series), c.name)
	return series, nil
}

// ListEpisodes fetches all episodes of one series.
func (c *SonarrClient) ListEpisodes(ctx context.Context, seriesID int64) ([]domain.EpisodeRecord, error) {
	var episodes []domain.EpisodeRecord
	endpoint := fmt.Sprintf("/api/v3/episode?seriesId=%d", seriesID)
	if err := c.getJSON(ctx, endpoint, &episodes); err != nil {
		return nil, fmt.Errorf("list episodes for series %d: %w", seriesID, err)
	}
	return episodes, nil
}

// DeleteEpisodeFile removes a single episode file record and its file.
func (c *SonarrClient) DeleteEpisodeFile(ctx context.Context, episodeFileID int64) error {
	endpoint := fmt.Sprintf("/api/v3/episodefile/%d", episodeFileID)
	if err := c.delete(ctx, endpoint); err != nil {
		return fmt.Errorf("delete episode file %d: %w", episodeFileID, err)
	}
	logger.Infof("Deleted episode file %d from %s", episodeFileID, c.name)
	return nil
}

// calendarItem is one episode of the manager's calendar response.
type calendarItem struct {
	Title         string    `json:"title"`
	SeasonNumber  int       `json:"seasonNumber"`
	EpisodeNumber int       `json:"episodeNumber"`
	AirDateUTC    time.Time `json:"airDateUtc"`
	Series        struct {
		Title string `json:"title"`
	} `json:"series"`
}

// Calendar fetches upcoming episodes in the given window.
func (c *SonarrClient) Calendar(ctx context.Context, from, to time.Time) ([]domain.UpcomingEpisode, error) {
	query := url.Values{}
	query.Set("start", from.UTC().Format(time.RFC3339))
	query.Set("end", to.UTC().Format(time.RFC3339))
	query.Set("includeSeries", "true")

	var items []calendarItem
	if err := c.getJSON(ctx, "/api/v3/calendar?"+query.Encode(), &items); err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}

	upcoming := make([]domain.UpcomingEpisode, 0, len(items))
	for _, item := range items {
		upcoming = append(upcoming, domain.UpcomingEpisode{
			SeriesTitle:   item.Series.Title,
			Title:         item.Title,
			SeasonNumber:  item.SeasonNumber,
			EpisodeNumber: item.EpisodeNumber,
			AirDate:       item.AirDateUTC,
		})
	}
	return upcoming, nil
}

// Ping checks that the manager is reachable and the API key works.
func (c *SonarrClient) Ping(ctx context.Context) error {
	var status struct {
		AppName string `json:"appName"`
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/api/v3/system/status", &status); err != nil {
		return fmt.Errorf("series manager ping: %w", err)
	}
	return nil
}
