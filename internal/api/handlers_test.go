package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/reclaimarr/reclaimarr/internal/clock"
	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/db"
	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/eventbus"
	"github.com/reclaimarr/reclaimarr/internal/integration"
	"github.com/reclaimarr/reclaimarr/internal/metrics"
	"github.com/reclaimarr/reclaimarr/internal/notifier"
	"github.com/reclaimarr/reclaimarr/internal/services"
)

// stubSource is a services.ServiceSource backed by canned clients.
type stubSource struct {
	catalog integration.CatalogClient
	movies  integration.MovieManager
	series  integration.SeriesManager
}

func (s *stubSource) Catalog() (integration.CatalogClient, bool) {
	return s.catalog, s.catalog != nil
}

func (s *stubSource) Movies() (integration.MovieManager, bool) {
	return s.movies, s.movies != nil
}

func (s *stubSource) Series() (integration.SeriesManager, bool) {
	return s.series, s.series != nil
}

// stubCatalog is a canned integration.CatalogClient.
type stubCatalog struct {
	entries []domain.CatalogEntry
}

func (c *stubCatalog) ListEntries(_ context.Context, _ []domain.Kind, _ int) ([]domain.CatalogEntry, error) {
	return c.entries, nil
}

func (c *stubCatalog) GetEntriesByIDs(_ context.Context, ids []string) ([]domain.CatalogEntry, error) {
	var matched []domain.CatalogEntry
	for _, entry := range c.entries {
		for _, id := range ids {
			if entry.ID == id {
				matched = append(matched, entry)
			}
		}
	}
	return matched, nil
}

func (c *stubCatalog) ImageURL(entry domain.CatalogEntry) string {
	return "http://catalog/Items/" + entry.ID + "/Images/Primary"
}

func (c *stubCatalog) Ping(context.Context) error { return nil }

// stubMovies is a canned integration.MovieManager recording deletions.
type stubMovies struct {
	movies  []domain.MovieRecord
	deleted []int64
}

func (m *stubMovies) ListMovies(context.Context) ([]domain.MovieRecord, error) {
	return m.movies, nil
}

func (m *stubMovies) DeleteMovie(_ context.Context, movieID int64) error {
	m.deleted = append(m.deleted, movieID)
	return nil
}

func (m *stubMovies) Ping(context.Context) error { return nil }

// stubSeries is a canned integration.SeriesManager serving only the calendar.
type stubSeries struct {
	upcoming []domain.UpcomingEpisode
}

func (s *stubSeries) ListSeries(context.Context) ([]domain.SeriesRecord, error) {
	return nil, nil
}

func (s *stubSeries) ListEpisodes(context.Context, int64) ([]domain.EpisodeRecord, error) {
	return nil, nil
}

func (s *stubSeries) DeleteEpisodeFile(context.Context, int64) error { return nil }

func (s *stubSeries) Calendar(context.Context, time.Time, time.Time) ([]domain.UpcomingEpisode, error) {
	return s.upcoming, nil
}

func (s *stubSeries) Ping(context.Context) error { return nil }

type testServer struct {
	*RESTServer
	source *stubSource
}

// newTestServer wires a full server against a temp database with stubbed
// external services.
func newTestServer(t *testing.T, source *stubSource) *testServer {
	t.Helper()

	config.SetForTesting(config.NewTestConfig())

	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	database := repo.DB

	eb := eventbus.NewEventBus(database)
	t.Cleanup(eb.Shutdown)

	registry, err := integration.NewRegistry(database)
	require.NoError(t, err)

	if source == nil {
		source = &stubSource{}
	}

	exclusions := services.NewExclusionService(database, eb)
	scanner := services.NewScanService(database, source, exclusions, eb, clock.NewRealClock())
	orchestrator := services.NewOrchestrator(database, source, eb, clock.NewRealClock())
	metricsService := metrics.NewMetricsServiceWithRegistry(eb, prometheus.NewRegistry())

	s := NewRESTServer(ServerDeps{
		DB:           database,
		EventBus:     eb,
		Registry:     registry,
		Source:       source,
		Scanner:      scanner,
		Orchestrator: orchestrator,
		Exclusions:   exclusions,
		Notifier:     notifier.NewNotifier(database, eb),
		Metrics:      metricsService,
	})
	t.Cleanup(s.hub.Shutdown)

	return &testServer{RESTServer: s, source: source}
}

func (ts *testServer) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func movieEntry(id, name, tmdbID string, createdAt time.Time) domain.CatalogEntry {
	entry := domain.CatalogEntry{
		ID:        id,
		Kind:      domain.KindMovie,
		Name:      name,
		CreatedAt: createdAt,
	}
	if tmdbID != "" {
		entry.ProviderIDs = map[string]string{domain.ProviderTmdb: tmdbID}
	}
	return entry
}

func insertServiceInstance(t *testing.T, database *sql.DB, name, serviceType string) {
	t.Helper()
	_, err := database.Exec(
		"INSERT INTO service_instances (name, type, url, api_key, enabled) VALUES (?, ?, ?, ?, 1)",
		name, serviceType, "http://localhost:9999", "key")
	require.NoError(t, err)
}
