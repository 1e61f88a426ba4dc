package services

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/db"
	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/integration"
)

func newServiceDB(t *testing.T) *sql.DB {
	t.Helper()
	config.SetForTesting(config.NewTestConfig())
	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository() error: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo.DB
}

// recordingBus captures published events for assertions.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {}

func (b *recordingBus) byType(eventType domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var matched []domain.Event
	for _, event := range b.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

// fakeCatalog is a canned CatalogClient.
type fakeCatalog struct {
	entries []domain.CatalogEntry
	listErr error
	byIDErr error
}

func (f *fakeCatalog) ListEntries(ctx context.Context, kinds []domain.Kind, limit int) ([]domain.CatalogEntry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entries, nil
}

func (f *fakeCatalog) GetEntriesByIDs(ctx context.Context, ids []string) ([]domain.CatalogEntry, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	var matched []domain.CatalogEntry
	for _, id := range ids {
		for _, entry := range f.entries {
			if entry.ID == id {
				matched = append(matched, entry)
			}
		}
	}
	return matched, nil
}

func (f *fakeCatalog) ImageURL(entry domain.CatalogEntry) string {
	return "http://catalog/Items/" + entry.ID + "/Images/Primary"
}

func (f *fakeCatalog) Ping(ctx context.Context) error { return nil }

// fakeMovies is a canned MovieManager recording deletions.
type fakeMovies struct {
	movies    []domain.MovieRecord
	listErr   error
	deleteErr map[int64]error
	deleted   []int64
}

func (f *fakeMovies) ListMovies(ctx context.Context) ([]domain.MovieRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.movies, nil
}

func (f *fakeMovies) DeleteMovie(ctx context.Context, movieID int64) error {
	if err := f.deleteErr[movieID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, movieID)
	return nil
}

func (f *fakeMovies) Ping(ctx context.Context) error { return nil }

// fakeSeries is a canned SeriesManager recording episode file deletions.
type fakeSeries struct {
	series      []domain.SeriesRecord
	episodes    map[int64][]domain.EpisodeRecord
	listErr     error
	episodesErr error
	deleteErr   map[int64]error
	deleted     []int64
}

func (f *fakeSeries) ListSeries(ctx context.Context) ([]domain.SeriesRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.series, nil
}

func (f *fakeSeries) ListEpisodes(ctx context.Context, seriesID int64) ([]domain.EpisodeRecord, error) {
	if f.episodesErr != nil {
		return nil, f.episodesErr
	}
	return f.episodes[seriesID], nil
}

func (f *fakeSeries) DeleteEpisodeFile(ctx context.Context, episodeFileID int64) error {
	if err := f.deleteErr[episodeFileID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, episodeFileID)
	return nil
}

func (f *fakeSeries) Calendar(ctx context.Context, from, to time.Time) ([]domain.UpcomingEpisode, error) {
	return nil, nil
}

func (f *fakeSeries) Ping(ctx context.Context) error { return nil }

// fakeSource wires the fakes into a ServiceSource. A nil client reads as
// unconfigured.
type fakeSource struct {
	catalog *fakeCatalog
	movies  *fakeMovies
	series  *fakeSeries
}

func (f *fakeSource) Catalog() (integration.CatalogClient, bool) {
	if f.catalog == nil {
		return nil, false
	}
	return f.catalog, true
}

func (f *fakeSource) Movies() (integration.MovieManager, bool) {
	if f.movies == nil {
		return nil, false
	}
	return f.movies, true
}

func (f *fakeSource) Series() (integration.SeriesManager, bool) {
	if f.series == nil {
		return nil, false
	}
	return f.series, true
}

func movieEntry(id, name string, tmdbID string, createdAt time.Time) domain.CatalogEntry {
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

func seasonEntry(id, name, parentID, parentName string, createdAt time.Time) domain.CatalogEntry {
	return domain.CatalogEntry{
		ID:               id,
		Kind:             domain.KindSeason,
		Name:             name,
		CreatedAt:        createdAt,
		ParentSeriesID:   parentID,
		ParentSeriesName: parentName,
	}
}

func eligible(entries ...domain.CatalogEntry) []domain.EligibleItem {
	items := make([]domain.EligibleItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, domain.EligibleItem{Entry: entry, AgeDays: 30})
	}
	return items
}

func mustOutcome(t *testing.T, outcomes []domain.DeletionOutcome, itemID string) domain.DeletionOutcome {
	t.Helper()
	for _, outcome := range outcomes {
		if outcome.ItemID == itemID {
			return outcome
		}
	}
	t.Fatalf("no outcome for item %s in %v", itemID, outcomes)
	return domain.DeletionOutcome{}
}

var errBoom = fmt.Errorf("boom")
