package services

import (
	"context"
	"testing"
	"time"

	"github.com/reclaimarr/reclaimarr/internal/clock"
	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/domain"
)

func newOrchestrator(t *testing.T, source *fakeSource) (*Orchestrator, *recordingBus) {
	t.Helper()
	database := newServiceDB(t)
	bus := &recordingBus{}
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	return NewOrchestrator(database, source, bus, clock.NewFixed(now)), bus
}

func seriesParent(id string, tvdbID string) domain.CatalogEntry {
	entry := domain.CatalogEntry{ID: id, Kind: domain.KindSeries, Name: "Parent Show"}
	if tvdbID != "" {
		entry.ProviderIDs = map[string]string{domain.ProviderTvdb: tvdbID}
	}
	return entry
}

func TestRunDeletesMovie(t *testing.T) {
	now := time.Now()
	movies := &fakeMovies{movies: []domain.MovieRecord{{ID: 42, TmdbID: 100, Title: "Old Movie"}}}
	source := &fakeSource{catalog: &fakeCatalog{}, movies: movies}
	orch, bus := newOrchestrator(t, source)

	runID, outcomes, err := orch.Run(context.Background(),
		eligible(movieEntry("m1", "Old Movie", "100", now)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(outcomes) != 1 || outcomes[0].Result != domain.ResultSucceeded {
		t.Fatalf("outcomes = %v, want one succeeded", outcomes)
	}
	if len(movies.deleted) != 1 || movies.deleted[0] != 42 {
		t.Errorf("deleted movies = %v, want [42]", movies.deleted)
	}

	run, err := orch.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != domain.RunCompleted || run.Succeeded != 1 {
		t.Errorf("run = %+v, want completed with 1 success", run)
	}
	if got := len(bus.byType(domain.DeletionRunCompleted)); got != 1 {
		t.Errorf("DeletionRunCompleted events = %d, want 1", got)
	}
}

func TestRunEmitsOneOutcomePerItemDespiteFailures(t *testing.T) {
	now := time.Now()
	movies := &fakeMovies{
		movies: []domain.MovieRecord{
			{ID: 1, TmdbID: 100}, {ID: 2, TmdbID: 200}, {ID: 3, TmdbID: 300},
		},
		deleteErr: map[int64]error{2: errBoom},
	}
	source := &fakeSource{catalog: &fakeCatalog{}, movies: movies}
	orch, _ := newOrchestrator(t, source)

	runID, outcomes, err := orch.Run(context.Background(), eligible(
		movieEntry("a", "A", "100", now),
		movieEntry("b", "B", "200", now),
		movieEntry("c", "C", "300", now),
	))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3: one failing item must not abort its siblings", len(outcomes))
	}
	if mustOutcome(t, outcomes, "a").Result != domain.ResultSucceeded {
		t.Error("item a should succeed")
	}
	if mustOutcome(t, outcomes, "b").Result != domain.ResultFailed {
		t.Error("item b should fail")
	}
	if mustOutcome(t, outcomes, "c").Result != domain.ResultSucceeded {
		t.Error("item c should succeed after b failed")
	}

	run, _ := orch.GetRun(runID)
	if run.Status != domain.RunCompleted {
		t.Errorf("run status = %s, want completed: item failures are not run failures", run.Status)
	}
	if run.Succeeded != 2 || run.Failed != 1 {
		t.Errorf("run counts = %d/%d, want 2 succeeded, 1 failed", run.Succeeded, run.Failed)
	}
}

func TestRunSkipClassification(t *testing.T) {
	now := time.Now()
	movies := &fakeMovies{movies: []domain.MovieRecord{{ID: 1, TmdbID: 100}}}
	source := &fakeSource{catalog: &fakeCatalog{}, movies: movies}
	orch, _ := newOrchestrator(t, source)

	_, outcomes, err := orch.Run(context.Background(), eligible(
		movieEntry("no-id", "Bare Movie", "", now),
		movieEntry("no-match", "Untracked Movie", "999", now),
	))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := mustOutcome(t, outcomes, "no-id").Result; got != domain.ResultSkippedNoExternalID {
		t.Errorf("no-id result = %s, want skipped_no_external_id", got)
	}
	if got := mustOutcome(t, outcomes, "no-match").Result; got != domain.ResultSkippedNoMatch {
		t.Errorf("no-match result = %s, want skipped_no_match", got)
	}
	if len(movies.deleted) != 0 {
		t.Errorf("deleted movies = %v, want none", movies.deleted)
	}
}

func TestRunMovieWithoutManagerSkips(t *testing.T) {
	now := time.Now()
	source := &fakeSource{catalog: &fakeCatalog{}}
	orch, _ := newOrchestrator(t, source)

	_, outcomes, err := orch.Run(context.Background(),
		eligible(movieEntry("m1", "Orphan Movie", "100", now)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcomes[0].Result != domain.ResultSkippedUnconfigured {
		t.Errorf("result = %s, want skipped_unconfigured", outcomes[0].Result)
	}
}

func TestRunDeletesSeasonEpisodeFiles(t *testing.T) {
	now := time.Now()
	parent := seriesParent("sr1", "500")
	series := &fakeSeries{
		series: []domain.SeriesRecord{{ID: 9, TvdbID: 500, Title: "Parent Show"}},
		episodes: map[int64][]domain.EpisodeRecord{9: {
			{ID: 1, SeasonNumber: 2, EpisodeNumber: 1, HasFile: true, EpisodeFileID: 11},
			{ID: 2, SeasonNumber: 2, EpisodeNumber: 2, HasFile: false},
			{ID: 3, SeasonNumber: 3, EpisodeNumber: 1, HasFile: true, EpisodeFileID: 31},
		}},
	}
	source := &fakeSource{catalog: &fakeCatalog{entries: []domain.CatalogEntry{parent}}, series: series}
	orch, _ := newOrchestrator(t, source)

	_, outcomes, err := orch.Run(context.Background(),
		eligible(seasonEntry("s2", "Season 2", "sr1", "Parent Show", now)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcomes[0].Result != domain.ResultSucceeded {
		t.Fatalf("result = %s (%s), want succeeded", outcomes[0].Result, outcomes[0].Detail)
	}
	// Only season 2 files with a file present, never season 3.
	if len(series.deleted) != 1 || series.deleted[0] != 11 {
		t.Errorf("deleted episode files = %v, want [11]", series.deleted)
	}
}

func TestRunSeasonWithNoFilesSucceeds(t *testing.T) {
	now := time.Now()
	parent := seriesParent("sr1", "500")
	series := &fakeSeries{
		series: []domain.SeriesRecord{{ID: 9, TvdbID: 500}},
		episodes: map[int64][]domain.EpisodeRecord{9: {
			{ID: 1, SeasonNumber: 1, EpisodeNumber: 1, HasFile: false},
		}},
	}
	source := &fakeSource{catalog: &fakeCatalog{entries: []domain.CatalogEntry{parent}}, series: series}
	orch, _ := newOrchestrator(t, source)

	_, outcomes, err := orch.Run(context.Background(),
		eligible(seasonEntry("s1", "Season 1", "sr1", "Parent Show", now)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcomes[0].Result != domain.ResultSucceeded {
		t.Errorf("result = %s, want succeeded when nothing is left on disk", outcomes[0].Result)
	}
}

func TestRunSeasonPartialFailure(t *testing.T) {
	now := time.Now()
	parent := seriesParent("sr1", "500")
	series := &fakeSeries{
		series: []domain.SeriesRecord{{ID: 9, TvdbID: 500}},
		episodes: map[int64][]domain.EpisodeRecord{9: {
			{ID: 1, SeasonNumber: 1, EpisodeNumber: 1, HasFile: true, EpisodeFileID: 11},
			{ID: 2, SeasonNumber: 1, EpisodeNumber: 2, HasFile: true, EpisodeFileID: 12},
			{ID: 3, SeasonNumber: 1, EpisodeNumber: 3, HasFile: true, EpisodeFileID: 13},
		}},
		deleteErr: map[int64]error{12: errBoom},
	}
	source := &fakeSource{catalog: &fakeCatalog{entries: []domain.CatalogEntry{parent}}, series: series}
	orch, _ := newOrchestrator(t, source)

	_, outcomes, err := orch.Run(context.Background(),
		eligible(seasonEntry("s1", "Season 1", "sr1", "Parent Show", now)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcomes[0].Result != domain.ResultPartiallyFailed {
		t.Fatalf("result = %s, want partially_failed", outcomes[0].Result)
	}
	if outcomes[0].Detail != "1 of 3 episode file deletion(s) failed" {
		t.Errorf("detail = %q, want failure count", outcomes[0].Detail)
	}
	// The failing file must not stop the remaining deletes.
	if len(series.deleted) != 2 {
		t.Errorf("deleted episode files = %v, want the two working files", series.deleted)
	}
}

func TestRunSeasonSkipClassification(t *testing.T) {
	now := time.Now()
	parentNoID := seriesParent("bare", "")
	parentTracked := seriesParent("tracked", "500")
	series := &fakeSeries{series: []domain.SeriesRecord{{ID: 9, TvdbID: 999}}}
	source := &fakeSource{
		catalog: &fakeCatalog{entries: []domain.CatalogEntry{parentNoID, parentTracked}},
		series:  series,
	}
	orch, _ := newOrchestrator(t, source)

	_, outcomes, err := orch.Run(context.Background(), eligible(
		seasonEntry("no-parent-id", "Season 1", "bare", "Bare Show", now),
		seasonEntry("no-digits", "Specials", "tracked", "Tracked Show", now),
		seasonEntry("no-series", "Season 1", "tracked", "Tracked Show", now),
	))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := mustOutcome(t, outcomes, "no-parent-id").Result; got != domain.ResultSkippedNoExternalID {
		t.Errorf("no-parent-id result = %s, want skipped_no_external_id", got)
	}
	if got := mustOutcome(t, outcomes, "no-digits").Result; got != domain.ResultSkippedNoSeasonNumber {
		t.Errorf("no-digits result = %s, want skipped_no_season_number", got)
	}
	if got := mustOutcome(t, outcomes, "no-series").Result; got != domain.ResultSkippedNoMatch {
		t.Errorf("no-series result = %s, want skipped_no_match", got)
	}
}

func TestRunPrefetchFailureAbortsBatch(t *testing.T) {
	now := time.Now()
	movies := &fakeMovies{listErr: errBoom}
	source := &fakeSource{catalog: &fakeCatalog{}, movies: movies}
	orch, bus := newOrchestrator(t, source)

	runID, outcomes, err := orch.Run(context.Background(), eligible(
		movieEntry("a", "A", "100", now),
		movieEntry("b", "B", "200", now),
	))
	if err == nil {
		t.Fatal("Run() should fail when the movie library cannot be fetched")
	}
	if len(outcomes) != 0 {
		t.Errorf("got %d outcomes, want 0: nothing was processed", len(outcomes))
	}

	run, _ := orch.GetRun(runID)
	if run.Status != domain.RunFailed {
		t.Errorf("run status = %s, want failed", run.Status)
	}
	if got := len(bus.byType(domain.DeletionRunFailed)); got != 1 {
		t.Errorf("DeletionRunFailed events = %d, want 1", got)
	}
}

func TestRunDryRunSkipsManagerCalls(t *testing.T) {
	now := time.Now()
	movies := &fakeMovies{movies: []domain.MovieRecord{{ID: 42, TmdbID: 100, Title: "Old Movie"}}}
	source := &fakeSource{catalog: &fakeCatalog{}, movies: movies}
	orch, _ := newOrchestrator(t, source)

	cfg := config.NewTestConfig()
	cfg.DryRunMode = true
	config.SetForTesting(cfg)

	_, outcomes, err := orch.Run(context.Background(),
		eligible(movieEntry("m1", "Old Movie", "100", now)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcomes[0].Result != domain.ResultSkippedDryRun {
		t.Errorf("result = %s, want skipped_dry_run", outcomes[0].Result)
	}
	if outcomes[0].Detail == "" {
		t.Error("dry-run outcome should carry a detail describing the would-be deletion")
	}
	if len(movies.deleted) != 0 {
		t.Errorf("deleted movies = %v, want none in dry-run mode", movies.deleted)
	}
}

func TestRunCancelledContextStopsBetweenItems(t *testing.T) {
	now := time.Now()
	source := &fakeSource{catalog: &fakeCatalog{}, movies: &fakeMovies{}}
	orch, _ := newOrchestrator(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runID, outcomes, err := orch.Run(ctx, eligible(movieEntry("m1", "Old Movie", "100", now)))
	if err == nil {
		t.Fatal("Run() with cancelled context should return an error")
	}
	if len(outcomes) != 0 {
		t.Errorf("got %d outcomes, want 0", len(outcomes))
	}

	run, _ := orch.GetRun(runID)
	if run.Status != domain.RunCancelled {
		t.Errorf("run status = %s, want cancelled", run.Status)
	}
}

func TestRunPersistsOrderedOutcomes(t *testing.T) {
	now := time.Now()
	movies := &fakeMovies{movies: []domain.MovieRecord{{ID: 1, TmdbID: 100}, {ID: 2, TmdbID: 200}}}
	source := &fakeSource{catalog: &fakeCatalog{}, movies: movies}
	orch, _ := newOrchestrator(t, source)

	runID, _, err := orch.Run(context.Background(), eligible(
		movieEntry("first", "First", "100", now),
		movieEntry("second", "Second", "200", now),
	))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stored, err := orch.Outcomes(runID)
	if err != nil {
		t.Fatalf("Outcomes() error = %v", err)
	}
	if len(stored) != 2 || stored[0].ItemID != "first" || stored[1].ItemID != "second" {
		t.Errorf("Outcomes() = %v, want batch order preserved", stored)
	}

	runs, err := orch.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != runID {
		t.Errorf("ListRuns() = %v, want the one run", runs)
	}
}

func TestGetRunUnknownID(t *testing.T) {
	orch, _ := newOrchestrator(t, &fakeSource{})

	run, err := orch.GetRun("no-such-run")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run != nil {
		t.Errorf("GetRun() = %+v, want nil for unknown id", run)
	}
}
