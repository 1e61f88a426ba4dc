package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reclaimarr/reclaimarr/internal/clock"
	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/db"
	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/eventbus"
	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// Orchestrator executes deletion batches against the acquisition managers.
// It never mutates the eligible pool or the exclusion set; after a run the
// caller re-scans.
type Orchestrator struct {
	db       *sql.DB
	source   ServiceSource
	eventBus eventbus.Publisher
	clock    clock.Clock
}

// NewOrchestrator creates a deletion orchestrator.
func NewOrchestrator(database *sql.DB, source ServiceSource, eb eventbus.Publisher, clk clock.Clock) *Orchestrator {
	return &Orchestrator{
		db:       database,
		source:   source,
		eventBus: eb,
		clock:    clk,
	}
}

// prefetched holds the per-run snapshots the per-item loop works from.
type prefetched struct {
	movies        []domain.MovieRecord
	series        []domain.SeriesRecord
	parentEntries map[string]domain.CatalogEntry
}

// Run processes a deletion batch. Items are processed sequentially and
// every item produces exactly one outcome; one item failing never aborts
// its siblings. The only run-level failure is the pre-fetch: if the
// required manager or catalog state cannot be fetched, the whole batch
// aborts with an error and no per-item outcomes are recorded for
// unprocessed items. Returns the run id and the outcomes.
func (o *Orchestrator) Run(ctx context.Context, items []domain.EligibleItem) (string, []domain.DeletionOutcome, error) {
	runID := uuid.New().String()
	startedAt := o.clock.Now().UTC()
	dryRun := config.Get().DryRunMode

	if _, err := db.ExecWithRetry(o.db,
		"INSERT INTO deletion_runs (id, status, item_count, started_at) VALUES (?, 'running', ?, ?)",
		runID, len(items), startedAt.Format(time.RFC3339Nano)); err != nil {
		return "", nil, fmt.Errorf("failed to record deletion run: %w", err)
	}

	o.publish(domain.DeletionRunStarted, runID, map[string]interface{}{
		"item_count": len(items),
		"dry_run":    dryRun,
	})
	logger.Infof("Deletion run %s started: %d item(s), dry_run=%t", runID, len(items), dryRun)

	pre, err := o.prefetch(ctx, items)
	if err != nil {
		o.finishRun(runID, domain.RunFailed, nil, err.Error())
		o.publish(domain.DeletionRunFailed, runID, map[string]interface{}{"error": err.Error()})
		logger.Errorf("Deletion run %s failed during pre-fetch: %v", runID, err)
		return runID, nil, err
	}

	outcomes := make([]domain.DeletionOutcome, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			o.finishRun(runID, domain.RunCancelled, outcomes, err.Error())
			logger.Warnf("Deletion run %s cancelled after %d of %d item(s)", runID, i, len(items))
			return runID, outcomes, err
		}

		outcome := o.processItem(ctx, item, pre, dryRun)
		outcome.Timestamp = o.clock.Now().UTC()
		outcomes = append(outcomes, outcome)

		o.persistOutcome(runID, i+1, outcome)
		o.publish(domain.ItemProcessed, runID, map[string]interface{}{
			"item_id": outcome.ItemID,
			"title":   outcome.Title,
			"result":  string(outcome.Result),
			"detail":  outcome.Detail,
		})
	}

	o.finishRun(runID, domain.RunCompleted, outcomes, "")
	stats := runStats(outcomes)
	stats["duration_seconds"] = o.clock.Now().UTC().Sub(startedAt).Seconds()
	o.publish(domain.DeletionRunCompleted, runID, stats)
	logger.Infof("Deletion run %s completed", runID)
	return runID, outcomes, nil
}

// prefetch snapshots the manager libraries and the parent-series catalog
// entries once per run. Movie and series list fetches are issued
// concurrently; both must settle before per-item work begins.
func (o *Orchestrator) prefetch(ctx context.Context, items []domain.EligibleItem) (*prefetched, error) {
	pre := &prefetched{parentEntries: make(map[string]domain.CatalogEntry)}

	var wg sync.WaitGroup
	var moviesErr, seriesErr error

	if movies, ok := o.source.Movies(); ok && hasKind(items, domain.KindMovie) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pre.movies, moviesErr = movies.ListMovies(ctx)
		}()
	}

	if series, ok := o.source.Series(); ok && hasKind(items, domain.KindSeason) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pre.series, seriesErr = series.ListSeries(ctx)
		}()
	}

	wg.Wait()

	if moviesErr != nil {
		return nil, fmt.Errorf("movie manager pre-fetch: %w", moviesErr)
	}
	if seriesErr != nil {
		return nil, fmt.Errorf("series manager pre-fetch: %w", seriesErr)
	}

	parentIDs := distinctParentIDs(items)
	if len(parentIDs) > 0 {
		catalog, ok := o.source.Catalog()
		if !ok {
			return nil, ErrCatalogNotConfigured
		}
		entries, err := catalog.GetEntriesByIDs(ctx, parentIDs)
		if err != nil {
			return nil, fmt.Errorf("parent series pre-fetch: %w", err)
		}
		for _, entry := range entries {
			pre.parentEntries[entry.ID] = entry
		}
	}

	return pre, nil
}

func hasKind(items []domain.EligibleItem, kind domain.Kind) bool {
	for _, item := range items {
		if item.Entry.Kind == kind {
			return true
		}
	}
	return false
}

func distinctParentIDs(items []domain.EligibleItem) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, item := range items {
		if item.Entry.Kind != domain.KindSeason || item.Entry.ParentSeriesID == "" {
			continue
		}
		if !seen[item.Entry.ParentSeriesID] {
			seen[item.Entry.ParentSeriesID] = true
			ids = append(ids, item.Entry.ParentSeriesID)
		}
	}
	return ids
}

// processItem produces the single outcome for one item. The item boundary
// recovers from panics so a bad item can never swallow its siblings'
// outcomes.
func (o *Orchestrator) processItem(ctx context.Context, item domain.EligibleItem, pre *prefetched, dryRun bool) (outcome domain.DeletionOutcome) {
	outcome = domain.DeletionOutcome{
		ItemID: item.Entry.ID,
		Title:  item.Entry.Name,
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Recovered processing item %s: %v", item.Entry.ID, r)
			outcome.Result = domain.ResultFailed
			outcome.Detail = fmt.Sprintf("internal error: %v", r)
		}
	}()

	switch item.Entry.Kind {
	case domain.KindMovie:
		outcome.Result, outcome.Detail = o.processMovie(ctx, item.Entry, pre, dryRun)
	case domain.KindSeason:
		outcome.Result, outcome.Detail = o.processSeason(ctx, item.Entry, pre, dryRun)
	default:
		outcome.Result = domain.ResultFailed
		outcome.Detail = fmt.Sprintf("unsupported kind %q", item.Entry.Kind)
	}
	return outcome
}

func (o *Orchestrator) processMovie(ctx context.Context, entry domain.CatalogEntry, pre *prefetched, dryRun bool) (domain.OutcomeResult, string) {
	manager, ok := o.source.Movies()
	if !ok {
		return domain.ResultSkippedUnconfigured, "no movie manager configured"
	}

	record, err := ResolveMovie(entry, pre.movies)
	switch {
	case errors.Is(err, ErrMissingExternalID):
		return domain.ResultSkippedNoExternalID, "catalog entry has no usable Tmdb id"
	case errors.Is(err, ErrNoMatch):
		return domain.ResultSkippedNoMatch, "movie manager does not track this item"
	case err != nil:
		return domain.ResultFailed, err.Error()
	}

	// Dry-run outcomes are skips, not successes, so the eligible pool
	// stays intact for a later real run.
	if dryRun {
		logger.Infof("[dry-run] Would delete movie %d (%s)", record.ID, record.Title)
		return domain.ResultSkippedDryRun, fmt.Sprintf("dry-run: would delete movie %d", record.ID)
	}

	if err := manager.DeleteMovie(ctx, record.ID); err != nil {
		return domain.ResultFailed, err.Error()
	}
	return domain.ResultSucceeded, ""
}

func (o *Orchestrator) processSeason(ctx context.Context, entry domain.CatalogEntry, pre *prefetched, dryRun bool) (domain.OutcomeResult, string) {
	manager, ok := o.source.Series()
	if !ok {
		return domain.ResultSkippedUnconfigured, "no series manager configured"
	}

	var parent *domain.CatalogEntry
	if p, ok := pre.parentEntries[entry.ParentSeriesID]; ok {
		parent = &p
	}
	tvdbID, err := ParentSeriesTvdbID(parent)
	if err != nil {
		return domain.ResultSkippedNoExternalID, "parent series has no usable Tvdb id"
	}

	seasonNumber, err := SeasonNumber(entry.Name)
	if err != nil {
		return domain.ResultSkippedNoSeasonNumber, fmt.Sprintf("no season number in %q", entry.Name)
	}

	record, err := ResolveSeries(tvdbID, pre.series)
	if err != nil {
		return domain.ResultSkippedNoMatch, "series manager does not track this series"
	}

	episodes, err := manager.ListEpisodes(ctx, record.ID)
	if err != nil {
		return domain.ResultFailed, fmt.Sprintf("episode fetch failed: %v", err)
	}

	var fileIDs []int64
	for _, ep := range episodes {
		if ep.SeasonNumber == seasonNumber && ep.HasFile {
			fileIDs = append(fileIDs, ep.EpisodeFileID)
		}
	}

	// Nothing on disk for this season means there is nothing left to do.
	if len(fileIDs) == 0 {
		return domain.ResultSucceeded, "no episode files present"
	}

	if dryRun {
		logger.Infof("[dry-run] Would delete %d episode file(s) of %s season %d",
			len(fileIDs), record.Title, seasonNumber)
		return domain.ResultSkippedDryRun, fmt.Sprintf("dry-run: would delete %d episode file(s)", len(fileIDs))
	}

	// Per-episode deletes are independent: one failure never skips the
	// remaining files.
	failures := 0
	for _, fileID := range fileIDs {
		if err := manager.DeleteEpisodeFile(ctx, fileID); err != nil {
			logger.Errorf("Failed to delete episode file %d: %v", fileID, err)
			failures++
		}
	}

	if failures > 0 {
		return domain.ResultPartiallyFailed,
			fmt.Sprintf("%d of %d episode file deletion(s) failed", failures, len(fileIDs))
	}
	return domain.ResultSucceeded, ""
}

func (o *Orchestrator) persistOutcome(runID string, seq int, outcome domain.DeletionOutcome) {
	if _, err := db.ExecWithRetry(o.db, `
		INSERT INTO deletion_outcomes (run_id, seq, item_id, title, result, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, outcome.ItemID, outcome.Title, string(outcome.Result), outcome.Detail,
		outcome.Timestamp.Format(time.RFC3339Nano)); err != nil {
		logger.Errorf("Failed to persist outcome %d of run %s: %v", seq, runID, err)
	}
}

func (o *Orchestrator) finishRun(runID string, status domain.RunStatus, outcomes []domain.DeletionOutcome, errMsg string) {
	stats := runStats(outcomes)
	completedAt := o.clock.Now().UTC().Format(time.RFC3339Nano)
	if _, err := db.ExecWithRetry(o.db, `
		UPDATE deletion_runs SET status = ?, succeeded = ?, failed = ?, skipped = ?,
			error = ?, completed_at = ?
		WHERE id = ?`,
		string(status), stats["succeeded"], stats["failed"], stats["skipped"],
		errMsg, completedAt, runID); err != nil {
		logger.Errorf("Failed to update deletion run %s: %v", runID, err)
	}
}

// runStats tallies outcomes into succeeded / failed / skipped counts.
// PartiallyFailed counts as failed.
func runStats(outcomes []domain.DeletionOutcome) map[string]interface{} {
	succeeded, failed, skipped := 0, 0, 0
	for _, outcome := range outcomes {
		switch {
		case outcome.Result == domain.ResultSucceeded:
			succeeded++
		case outcome.Result.IsFailure():
			failed++
		default:
			skipped++
		}
	}
	return map[string]interface{}{
		"succeeded": succeeded,
		"failed":    failed,
		"skipped":   skipped,
	}
}

// GetRun returns one deletion run by id.
func (o *Orchestrator) GetRun(runID string) (*domain.DeletionRun, error) {
	run, err := scanRun(o.db.QueryRow(`
		SELECT id, status, item_count, succeeded, failed, skipped,
			COALESCE(error, ''), started_at, completed_at
		FROM deletion_runs WHERE id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns recent deletion runs, newest first.
func (o *Orchestrator) ListRuns(limit int) ([]domain.DeletionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryWithRetry(o.db, `
		SELECT id, status, item_count, succeeded, failed, skipped,
			COALESCE(error, ''), started_at, completed_at
		FROM deletion_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.DeletionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Outcomes returns the ordered outcomes of one run.
func (o *Orchestrator) Outcomes(runID string) ([]domain.DeletionOutcome, error) {
	rows, err := db.QueryWithRetry(o.db, `
		SELECT item_id, title, result, COALESCE(detail, ''), created_at
		FROM deletion_outcomes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.DeletionOutcome
	for rows.Next() {
		var outcome domain.DeletionOutcome
		var result, createdAt string
		if err := rows.Scan(&outcome.ItemID, &outcome.Title, &result, &outcome.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcome.Result = domain.OutcomeResult(result)
		outcome.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*domain.DeletionRun, error) {
	var run domain.DeletionRun
	var status, startedAt string
	var completedAt sql.NullString
	if err := row.Scan(&run.ID, &status, &run.ItemCount, &run.Succeeded, &run.Failed,
		&run.Skipped, &run.Error, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if completedAt.Valid && completedAt.String != "" {
		if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
			run.CompletedAt = &t
		}
	}
	return &run, nil
}

func (o *Orchestrator) publish(eventType domain.EventType, runID string, data map[string]interface{}) {
	if o.eventBus == nil {
		return
	}
	if err := o.eventBus.Publish(domain.Event{
		AggregateType: "deletion_run",
		AggregateID:   runID,
		EventType:     eventType,
		EventData:     data,
	}); err != nil {
		logger.Errorf("Failed to publish %s for run %s: %v", eventType, runID, err)
	}
}
