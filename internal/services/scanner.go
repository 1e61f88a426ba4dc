package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reclaimarr/reclaimarr/internal/clock"
	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/db"
	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/eventbus"
	"github.com/reclaimarr/reclaimarr/internal/integration"
	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// ServiceSource provides the currently configured external service clients.
// An unconfigured service is reported as absent, which callers treat as a
// skip state, never as an error. Implemented by integration.Registry.
type ServiceSource interface {
	Catalog() (integration.CatalogClient, bool)
	Movies() (integration.MovieManager, bool)
	Series() (integration.SeriesManager, bool)
}

// ErrCatalogNotConfigured is returned when a scan is requested before a
// catalog service instance has been configured.
var ErrCatalogNotConfigured = fmt.Errorf("no catalog service configured")

// ScanSummary is the persisted record of one retention scan.
type ScanSummary struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"` // running, completed, failed
	EntriesSeen   int        `json:"entries_seen"`
	EligibleCount int        `json:"eligible_count"`
	ExcludedCount int        `json:"excluded_count"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ScanService drives retention scans: catalog fetch, policy evaluation,
// and the in-memory eligible pool the deletion endpoints work from.
type ScanService struct {
	db         *sql.DB
	source     ServiceSource
	exclusions *ExclusionService
	eventBus   eventbus.Publisher
	clock      clock.Clock

	mu   sync.RWMutex
	pool []domain.EligibleItem
}

// NewScanService creates a scan service. The clock is injectable so age
// evaluation is deterministic in tests.
func NewScanService(database *sql.DB, source ServiceSource, exclusions *ExclusionService, eb eventbus.Publisher, clk clock.Clock) *ScanService {
	s := &ScanService{
		db:         database,
		source:     source,
		exclusions: exclusions,
		eventBus:   eb,
		clock:      clk,
	}
	exclusions.BindPool(s)
	return s
}

// Scan fetches the catalog, evaluates the retention policy and replaces
// the eligible pool. The catalog being unreachable is the one run-level
// failure surfaced to the caller.
func (s *ScanService) Scan(ctx context.Context) (*ScanSummary, error) {
	catalog, ok := s.source.Catalog()
	if !ok {
		return nil, ErrCatalogNotConfigured
	}

	scanID := uuid.New().String()
	startedAt := s.clock.Now().UTC()

	if _, err := db.ExecWithRetry(s.db,
		"INSERT INTO scans (id, status, started_at) VALUES (?, 'running', ?)",
		scanID, startedAt.Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("failed to record scan: %w", err)
	}

	s.publish(domain.ScanStarted, scanID, map[string]interface{}{})
	logger.Infof("Scan %s started", scanID)

	summary, err := s.runScan(ctx, catalog, scanID, startedAt)
	if err != nil {
		s.finishScan(scanID, "failed", 0, 0, 0, err.Error())
		s.publish(domain.ScanFailed, scanID, map[string]interface{}{"error": err.Error()})
		logger.Errorf("Scan %s failed: %v", scanID, err)
		return nil, err
	}

	s.finishScan(scanID, "completed", summary.EntriesSeen, summary.EligibleCount, summary.ExcludedCount, "")
	s.publish(domain.ScanCompleted, scanID, map[string]interface{}{
		"entries_seen":     summary.EntriesSeen,
		"eligible_count":   summary.EligibleCount,
		"excluded_count":   summary.ExcludedCount,
		"duration_seconds": s.clock.Now().UTC().Sub(startedAt).Seconds(),
	})
	logger.Infof("Scan %s completed: %d entries, %d eligible, %d excluded",
		scanID, summary.EntriesSeen, summary.EligibleCount, summary.ExcludedCount)
	return summary, nil
}

func (s *ScanService) runScan(ctx context.Context, catalog integration.CatalogClient, scanID string, startedAt time.Time) (*ScanSummary, error) {
	cfg := config.Get()

	entries, err := catalog.ListEntries(ctx,
		[]domain.Kind{domain.KindMovie, domain.KindSeason}, cfg.ScanLimit)
	if err != nil {
		return nil, fmt.Errorf("catalog fetch failed: %w", err)
	}

	excluded, err := s.exclusions.Set()
	if err != nil {
		return nil, err
	}

	policy := LoadPolicy(s.db)
	eligible := Evaluate(entries, excluded, policy, s.clock.Now())

	excludedCount := 0
	for _, entry := range entries {
		if excluded[entry.ID] {
			excludedCount++
		}
	}

	for i := range eligible {
		eligible[i].ImageURL = catalog.ImageURL(eligible[i].Entry)
	}

	s.mu.Lock()
	s.pool = eligible
	s.mu.Unlock()

	completedAt := s.clock.Now().UTC()
	return &ScanSummary{
		ID:            scanID,
		Status:        "completed",
		EntriesSeen:   len(entries),
		EligibleCount: len(eligible),
		ExcludedCount: excludedCount,
		StartedAt:     startedAt,
		CompletedAt:   &completedAt,
	}, nil
}

func (s *ScanService) finishScan(scanID, status string, seen, eligible, excluded int, errMsg string) {
	completedAt := s.clock.Now().UTC().Format(time.RFC3339Nano)
	if _, err := db.ExecWithRetry(s.db, `
		UPDATE scans SET status = ?, entries_seen = ?, eligible_count = ?,
			excluded_count = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		status, seen, eligible, excluded, errMsg, completedAt, scanID); err != nil {
		logger.Errorf("Failed to update scan %s: %v", scanID, err)
	}
}

// Eligible returns a copy of the current eligible pool.
func (s *ScanService) Eligible() []domain.EligibleItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.EligibleItem, len(s.pool))
	copy(items, s.pool)
	return items
}

// RemoveFromPool drops one item from the eligible pool. Called when the
// item gets excluded; the next scan recomputes the pool from scratch.
func (s *ScanService) RemoveFromPool(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.pool {
		if item.Entry.ID == itemID {
			s.pool = append(s.pool[:i], s.pool[i+1:]...)
			return
		}
	}
}

// ItemsForIDs resolves batch item ids against the current eligible pool.
// Every id must be present; unknown ids reject the whole batch.
func (s *ScanService) ItemsForIDs(ids []string) ([]domain.EligibleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := make(map[string]domain.EligibleItem, len(s.pool))
	for _, item := range s.pool {
		byID[item.Entry.ID] = item
	}

	items := make([]domain.EligibleItem, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("item %s is not in the eligible pool", id)
		}
		items = append(items, item)
	}
	return items, nil
}

// History returns recent scans, newest first.
func (s *ScanService) History(limit int) ([]ScanSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryWithRetry(s.db, `
		SELECT id, status, entries_seen, eligible_count, excluded_count,
			COALESCE(error, ''), started_at, completed_at
		FROM scans ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []ScanSummary
	for rows.Next() {
		var sc ScanSummary
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&sc.ID, &sc.Status, &sc.EntriesSeen, &sc.EligibleCount,
			&sc.ExcludedCount, &sc.Error, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sc.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt.Valid && completedAt.String != "" {
			if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
				sc.CompletedAt = &t
			}
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

func (s *ScanService) publish(eventType domain.EventType, scanID string, data map[string]interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(domain.Event{
		AggregateType: "scan",
		AggregateID:   scanID,
		EventType:     eventType,
		EventData:     data,
	}); err != nil {
		logger.Errorf("Failed to publish %s for scan %s: %v", eventType, scanID, err)
	}
}
