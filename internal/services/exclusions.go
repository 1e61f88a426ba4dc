package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/reclaimarr/reclaimarr/internal/db"
	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/eventbus"
	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// Exclusion is one pinned catalog item. Excluded items are never eligible
// for deletion until unexcluded.
type Exclusion struct {
	ItemID    string    `json:"item_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// poolRemover is how excluding an item drops it from the current eligible
// pool without waiting for the next scan. Implemented by ScanService.
type poolRemover interface {
	RemoveFromPool(itemID string)
}

// ExclusionService manages the persistent exclusion set.
type ExclusionService struct {
	db       *sql.DB
	eventBus eventbus.Publisher
	pool     poolRemover
}

// NewExclusionService creates an exclusion service backed by the given
// database.
func NewExclusionService(database *sql.DB, eb eventbus.Publisher) *ExclusionService {
	return &ExclusionService{db: database, eventBus: eb}
}

// BindPool wires the eligible pool so exclusions take effect immediately.
func (s *ExclusionService) BindPool(pool poolRemover) {
	s.pool = pool
}

// Exclude pins an item. Idempotent: excluding an already-excluded item is
// a no-op.
func (s *ExclusionService) Exclude(itemID, title string) error {
	if itemID == "" {
		return fmt.Errorf("item id must not be empty")
	}

	result, err := db.ExecWithRetry(s.db,
		"INSERT OR IGNORE INTO exclusions (item_id, title) VALUES (?, ?)", itemID, title)
	if err != nil {
		return fmt.Errorf("failed to persist exclusion: %w", err)
	}

	if s.pool != nil {
		s.pool.RemoveFromPool(itemID)
	}

	if inserted, _ := result.RowsAffected(); inserted > 0 {
		logger.Infof("Excluded item %s (%s)", itemID, title)
		s.publish(domain.ItemExcluded, itemID, title)
	}
	return nil
}

// ExcludeAll pins every given item in one transaction: either the whole
// batch persists or none of it does. Items already excluded are skipped.
// An empty batch is a no-op.
func (s *ExclusionService) ExcludeAll(items []domain.EligibleItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin exclusion batch: %w", err)
	}
	defer tx.Rollback()

	var inserted []domain.EligibleItem
	for _, item := range items {
		if item.Entry.ID == "" {
			return fmt.Errorf("item id must not be empty")
		}
		result, err := tx.Exec(
			"INSERT OR IGNORE INTO exclusions (item_id, title) VALUES (?, ?)",
			item.Entry.ID, item.Entry.Name)
		if err != nil {
			return fmt.Errorf("failed to persist exclusion for %s: %w", item.Entry.ID, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted = append(inserted, item)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit exclusion batch: %w", err)
	}

	for _, item := range items {
		if s.pool != nil {
			s.pool.RemoveFromPool(item.Entry.ID)
		}
	}
	for _, item := range inserted {
		logger.Infof("Excluded item %s (%s)", item.Entry.ID, item.Entry.Name)
		s.publish(domain.ItemExcluded, item.Entry.ID, item.Entry.Name)
	}
	return nil
}

// Unexclude unpins an item. Idempotent. The item only becomes eligible
// again once the next scan re-evaluates it.
func (s *ExclusionService) Unexclude(itemID string) error {
	result, err := db.ExecWithRetry(s.db, "DELETE FROM exclusions WHERE item_id = ?", itemID)
	if err != nil {
		return fmt.Errorf("failed to remove exclusion: %w", err)
	}

	if removed, _ := result.RowsAffected(); removed > 0 {
		logger.Infof("Unexcluded item %s", itemID)
		s.publish(domain.ItemUnexcluded, itemID, "")
	}
	return nil
}

// IsExcluded reports whether the item is currently pinned.
func (s *ExclusionService) IsExcluded(itemID string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM exclusions WHERE item_id = ?", itemID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check exclusion: %w", err)
	}
	return count > 0, nil
}

// List returns all exclusions, newest first.
func (s *ExclusionService) List() ([]Exclusion, error) {
	rows, err := db.QueryWithRetry(s.db,
		"SELECT item_id, title, created_at FROM exclusions ORDER BY created_at DESC, item_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusions: %w", err)
	}
	defer rows.Close()

	var exclusions []Exclusion
	for rows.Next() {
		var e Exclusion
		if err := rows.Scan(&e.ItemID, &e.Title, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		exclusions = append(exclusions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exclusions: %w", err)
	}
	return exclusions, nil
}

// Set returns the exclusion set as a lookup map for the evaluator.
func (s *ExclusionService) Set() (map[string]bool, error) {
	rows, err := db.QueryWithRetry(s.db, "SELECT item_id FROM exclusions")
	if err != nil {
		return nil, fmt.Errorf("failed to load exclusion set: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var itemID string
		if err := rows.Scan(&itemID); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion id: %w", err)
		}
		set[itemID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exclusion ids: %w", err)
	}
	return set, nil
}

func (s *ExclusionService) publish(eventType domain.EventType, itemID, title string) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.Publish(domain.Event{
		AggregateType: "exclusion",
		AggregateID:   itemID,
		EventType:     eventType,
		EventData: map[string]interface{}{
			"item_id": itemID,
			"title":   title,
		},
	})
	if err != nil {
		logger.Errorf("Failed to publish %s event for %s: %v", eventType, itemID, err)
	}
}
