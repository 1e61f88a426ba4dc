package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Seeds demo data into an existing reclaimarr.db so the API has
// something to show. Run the server once first to create the schema.
func main() {
	db, err := sql.Open("sqlite3", "./reclaimarr.db")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	fmt.Println("Seeding database...")

	// Seed scan history
	scans := []struct {
		Status        string
		EntriesSeen   int
		EligibleCount int
		ExcludedCount int
		StartedAt     time.Time
		CompletedAt   time.Time
	}{
		{"completed", 1240, 18, 4, time.Now().Add(-48 * time.Hour), time.Now().Add(-48*time.Hour + 2*time.Minute)},
		{"completed", 1252, 21, 4, time.Now().Add(-24 * time.Hour), time.Now().Add(-24*time.Hour + 2*time.Minute)},
		{"failed", 310, 0, 0, time.Now().Add(-6 * time.Hour), time.Now().Add(-6 * time.Hour)},
	}

	for _, s := range scans {
		_, err := db.Exec("INSERT INTO scans (id, status, entries_seen, eligible_count, excluded_count, started_at, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			uuid.New().String(), s.Status, s.EntriesSeen, s.EligibleCount, s.ExcludedCount, s.StartedAt, s.CompletedAt)
		if err != nil {
			log.Printf("Failed to insert scan: %v", err)
		}
	}

	// Seed exclusions
	exclusions := []struct {
		ItemID string
		Title  string
	}{
		{"a1b2c3d4e5f601", "The Thing (1982)"},
		{"a1b2c3d4e5f602", "Severance - Season 2"},
	}

	for _, e := range exclusions {
		_, err := db.Exec("INSERT OR IGNORE INTO exclusions (item_id, title) VALUES (?, ?)",
			e.ItemID, e.Title)
		if err != nil {
			log.Printf("Failed to insert exclusion: %v", err)
		}
	}

	// Seed a finished deletion run with per-item outcomes
	runID := uuid.New().String()
	runStarted := time.Now().Add(-20 * time.Hour)
	_, err = db.Exec("INSERT INTO deletion_runs (id, status, item_count, succeeded, failed, skipped, started_at, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		runID, "completed", 3, 2, 1, 0, runStarted, runStarted.Add(40*time.Second))
	if err != nil {
		log.Printf("Failed to insert deletion run: %v", err)
	}

	outcomes := []struct {
		ItemID string
		Title  string
		Result string
		Detail string
	}{
		{"b1c2d3e4f5a601", "Old Movie Nobody Watched (1997)", "succeeded", ""},
		{"b1c2d3e4f5a602", "Passing Trend - Season 1", "succeeded", ""},
		{"b1c2d3e4f5a603", "Unmatched Title (2003)", "failed", "no acquisition manager record found"},
	}

	for i, o := range outcomes {
		_, err := db.Exec("INSERT INTO deletion_outcomes (run_id, seq, item_id, title, result, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			runID, i, o.ItemID, o.Title, o.Result, o.Detail, runStarted.Add(time.Duration(i+1)*10*time.Second))
		if err != nil {
			log.Printf("Failed to insert outcome: %v", err)
		}
	}

	// Seed matching events so the dashboard stream and metrics have history
	events := []struct {
		AggregateType string
		AggregateID   string
		Type          string
		Data          map[string]interface{}
	}{
		{"scan", uuid.New().String(), "ScanCompleted", map[string]interface{}{
			"entries_seen":   1252,
			"eligible_count": 21,
			"excluded_count": 4,
		}},
		{"deletion_run", runID, "DeletionRunStarted", map[string]interface{}{
			"item_count": 3,
		}},
		{"deletion_run", runID, "ItemProcessed", map[string]interface{}{
			"item_id": "b1c2d3e4f5a601",
			"title":   "Old Movie Nobody Watched (1997)",
			"result":  "succeeded",
		}},
		{"deletion_run", runID, "DeletionRunCompleted", map[string]interface{}{
			"succeeded": 2,
			"failed":    1,
			"skipped":   0,
		}},
	}

	for _, e := range events {
		data, _ := json.Marshal(e.Data)
		_, err := db.Exec("INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data) VALUES (?, ?, ?, ?)",
			e.AggregateType, e.AggregateID, e.Type, string(data))
		if err != nil {
			log.Printf("Failed to insert event: %v", err)
		}
	}

	fmt.Println("Seeding complete.")
}
