package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/reclaimarr/reclaimarr/internal/clock"
	"github.com/reclaimarr/reclaimarr/internal/domain"
)

func newScanFixture(t *testing.T, source *fakeSource) (*ScanService, *ExclusionService, *recordingBus) {
	t.Helper()
	database := newServiceDB(t)
	bus := &recordingBus{}
	exclusions := NewExclusionService(database, bus)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	scanner := NewScanService(database, source, exclusions, bus, clock.NewFixed(now))
	return scanner, exclusions, bus
}

func TestScanFillsEligiblePool(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{catalog: &fakeCatalog{entries: []domain.CatalogEntry{
		movieEntry("old", "Old Movie", "100", now.AddDate(0, 0, -30)),
		movieEntry("new", "New Movie", "200", now.AddDate(0, 0, -1)),
		seasonEntry("season", "Season 1", "sr1", "Show", now.AddDate(0, 0, -90)),
	}}}
	scanner, _, bus := newScanFixture(t, source)

	summary, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if summary.EntriesSeen != 3 {
		t.Errorf("EntriesSeen = %d, want 3", summary.EntriesSeen)
	}
	if summary.EligibleCount != 2 {
		t.Errorf("EligibleCount = %d, want 2", summary.EligibleCount)
	}

	pool := scanner.Eligible()
	if len(pool) != 2 {
		t.Fatalf("Eligible() returned %d items, want 2", len(pool))
	}
	if pool[0].ImageURL == "" {
		t.Error("eligible items should carry an image URL")
	}

	if got := len(bus.byType(domain.ScanCompleted)); got != 1 {
		t.Errorf("ScanCompleted events = %d, want 1", got)
	}
}

func TestScanWithoutCatalogFails(t *testing.T) {
	scanner, _, _ := newScanFixture(t, &fakeSource{})

	if _, err := scanner.Scan(context.Background()); !errors.Is(err, ErrCatalogNotConfigured) {
		t.Errorf("Scan() error = %v, want ErrCatalogNotConfigured", err)
	}
}

func TestScanCatalogFetchFailureIsRunLevel(t *testing.T) {
	source := &fakeSource{catalog: &fakeCatalog{listErr: errBoom}}
	scanner, _, bus := newScanFixture(t, source)

	_, err := scanner.Scan(context.Background())
	if err == nil || !strings.Contains(err.Error(), "catalog fetch failed") {
		t.Fatalf("Scan() error = %v, want catalog fetch failure", err)
	}

	if got := len(bus.byType(domain.ScanFailed)); got != 1 {
		t.Errorf("ScanFailed events = %d, want 1", got)
	}

	history, err := scanner.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Status != "failed" {
		t.Errorf("History() = %+v, want one failed scan", history)
	}
}

func TestScanHonorsExclusions(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{catalog: &fakeCatalog{entries: []domain.CatalogEntry{
		movieEntry("pinned", "Pinned Movie", "100", now.AddDate(0, 0, -30)),
		movieEntry("loose", "Loose Movie", "200", now.AddDate(0, 0, -30)),
	}}}
	scanner, exclusions, _ := newScanFixture(t, source)

	if err := exclusions.Exclude("pinned", "Pinned Movie"); err != nil {
		t.Fatalf("Exclude() error = %v", err)
	}

	summary, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if summary.ExcludedCount != 1 {
		t.Errorf("ExcludedCount = %d, want 1", summary.ExcludedCount)
	}
	pool := scanner.Eligible()
	if len(pool) != 1 || pool[0].Entry.ID != "loose" {
		t.Errorf("Eligible() = %v, want only loose", pool)
	}
}

func TestExcludeRemovesFromCurrentPool(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{catalog: &fakeCatalog{entries: []domain.CatalogEntry{
		movieEntry("m1", "Movie One", "100", now.AddDate(0, 0, -30)),
		movieEntry("m2", "Movie Two", "200", now.AddDate(0, 0, -30)),
	}}}
	scanner, exclusions, _ := newScanFixture(t, source)

	if _, err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if err := exclusions.Exclude("m1", "Movie One"); err != nil {
		t.Fatalf("Exclude() error = %v", err)
	}

	pool := scanner.Eligible()
	if len(pool) != 1 || pool[0].Entry.ID != "m2" {
		t.Errorf("Eligible() after exclusion = %v, want only m2", pool)
	}
}

func TestItemsForIDsRejectsUnknownIDs(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{catalog: &fakeCatalog{entries: []domain.CatalogEntry{
		movieEntry("known", "Known Movie", "100", now.AddDate(0, 0, -30)),
	}}}
	scanner, _, _ := newScanFixture(t, source)

	if _, err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	items, err := scanner.ItemsForIDs([]string{"known"})
	if err != nil {
		t.Fatalf("ItemsForIDs() error = %v", err)
	}
	if len(items) != 1 || items[0].Entry.ID != "known" {
		t.Errorf("ItemsForIDs() = %v, want known", items)
	}

	if _, err := scanner.ItemsForIDs([]string{"known", "ghost"}); err == nil {
		t.Error("ItemsForIDs() with unknown id should reject the whole batch")
	}
}

func TestEligibleReturnsCopy(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{catalog: &fakeCatalog{entries: []domain.CatalogEntry{
		movieEntry("m1", "Movie One", "100", now.AddDate(0, 0, -30)),
	}}}
	scanner, _, _ := newScanFixture(t, source)

	if _, err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	first := scanner.Eligible()
	first[0].Entry.Name = "mutated"

	if scanner.Eligible()[0].Entry.Name == "mutated" {
		t.Error("mutating a returned slice must not affect the pool")
	}
}
