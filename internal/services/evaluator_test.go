package services

import (
	"testing"
	"time"

	"github.com/reclaimarr/reclaimarr/internal/domain"
)

func TestEvaluateThresholdIsStrictlyGreaterThan(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	policy := domain.DefaultRetentionPolicy()

	entries := []domain.CatalogEntry{
		movieEntry("exact", "Exactly At Threshold", "1", now.AddDate(0, 0, -7)),
		movieEntry("over", "Two Hours Past", "2", now.Add(-7*24*time.Hour-2*time.Hour)),
		movieEntry("under", "Fresh", "3", now.AddDate(0, 0, -1)),
	}

	items := Evaluate(entries, nil, policy, now)

	if len(items) != 1 {
		t.Fatalf("Evaluate() returned %d items, want 1", len(items))
	}
	if items[0].Entry.ID != "over" {
		t.Errorf("eligible item = %s, want over", items[0].Entry.ID)
	}
	if items[0].AgeDays <= 7 {
		t.Errorf("AgeDays = %f, want > 7", items[0].AgeDays)
	}
}

func TestEvaluateExclusionWinsOverAge(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	old := movieEntry("ancient", "Very Old Movie", "1", now.AddDate(-2, 0, 0))

	items := Evaluate([]domain.CatalogEntry{old}, map[string]bool{"ancient": true},
		domain.DefaultRetentionPolicy(), now)

	if len(items) != 0 {
		t.Errorf("Evaluate() returned %d items, want 0: excluded items are never eligible", len(items))
	}
}

func TestEvaluatePerKindThresholds(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -10)

	entries := []domain.CatalogEntry{
		movieEntry("m1", "Old Enough Movie", "1", created),
		seasonEntry("s1", "Season 1", "series-1", "Some Show", created),
	}

	// 10 days is past the 7-day movie threshold but inside the 28-day
	// season threshold.
	items := Evaluate(entries, nil, domain.DefaultRetentionPolicy(), now)

	if len(items) != 1 {
		t.Fatalf("Evaluate() returned %d items, want 1", len(items))
	}
	if items[0].Entry.ID != "m1" {
		t.Errorf("eligible item = %s, want m1", items[0].Entry.ID)
	}
}

func TestEvaluateSeriesKindNeverEligible(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	entries := []domain.CatalogEntry{
		{ID: "sr1", Kind: domain.KindSeries, Name: "Whole Show", CreatedAt: now.AddDate(-1, 0, 0)},
	}

	if items := Evaluate(entries, nil, domain.DefaultRetentionPolicy(), now); len(items) != 0 {
		t.Errorf("Evaluate() returned %d items, want 0 for series kind", len(items))
	}
}

func TestEvaluatePreservesCatalogOrder(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -60)

	entries := []domain.CatalogEntry{
		movieEntry("c", "Third", "3", created),
		movieEntry("a", "First", "1", created),
		seasonEntry("b", "Season 2", "series-1", "Show", created),
	}

	items := Evaluate(entries, nil, domain.DefaultRetentionPolicy(), now)

	want := []string{"c", "a", "b"}
	if len(items) != len(want) {
		t.Fatalf("Evaluate() returned %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].Entry.ID != id {
			t.Errorf("items[%d].Entry.ID = %s, want %s", i, items[i].Entry.ID, id)
		}
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -30)

	entries := []domain.CatalogEntry{
		movieEntry("m1", "Old Movie", "1", created),
		movieEntry("m2", "Fresh Movie", "2", now),
		seasonEntry("s1", "Season 1", "series-1", "Show", created),
	}
	exclusions := map[string]bool{"m1": true}
	policy := domain.DefaultRetentionPolicy()

	first := Evaluate(entries, exclusions, policy, now)
	second := Evaluate(entries, exclusions, policy, now)

	if len(first) != len(second) {
		t.Fatalf("second Evaluate() returned %d items, first returned %d", len(second), len(first))
	}
	for i := range first {
		if first[i].Entry.ID != second[i].Entry.ID || first[i].AgeDays != second[i].AgeDays {
			t.Errorf("items[%d] differ between calls: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestEvaluateZeroThresholdStillStrict(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	policy := domain.RetentionPolicy{MovieDays: 0, SeasonDays: 0}

	entries := []domain.CatalogEntry{
		movieEntry("now", "Just Added", "1", now),
		movieEntry("hour", "An Hour Old", "2", now.Add(-time.Hour)),
	}

	items := Evaluate(entries, nil, policy, now)

	if len(items) != 1 || items[0].Entry.ID != "hour" {
		t.Fatalf("Evaluate() with zero threshold = %v, want only the item with positive age", items)
	}
}
