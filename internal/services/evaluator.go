package services

import (
	"time"

	"github.com/reclaimarr/reclaimarr/internal/domain"
)

// hoursPerDay converts an age duration to fractional days.
const hoursPerDay = 24

// Evaluate applies the retention policy to a set of catalog entries and
// returns the items eligible for deletion, preserving input order.
//
// The exclusion check runs before the age check: an excluded item is never
// eligible no matter how old it is. Age is fractional, so an entry created
// 7 days and 2 hours ago is older than a 7-day threshold. Eligibility is
// strictly greater-than: an entry aged exactly at the threshold stays.
// Kinds other than movie and season are never eligible.
func Evaluate(entries []domain.CatalogEntry, excluded map[string]bool, policy domain.RetentionPolicy, now time.Time) []domain.EligibleItem {
	var eligible []domain.EligibleItem

	for _, entry := range entries {
		if excluded[entry.ID] {
			continue
		}

		ageDays := now.Sub(entry.CreatedAt).Hours() / hoursPerDay

		var threshold int
		switch entry.Kind {
		case domain.KindMovie:
			threshold = policy.MovieDays
		case domain.KindSeason:
			threshold = policy.SeasonDays
		default:
			continue
		}

		if ageDays > float64(threshold) {
			eligible = append(eligible, domain.EligibleItem{
				Entry:   entry,
				AgeDays: ageDays,
			})
		}
	}

	return eligible
}
