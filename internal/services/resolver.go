package services

import (
	"errors"
	"strconv"

	"github.com/reclaimarr/reclaimarr/internal/domain"
)

// Resolution failures that classify as skips rather than hard errors.
var (
	// ErrMissingExternalID means the catalog entry carries no usable
	// external provider identifier.
	ErrMissingExternalID = errors.New("no external provider id")
	// ErrNoMatch means no acquisition-manager record carries the entry's
	// external id. Informational, not a failure: the manager simply does
	// not track the item.
	ErrNoMatch = errors.New("no matching record in acquisition manager")
	// ErrMissingSeasonNumber means a season's display name contains no
	// digits to derive the season number from.
	ErrMissingSeasonNumber = errors.New("no season number in display name")
)

// ResolveMovie finds the movie manager record for a movie catalog entry via
// its Tmdb provider id. An absent or unparsable id is ErrMissingExternalID.
// When duplicate Tmdb ids exist the first record in fetch order wins.
func ResolveMovie(entry domain.CatalogEntry, movies []domain.MovieRecord) (domain.MovieRecord, error) {
	raw := entry.ProviderID(domain.ProviderTmdb)
	if raw == "" {
		return domain.MovieRecord{}, ErrMissingExternalID
	}
	tmdbID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return domain.MovieRecord{}, ErrMissingExternalID
	}

	for _, movie := range movies {
		if movie.TmdbID == tmdbID {
			return movie, nil
		}
	}
	return domain.MovieRecord{}, ErrNoMatch
}

// ResolveSeries finds the series manager record with the given Tvdb id.
// The first record in fetch order wins.
func ResolveSeries(tvdbID int64, series []domain.SeriesRecord) (domain.SeriesRecord, error) {
	for _, s := range series {
		if s.TvdbID == tvdbID {
			return s, nil
		}
	}
	return domain.SeriesRecord{}, ErrNoMatch
}

// ParentSeriesTvdbID extracts the Tvdb id from a season's parent series
// entry. A nil parent or an absent/unparsable id is ErrMissingExternalID.
func ParentSeriesTvdbID(parent *domain.CatalogEntry) (int64, error) {
	if parent == nil {
		return 0, ErrMissingExternalID
	}
	raw := parent.ProviderID(domain.ProviderTvdb)
	if raw == "" {
		return 0, ErrMissingExternalID
	}
	tvdbID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrMissingExternalID
	}
	return tvdbID, nil
}

// SeasonNumber derives the season number from a season's display name by
// taking the first contiguous run of digits anywhere in the name.
//
// This is the long-standing rule the rest of the stack expects: "Season 2"
// is 2, "2. Staffel" is 2, and "Specials 2024" is 2024 even though that is
// almost certainly not a season. Kept as a named function so the behavior
// stays pinned by tests rather than drifting with a parser rewrite.
func SeasonNumber(displayName string) (int, error) {
	start := -1
	for i := 0; i < len(displayName); i++ {
		if displayName[i] >= '0' && displayName[i] <= '9' {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			return parseSeasonRun(displayName[start:i])
		}
	}
	if start != -1 {
		return parseSeasonRun(displayName[start:])
	}
	return 0, ErrMissingSeasonNumber
}

func parseSeasonRun(run string) (int, error) {
	n, err := strconv.Atoi(run)
	if err != nil {
		// Absurdly long digit runs overflow int; treat them as unusable.
		return 0, ErrMissingSeasonNumber
	}
	return n, nil
}
