package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/domain"
)

func TestStartDeletionRun_NoItemIDs(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.request(t, "POST", "/api/deletions", map[string]interface{}{"item_ids": []string{}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartDeletionRun_UnknownIDRejectsBatch(t *testing.T) {
	now := time.Now().UTC()
	source := &stubSource{
		catalog: &stubCatalog{entries: []domain.CatalogEntry{
			movieEntry("old", "Old Movie", "100", now.AddDate(0, 0, -30)),
		}},
		movies: &stubMovies{},
	}
	ts := newTestServer(t, source)
	require.Equal(t, http.StatusOK, ts.request(t, "POST", "/api/scan", nil).Code)

	w := ts.request(t, "POST", "/api/deletions", map[string]interface{}{
		"item_ids": []string{"old", "never-scanned"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, source.movies.(*stubMovies).deleted)
}

func TestStartDeletionRun_DeletesMovie(t *testing.T) {
	now := time.Now().UTC()
	movies := &stubMovies{movies: []domain.MovieRecord{{ID: 42, TmdbID: 100, Title: "Old Movie"}}}
	source := &stubSource{
		catalog: &stubCatalog{entries: []domain.CatalogEntry{
			movieEntry("old", "Old Movie", "100", now.AddDate(0, 0, -30)),
		}},
		movies: movies,
	}
	ts := newTestServer(t, source)
	require.Equal(t, http.StatusOK, ts.request(t, "POST", "/api/scan", nil).Code)

	w := ts.request(t, "POST", "/api/deletions", map[string]interface{}{"item_ids": []string{"old"}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RunID    string                   `json:"run_id"`
		Outcomes []domain.DeletionOutcome `json:"outcomes"`
	}
	decodeJSON(t, w, &resp)
	require.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, domain.ResultSucceeded, resp.Outcomes[0].Result)
	assert.Equal(t, []int64{42}, movies.deleted)

	// Deleted items leave the eligible pool
	var pool struct {
		Count int `json:"count"`
	}
	decodeJSON(t, ts.request(t, "GET", "/api/eligible", nil), &pool)
	assert.Equal(t, 0, pool.Count)

	// Run is queryable afterwards
	w = ts.request(t, "GET", "/api/deletions/"+resp.RunID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var run domain.DeletionRun
	decodeJSON(t, w, &run)
	assert.Equal(t, domain.RunCompleted, run.Status)
	assert.Equal(t, 1, run.Succeeded)

	w = ts.request(t, "GET", "/api/deletions/"+resp.RunID+"/outcomes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var outcomes []domain.DeletionOutcome
	decodeJSON(t, w, &outcomes)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "old", outcomes[0].ItemID)
}

func TestStartDeletionRun_DryRunKeepsPool(t *testing.T) {
	now := time.Now().UTC()
	movies := &stubMovies{movies: []domain.MovieRecord{{ID: 42, TmdbID: 100, Title: "Old Movie"}}}
	source := &stubSource{
		catalog: &stubCatalog{entries: []domain.CatalogEntry{
			movieEntry("old", "Old Movie", "100", now.AddDate(0, 0, -30)),
		}},
		movies: movies,
	}
	ts := newTestServer(t, source)

	cfg := config.NewTestConfig()
	cfg.DryRunMode = true
	config.SetForTesting(cfg)

	require.Equal(t, http.StatusOK, ts.request(t, "POST", "/api/scan", nil).Code)

	w := ts.request(t, "POST", "/api/deletions", map[string]interface{}{"item_ids": []string{"old"}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Outcomes []domain.DeletionOutcome `json:"outcomes"`
	}
	decodeJSON(t, w, &resp)
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, domain.ResultSkippedDryRun, resp.Outcomes[0].Result)
	assert.Empty(t, movies.deleted)

	// The pool survives a dry run so the same batch can run for real later
	var pool struct {
		Count int `json:"count"`
	}
	decodeJSON(t, ts.request(t, "GET", "/api/eligible", nil), &pool)
	assert.Equal(t, 1, pool.Count)
}

func TestGetDeletionRuns_ListsHistory(t *testing.T) {
	now := time.Now().UTC()
	source := &stubSource{
		catalog: &stubCatalog{entries: []domain.CatalogEntry{
			movieEntry("old", "Old Movie", "100", now.AddDate(0, 0, -30)),
		}},
		movies: &stubMovies{movies: []domain.MovieRecord{{ID: 42, TmdbID: 100, Title: "Old Movie"}}},
	}
	ts := newTestServer(t, source)
	require.Equal(t, http.StatusOK, ts.request(t, "POST", "/api/scan", nil).Code)
	require.Equal(t, http.StatusOK,
		ts.request(t, "POST", "/api/deletions", map[string]interface{}{"item_ids": []string{"old"}}).Code)

	w := ts.request(t, "GET", "/api/deletions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var runs []domain.DeletionRun
	decodeJSON(t, w, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].ItemCount)
}

func TestGetDeletionRun_Unknown(t *testing.T) {
	ts := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, ts.request(t, "GET", "/api/deletions/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.request(t, "GET", "/api/deletions/nope/outcomes", nil).Code)
}
