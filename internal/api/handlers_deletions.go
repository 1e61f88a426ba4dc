package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// startDeletionRun validates the requested item IDs against the current
// eligible pool and processes them as one run. Unknown IDs reject the whole
// batch; nothing is deleted.
func (s *RESTServer) startDeletionRun(c *gin.Context) {
	var req struct {
		ItemIDs []string `json:"item_ids"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, false)
		return
	}
	if len(req.ItemIDs) == 0 {
		respondWithError(c, http.StatusBadRequest, ErrMsgNoItemIDsProvided, nil)
		return
	}

	items, err := s.scanner.ItemsForIDs(req.ItemIDs)
	if err != nil {
		respondBadRequest(c, err, true)
		return
	}

	runID, outcomes, err := s.orchestrator.Run(c.Request.Context(), items)
	if err != nil {
		logger.Errorf("Deletion run failed: %v", err)
		status := http.StatusBadGateway
		if runID == "" {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"run_id": runID, "error": err.Error()})
		return
	}

	// Items whose files are gone leave the pool so a repeated request
	// cannot target them again before the next scan.
	for _, outcome := range outcomes {
		if outcome.Result == domain.ResultSucceeded || outcome.Result == domain.ResultPartiallyFailed {
			s.scanner.RemoveFromPool(outcome.ItemID)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":   runID,
		"outcomes": outcomes,
	})
}

func (s *RESTServer) getDeletionRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.orchestrator.ListRuns(limit)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *RESTServer) getDeletionRun(c *gin.Context) {
	run, err := s.orchestrator.GetRun(c.Param("id"))
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if run == nil {
		respondNotFound(c, "Deletion run")
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *RESTServer) getDeletionOutcomes(c *gin.Context) {
	runID := c.Param("id")
	run, err := s.orchestrator.GetRun(runID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if run == nil {
		respondNotFound(c, "Deletion run")
		return
	}

	outcomes, err := s.orchestrator.Outcomes(runID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcomes)
}
