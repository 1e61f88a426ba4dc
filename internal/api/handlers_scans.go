package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reclaimarr/reclaimarr/internal/logger"
	"github.com/reclaimarr/reclaimarr/internal/services"
)

// triggerScan runs a retention scan synchronously and returns the summary.
// A scan rebuilds the eligible pool from the catalog; previous pool contents
// are replaced wholesale.
func (s *RESTServer) triggerScan(c *gin.Context) {
	summary, err := s.scanner.Scan(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrCatalogNotConfigured) {
			respondServiceUnavailable(c, "Catalog service")
			return
		}
		logger.Errorf("Scan failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Scan failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *RESTServer) getScanHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	scans, err := s.scanner.History(limit)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, scans)
}

// getEligible returns the current eligible pool. The pool reflects the
// latest completed scan; it is empty before the first scan.
func (s *RESTServer) getEligible(c *gin.Context) {
	items := s.scanner.Eligible()
	c.JSON(http.StatusOK, gin.H{
		"count": len(items),
		"items": items,
	})
}

// getUpcoming returns the series manager calendar for the next N days
// (default 7, capped at 90).
func (s *RESTServer) getUpcoming(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 {
		respondBadRequest(c, errors.New("days must be a positive integer"), true)
		return
	}
	if days > 90 {
		days = 90
	}

	series, ok := s.source.Series()
	if !ok {
		respondServiceUnavailable(c, "Series manager")
		return
	}

	from := time.Now().UTC()
	episodes, err := series.Calendar(c.Request.Context(), from, from.AddDate(0, 0, days))
	if err != nil {
		logger.Errorf("Calendar fetch failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Calendar fetch failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"days":     days,
		"episodes": episodes,
	})
}
