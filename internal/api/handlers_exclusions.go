package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *RESTServer) getExclusions(c *gin.Context) {
	exclusions, err := s.exclusions.List()
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, exclusions)
}

// createExclusion adds one catalog item to the persistent exclusion set.
// The item does not have to be in the current eligible pool; excluding an
// already excluded item is a no-op.
func (s *RESTServer) createExclusion(c *gin.Context) {
	var req struct {
		ItemID string `json:"item_id"`
		Title  string `json:"title"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, false)
		return
	}

	if err := s.exclusions.Exclude(req.ItemID, req.Title); err != nil {
		respondBadRequest(c, err, true)
		return
	}
	c.Status(http.StatusCreated)
}

// excludeAllEligible moves the entire current eligible pool into the
// exclusion set.
func (s *RESTServer) excludeAllEligible(c *gin.Context) {
	items := s.scanner.Eligible()
	if err := s.exclusions.ExcludeAll(items); err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"excluded": len(items)})
}

func (s *RESTServer) deleteExclusion(c *gin.Context) {
	if err := s.exclusions.Unexclude(c.Param("item_id")); err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
