package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reclaimarr/reclaimarr/internal/notifier"
)

func (s *RESTServer) getNotifications(c *gin.Context) {
	configs, err := s.notifier.GetAllConfigs()
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

func (s *RESTServer) getNotification(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, ErrMsgInvalidID, err)
		return
	}

	cfg, err := s.notifier.GetConfig(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondNotFound(c, "Notification")
			return
		}
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func validateNotificationConfig(cfg *notifier.NotificationConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return errors.New("name must not be empty")
	}
	if strings.TrimSpace(cfg.ProviderType) == "" {
		return errors.New("provider_type must not be empty")
	}
	if cfg.ThrottleSeconds < 0 {
		return errors.New("throttle_seconds must not be negative")
	}
	return nil
}

func (s *RESTServer) createNotification(c *gin.Context) {
	var cfg notifier.NotificationConfig
	if err := c.BindJSON(&cfg); err != nil {
		respondBadRequest(c, err, false)
		return
	}
	if err := validateNotificationConfig(&cfg); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	id, err := s.notifier.CreateConfig(&cfg)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *RESTServer) updateNotification(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, ErrMsgInvalidID, err)
		return
	}

	var cfg notifier.NotificationConfig
	if err := c.BindJSON(&cfg); err != nil {
		respondBadRequest(c, err, false)
		return
	}
	if err := validateNotificationConfig(&cfg); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	cfg.ID = id
	if err := s.notifier.UpdateConfig(&cfg); err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *RESTServer) deleteNotification(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, ErrMsgInvalidID, err)
		return
	}

	if err := s.notifier.DeleteConfig(id); err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// testNotification sends a test message using a possibly unsaved
// configuration.
func (s *RESTServer) testNotification(c *gin.Context) {
	var cfg notifier.NotificationConfig
	if err := c.BindJSON(&cfg); err != nil {
		respondBadRequest(c, err, false)
		return
	}

	if err := s.notifier.SendTestNotification(&cfg); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"status": "failed", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getNotificationEvents returns the event types a notification can
// subscribe to, grouped for display.
func (s *RESTServer) getNotificationEvents(c *gin.Context) {
	c.JSON(http.StatusOK, notifier.GetEventGroups())
}

func (s *RESTServer) getNotificationLog(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, ErrMsgInvalidID, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := s.notifier.GetNotificationLog(id, limit)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
