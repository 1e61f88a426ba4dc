package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reclaimarr/reclaimarr/internal/crypto"
	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/integration"
	"github.com/reclaimarr/reclaimarr/internal/logger"
	"github.com/reclaimarr/reclaimarr/internal/services"
)

func (s *RESTServer) getPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, services.LoadPolicy(s.db))
}

// updatePolicy persists new retention thresholds. They apply from the next
// scan; the current eligible pool is not re-evaluated.
func (s *RESTServer) updatePolicy(c *gin.Context) {
	var policy domain.RetentionPolicy
	if err := c.BindJSON(&policy); err != nil {
		respondBadRequest(c, err, false)
		return
	}

	if err := services.SavePolicy(s.db, policy); err != nil {
		respondBadRequest(c, err, true)
		return
	}
	c.JSON(http.StatusOK, policy)
}

// errInvalidURLScheme is returned when a URL has an invalid scheme.
var errInvalidURLScheme = errors.New("only http and https schemes are allowed")

// validateServiceURL validates that a URL is safe to use for service API
// requests. It ensures:
// 1. The URL is parseable
// 2. The scheme is http or https (prevents file://, gopher://, etc.)
// 3. The host is not empty
func validateServiceURL(rawURL string) error {
	if !strings.HasPrefix(strings.ToLower(rawURL), "http://") && !strings.HasPrefix(strings.ToLower(rawURL), "https://") {
		return errors.New("URL must start with http:// or https://")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return errInvalidURLScheme
	}

	if parsed.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

func validateServiceType(serviceType string) error {
	switch serviceType {
	case integration.ServiceTypeCatalog, integration.ServiceTypeRadarr, integration.ServiceTypeSonarr:
		return nil
	default:
		return fmt.Errorf("unknown service type %q", serviceType)
	}
}

type serviceInstanceRequest struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	URL     string `json:"url"`
	APIKey  string `json:"api_key"`
	Enabled bool   `json:"enabled"`
}

func (r *serviceInstanceRequest) validate() error {
	if err := validateServiceType(r.Type); err != nil {
		return err
	}
	if err := validateServiceURL(r.URL); err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name must not be empty")
	}
	return nil
}

func (s *RESTServer) getServiceInstances(c *gin.Context) {
	rows, err := s.db.Query("SELECT id, name, type, url, api_key, enabled FROM service_instances ORDER BY id")
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	defer rows.Close()

	instances := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id int64
		var name, serviceType, instanceURL, apiKey string
		var enabled bool
		if err := rows.Scan(&id, &name, &serviceType, &instanceURL, &apiKey, &enabled); err != nil {
			logger.Warnf("Failed to scan service_instances row: %v", err)
			continue
		}
		// Decrypt API key for display
		decryptedKey, err := crypto.Decrypt(apiKey)
		if err != nil {
			logger.Errorf("Failed to decrypt API key for instance %d: %v", id, err)
			decryptedKey = "[DECRYPTION_ERROR]"
		}
		instances = append(instances, map[string]interface{}{
			"id":      id,
			"name":    name,
			"type":    serviceType,
			"url":     instanceURL,
			"api_key": decryptedKey,
			"enabled": enabled,
		})
	}

	if err := rows.Err(); err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, instances)
}

func (s *RESTServer) createServiceInstance(c *gin.Context) {
	var req serviceInstanceRequest
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, false)
		return
	}
	if err := req.validate(); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	// Encrypt API key before storage
	encryptedKey, err := crypto.Encrypt(req.APIKey)
	if err != nil {
		logger.Errorf("Failed to encrypt API key: %v", err)
		respondWithError(c, http.StatusInternalServerError, ErrMsgInternalError, err)
		return
	}

	if _, err := s.db.Exec("INSERT INTO service_instances (name, type, url, api_key, enabled) VALUES (?, ?, ?, ?, ?)",
		strings.TrimSpace(req.Name), req.Type, req.URL, encryptedKey, req.Enabled); err != nil {
		respondDatabaseError(c, err)
		return
	}

	s.reloadRegistry()
	c.Status(http.StatusCreated)
}

func (s *RESTServer) updateServiceInstance(c *gin.Context) {
	id := c.Param("id")
	var req serviceInstanceRequest
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, false)
		return
	}
	if err := req.validate(); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	encryptedKey, err := crypto.Encrypt(req.APIKey)
	if err != nil {
		logger.Errorf("Failed to encrypt API key: %v", err)
		respondWithError(c, http.StatusInternalServerError, ErrMsgInternalError, err)
		return
	}

	result, err := s.db.Exec("UPDATE service_instances SET name = ?, type = ?, url = ?, api_key = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		strings.TrimSpace(req.Name), req.Type, req.URL, encryptedKey, req.Enabled, id)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		respondNotFound(c, "Service instance")
		return
	}

	s.reloadRegistry()
	c.Status(http.StatusOK)
}

func (s *RESTServer) deleteServiceInstance(c *gin.Context) {
	if _, err := s.db.Exec("DELETE FROM service_instances WHERE id = ?", c.Param("id")); err != nil {
		respondDatabaseError(c, err)
		return
	}

	s.reloadRegistry()
	c.Status(http.StatusNoContent)
}

// testServiceConnection pings a possibly unsaved instance configuration.
func (s *RESTServer) testServiceConnection(c *gin.Context) {
	var req serviceInstanceRequest
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, false)
		return
	}
	if err := validateServiceType(req.Type); err != nil {
		respondBadRequest(c, err, true)
		return
	}
	if err := validateServiceURL(req.URL); err != nil {
		respondBadRequest(c, fmt.Errorf("invalid URL: %w", err), true)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	info := integration.ServiceInfo{
		Name:   req.Name,
		Type:   req.Type,
		URL:    req.URL,
		APIKey: req.APIKey,
	}
	if err := integration.TestConnection(ctx, info); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"status": "failed", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *RESTServer) reloadRegistry() {
	if err := s.registry.Reload(); err != nil {
		logger.Errorf("Failed to reload service registry: %v", err)
	}
}
