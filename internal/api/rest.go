// Package api provides the REST API handlers and server for Reclaimarr.
// It includes endpoints for running scans, starting deletion runs, managing
// exclusions and service configuration, and real-time updates via WebSocket.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reclaimarr/reclaimarr/internal/config"
	"github.com/reclaimarr/reclaimarr/internal/eventbus"
	"github.com/reclaimarr/reclaimarr/internal/integration"
	"github.com/reclaimarr/reclaimarr/internal/logger"
	"github.com/reclaimarr/reclaimarr/internal/metrics"
	"github.com/reclaimarr/reclaimarr/internal/notifier"
	"github.com/reclaimarr/reclaimarr/internal/services"
)

type RESTServer struct {
	router       *gin.Engine
	httpServer   *http.Server
	db           *sql.DB
	eventBus     *eventbus.EventBus
	registry     *integration.Registry
	source       services.ServiceSource
	scanner      *services.ScanService
	orchestrator *services.Orchestrator
	exclusions   *services.ExclusionService
	notifier     *notifier.Notifier
	metrics      *metrics.MetricsService
	hub          *WebSocketHub
	startTime    time.Time
}

// ServerDeps contains all dependencies required for the REST server
type ServerDeps struct {
	DB           *sql.DB
	EventBus     *eventbus.EventBus
	Registry     *integration.Registry
	Source       services.ServiceSource
	Scanner      *services.ScanService
	Orchestrator *services.Orchestrator
	Exclusions   *services.ExclusionService
	Notifier     *notifier.Notifier
	Metrics      *metrics.MetricsService
}

func NewRESTServer(deps ServerDeps) *RESTServer {
	// Set Gin to release mode for production (suppresses debug warnings)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Request ID middleware for correlation/tracing
	r.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = fmt.Sprintf("%d-%d", time.Now().UnixNano(), c.Request.ContentLength)
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	})

	// Custom recovery middleware with enhanced logging
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		reqID := c.GetString("request_id")
		logger.Errorf("[PANIC RECOVERY] request_id=%s path=%s method=%s error=%v",
			reqID, c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      ErrMsgInternalError,
			"request_id": reqID,
		})
	}))

	// CORS middleware - configurable via RECLAIMARR_CORS_ORIGIN env var
	// If not set, defaults to same-origin (no CORS header = browser enforces same-origin)
	// Set to "*" only for development, or specify allowed origins comma-separated
	corsOrigins := os.Getenv("RECLAIMARR_CORS_ORIGIN")
	allowedOrigins := make(map[string]bool)
	if corsOrigins != "" {
		for _, origin := range strings.Split(corsOrigins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	r.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if corsOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		// If no match, don't set Access-Control-Allow-Origin (same-origin policy applies)

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	s := &RESTServer{
		router:       r,
		db:           deps.DB,
		eventBus:     deps.EventBus,
		registry:     deps.Registry,
		source:       deps.Source,
		scanner:      deps.Scanner,
		orchestrator: deps.Orchestrator,
		exclusions:   deps.Exclusions,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		hub:          NewWebSocketHub(deps.EventBus),
		startTime:    time.Now(),
	}

	s.setupRoutes()

	return s
}

// routeNotificationByID is the route path for notification operations by ID
const routeNotificationByID = "/config/notifications/:id"

func (s *RESTServer) setupRoutes() {
	cfg := config.Get()
	basePath := cfg.BasePath

	// Prometheus metrics endpoint at root level (standard convention, not behind base path)
	// This makes it easy for Prometheus to discover and scrape without knowing the base path
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Create a group for the base path (or use root if basePath is "/")
	var base *gin.RouterGroup
	if basePath == "/" {
		base = s.router.Group("")
	} else {
		base = s.router.Group(basePath)
		// Redirect root to base path
		s.router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, basePath)
		})
	}

	api := base.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/system/info", s.handleSystemInfo)
		api.GET("/metrics", gin.WrapH(s.metrics.Handler()))

		// Scans and the eligible pool
		api.POST("/scan", s.triggerScan)
		api.GET("/scans", s.getScanHistory)
		api.GET("/eligible", s.getEligible)

		// Deletion runs
		api.POST("/deletions", s.startDeletionRun)
		api.GET("/deletions", s.getDeletionRuns)
		api.GET("/deletions/:id", s.getDeletionRun)
		api.GET("/deletions/:id/outcomes", s.getDeletionOutcomes)

		// Exclusions
		api.GET("/exclusions", s.getExclusions)
		api.POST("/exclusions", s.createExclusion)
		api.POST("/exclusions/all", s.excludeAllEligible)
		api.DELETE("/exclusions/:item_id", s.deleteExclusion)

		// Retention policy
		api.GET("/config/policy", s.getPolicy)
		api.PUT("/config/policy", s.updatePolicy)

		// Service instances (catalog + acquisition managers)
		api.GET("/config/services", s.getServiceInstances)
		api.POST("/config/services", s.createServiceInstance)
		api.POST("/config/services/test", s.testServiceConnection)
		api.PUT("/config/services/:id", s.updateServiceInstance)
		api.DELETE("/config/services/:id", s.deleteServiceInstance)

		// Notifications
		api.GET("/config/notifications", s.getNotifications)
		api.POST("/config/notifications", s.createNotification)
		api.PUT(routeNotificationByID, s.updateNotification)
		api.DELETE(routeNotificationByID, s.deleteNotification)
		api.POST("/config/notifications/test", s.testNotification)
		api.GET("/config/notifications/events", s.getNotificationEvents)
		api.GET(routeNotificationByID+"/log", s.getNotificationLog)
		api.GET(routeNotificationByID, s.getNotification)

		// Upcoming episodes from the series manager calendar
		api.GET("/upcoming", s.getUpcoming)

		// Logs
		api.GET("/logs/recent", s.handleRecentLogs)

		api.GET("/ws", func(c *gin.Context) {
			s.hub.HandleConnection(c)
		})
	}

	// No bundled web UI; anything outside /api is answered with a pointer
	// to the API root.
	s.router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
		} else {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Not found",
				"api":   basePath + "api/",
			})
		}
	})
}

func (s *RESTServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and the websocket hub.
func (s *RESTServer) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
