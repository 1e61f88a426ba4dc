package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/eventbus"
	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// MetricsService exposes Prometheus metrics for Reclaimarr
type MetricsService struct {
	eventBus eventbus.Publisher

	// Counters
	scansTotal         *prometheus.CounterVec
	deletionRunsTotal  *prometheus.CounterVec
	itemsProcessed     *prometheus.CounterVec
	exclusionChanges   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec

	// Gauges
	eligibleItems    prometheus.Gauge
	excludedItems    prometheus.Gauge
	lastScanEntries  prometheus.Gauge

	// Histograms
	scanDuration        prometheus.Histogram
	deletionRunDuration prometheus.Histogram
}

// NewMetricsService creates a metrics service and registers its collectors
// with the default Prometheus registry.
func NewMetricsService(eb eventbus.Publisher) *MetricsService {
	return NewMetricsServiceWithRegistry(eb, prometheus.DefaultRegisterer)
}

// NewMetricsServiceWithRegistry registers the collectors with the given
// registry instead of the default one. Tests use this to stay isolated.
func NewMetricsServiceWithRegistry(eb eventbus.Publisher, reg prometheus.Registerer) *MetricsService {
	m := &MetricsService{
		eventBus: eb,

		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reclaimarr_scans_total",
				Help: "Total number of retention scans by outcome",
			},
			[]string{"outcome"}, // completed, failed
		),

		deletionRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reclaimarr_deletion_runs_total",
				Help: "Total number of deletion runs by outcome",
			},
			[]string{"outcome"}, // completed, failed
		),

		itemsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reclaimarr_items_processed_total",
				Help: "Total number of deletion batch items by result",
			},
			[]string{"result"},
		),

		exclusionChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reclaimarr_exclusion_changes_total",
				Help: "Total number of exclusion set changes by action",
			},
			[]string{"action"}, // excluded, unexcluded
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reclaimarr_notifications_total",
				Help: "Total number of notifications sent by outcome",
			},
			[]string{"outcome"}, // sent, failed
		),

		eligibleItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reclaimarr_eligible_items",
				Help: "Number of items in the eligible pool after the last scan",
			},
		),

		excludedItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reclaimarr_excluded_items",
				Help: "Number of excluded items seen by the last scan",
			},
		),

		lastScanEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "reclaimarr_last_scan_entries",
				Help: "Number of catalog entries fetched by the last scan",
			},
		),

		scanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reclaimarr_scan_duration_seconds",
				Help:    "Duration of retention scans in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1hour
			},
		),

		deletionRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reclaimarr_deletion_run_duration_seconds",
				Help:    "Duration of deletion runs in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}

	reg.MustRegister(
		m.scansTotal,
		m.deletionRunsTotal,
		m.itemsProcessed,
		m.exclusionChanges,
		m.notificationsTotal,
		m.eligibleItems,
		m.excludedItems,
		m.lastScanEntries,
		m.scanDuration,
		m.deletionRunDuration,
	)

	return m
}

// Start subscribes to events and updates metrics
func (m *MetricsService) Start() {
	m.eventBus.Subscribe(domain.ScanCompleted, m.handleScanCompleted)
	m.eventBus.Subscribe(domain.ScanFailed, m.handleScanFailed)
	m.eventBus.Subscribe(domain.DeletionRunCompleted, m.handleDeletionRunCompleted)
	m.eventBus.Subscribe(domain.DeletionRunFailed, m.handleDeletionRunFailed)
	m.eventBus.Subscribe(domain.ItemProcessed, m.handleItemProcessed)
	m.eventBus.Subscribe(domain.ItemExcluded, m.handleItemExcluded)
	m.eventBus.Subscribe(domain.ItemUnexcluded, m.handleItemUnexcluded)
	m.eventBus.Subscribe(domain.NotificationSent, m.handleNotificationSent)
	m.eventBus.Subscribe(domain.NotificationFailed, m.handleNotificationFailed)

	logger.Infof("Metrics service started")
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (m *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}

// Event handlers

func (m *MetricsService) handleScanCompleted(event domain.Event) {
	m.scansTotal.WithLabelValues("completed").Inc()
	if v, ok := event.EventData["eligible_count"].(float64); ok {
		m.eligibleItems.Set(v)
	}
	if v, ok := event.EventData["excluded_count"].(float64); ok {
		m.excludedItems.Set(v)
	}
	if v, ok := event.EventData["entries_seen"].(float64); ok {
		m.lastScanEntries.Set(v)
	}
	if v, ok := event.EventData["duration_seconds"].(float64); ok {
		m.scanDuration.Observe(v)
	}
}

func (m *MetricsService) handleScanFailed(event domain.Event) {
	m.scansTotal.WithLabelValues("failed").Inc()
}

func (m *MetricsService) handleDeletionRunCompleted(event domain.Event) {
	m.deletionRunsTotal.WithLabelValues("completed").Inc()
	if v, ok := event.EventData["duration_seconds"].(float64); ok {
		m.deletionRunDuration.Observe(v)
	}
}

func (m *MetricsService) handleDeletionRunFailed(event domain.Event) {
	m.deletionRunsTotal.WithLabelValues("failed").Inc()
}

func (m *MetricsService) handleItemProcessed(event domain.Event) {
	result := "unknown"
	if r, ok := event.EventData["result"].(string); ok && r != "" {
		result = r
	}
	m.itemsProcessed.WithLabelValues(result).Inc()
}

func (m *MetricsService) handleItemExcluded(event domain.Event) {
	m.exclusionChanges.WithLabelValues("excluded").Inc()
}

func (m *MetricsService) handleItemUnexcluded(event domain.Event) {
	m.exclusionChanges.WithLabelValues("unexcluded").Inc()
}

func (m *MetricsService) handleNotificationSent(event domain.Event) {
	m.notificationsTotal.WithLabelValues("sent").Inc()
}

func (m *MetricsService) handleNotificationFailed(event domain.Event) {
	m.notificationsTotal.WithLabelValues("failed").Inc()
}
