package notifier

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/reclaimarr/reclaimarr/internal/crypto"
	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/eventbus"
	"github.com/reclaimarr/reclaimarr/internal/logger"
)

// notifierQueryTimeout is the maximum time for database queries in notifier.
const notifierQueryTimeout = 10 * time.Second

// Provider types
const (
	ProviderDiscord  = "discord"
	ProviderPushover = "pushover"
	ProviderTelegram = "telegram"
	ProviderSlack    = "slack"
	ProviderEmail    = "email"
	ProviderGotify   = "gotify"
	ProviderNtfy     = "ntfy"
	ProviderGeneric  = "generic"
	ProviderCustom   = "custom"
)

// NotificationConfig represents a notification provider configuration
type NotificationConfig struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	ProviderType    string          `json:"provider_type"`
	Config          json.RawMessage `json:"config"`
	Events          []string        `json:"events"`
	Enabled         bool            `json:"enabled"`
	ThrottleSeconds int             `json:"throttle_seconds"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

// DiscordConfig holds Discord webhook notification settings.
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// PushoverConfig holds Pushover notification settings.
type PushoverConfig struct {
	UserKey  string `json:"user_key"`
	AppToken string `json:"app_token"`
	Priority int    `json:"priority"` // -2 to 2
	Sound    string `json:"sound"`
}

type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url"`
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	To       string `json:"to"`
	TLS      bool   `json:"tls"`
}

type GotifyConfig struct {
	ServerURL string `json:"server_url"`
	AppToken  string `json:"app_token"`
	Priority  int    `json:"priority"` // 1-10
}

type NtfyConfig struct {
	ServerURL string `json:"server_url"` // Default: https://ntfy.sh
	Topic     string `json:"topic"`
	Priority  int    `json:"priority"` // 1-5
}

type GenericConfig struct {
	WebhookURL    string `json:"webhook_url"`    // Target URL
	Method        string `json:"method"`         // HTTP method (POST, GET, etc.)
	ContentType   string `json:"content_type"`   // Content-Type header
	CustomHeaders string `json:"custom_headers"` // Custom headers (key=value, one per line)
}

type CustomConfig struct {
	URL string `json:"url"` // Raw shoutrrr URL
}

// EventInfo contains details about a single event type
type EventInfo struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// EventGroup organizes related events for UI display
type EventGroup struct {
	Name   string      `json:"name"`
	Events []EventInfo `json:"events"`
}

// GetEventGroups returns all available event groups with labels and descriptions
func GetEventGroups() []EventGroup {
	return []EventGroup{
		{
			Name: "Scan Events",
			Events: []EventInfo{
				{string(domain.ScanStarted), "Scan Started", "When a retention scan of the catalog begins"},
				{string(domain.ScanCompleted), "Scan Completed", "When a scan finishes with the eligible item counts"},
				{string(domain.ScanFailed), "Scan Failed", "When the catalog cannot be fetched or evaluated"},
			},
		},
		{
			Name: "Deletion Events",
			Events: []EventInfo{
				{string(domain.DeletionRunStarted), "Deletion Run Started", "When a deletion batch starts processing"},
				{string(domain.DeletionRunCompleted), "Deletion Run Completed", "When a deletion batch finishes with its outcome counts"},
				{string(domain.DeletionRunFailed), "Deletion Run Failed", "When a deletion batch aborts before processing items"},
			},
		},
		{
			Name: "Exclusion Events",
			Events: []EventInfo{
				{string(domain.ItemExcluded), "Item Excluded", "When an item is pinned and protected from deletion"},
				{string(domain.ItemUnexcluded), "Item Unexcluded", "When an item's protection is removed"},
			},
		},
	}
}

// Notifier handles sending notifications based on events
type Notifier struct {
	db         *sql.DB
	eb         eventbus.Publisher
	configs    map[int64]*NotificationConfig
	lastSent   map[int64]time.Time // Per-provider throttling
	mu         sync.RWMutex
	stopChan   chan struct{}
	reloadChan chan struct{}
	wg         sync.WaitGroup
}

// NewNotifier creates a new notifier service
func NewNotifier(db *sql.DB, eb eventbus.Publisher) *Notifier {
	return &Notifier{
		db:         db,
		eb:         eb,
		configs:    make(map[int64]*NotificationConfig),
		lastSent:   make(map[int64]time.Time),
		stopChan:   make(chan struct{}),
		reloadChan: make(chan struct{}, 1),
	}
}

// Start begins listening for events
func (n *Notifier) Start() error {
	if err := n.loadConfigs(); err != nil {
		return fmt.Errorf("failed to load notification configs: %w", err)
	}

	for _, event := range n.getAllEvents() {
		eventType := domain.EventType(event) // Capture for closure
		n.eb.Subscribe(eventType, func(ev domain.Event) {
			data := ev.EventData
			if data == nil {
				data = make(map[string]interface{})
			}
			if ev.AggregateID != "" {
				data["aggregate_id"] = ev.AggregateID
			}
			n.handleEvent(string(eventType), data)
		})
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.backgroundWorker()
	}()

	logger.Infof("Notifier started with %d configurations", len(n.configs))
	return nil
}

// Stop stops the notifier and waits for background goroutines to exit
func (n *Notifier) Stop() {
	close(n.stopChan)
	n.wg.Wait()
}

// ReloadConfigs triggers a config reload
func (n *Notifier) ReloadConfigs() {
	select {
	case n.reloadChan <- struct{}{}:
	default:
		// Already a reload pending
	}
}

func (n *Notifier) backgroundWorker() {
	cleanupTicker := time.NewTicker(1 * time.Hour)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-n.stopChan:
			return
		case <-n.reloadChan:
			if err := n.loadConfigs(); err != nil {
				logger.Errorf("Failed to reload notification configs: %v", err)
			} else {
				logger.Infof("Notification configs reloaded: %d active", len(n.configs))
			}
		case <-cleanupTicker.C:
			n.cleanupOldLogs()
		}
	}
}

func (n *Notifier) loadConfigs() error {
	ctx, cancel := context.WithTimeout(context.Background(), notifierQueryTimeout)
	defer cancel()

	rows, err := n.db.QueryContext(ctx, `
		SELECT id, name, provider_type, config, events, enabled, throttle_seconds, created_at, updated_at
		FROM notifications
		WHERE enabled = 1
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	configs := make(map[int64]*NotificationConfig)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			logger.Errorf("Skipping unreadable notification config: %v", err)
			continue
		}
		configs[cfg.ID] = cfg
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating notification configs: %w", err)
	}

	n.mu.Lock()
	n.configs = configs
	n.mu.Unlock()
	return nil
}

func scanConfig(row interface {
	Scan(dest ...interface{}) error
}) (*NotificationConfig, error) {
	var cfg NotificationConfig
	var configJSON, eventsJSON string
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.ProviderType, &configJSON, &eventsJSON,
		&cfg.Enabled, &cfg.ThrottleSeconds, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	decrypted, err := crypto.Decrypt(configJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt config %d: %w", cfg.ID, err)
	}
	cfg.Config = json.RawMessage(decrypted)
	if err := json.Unmarshal([]byte(eventsJSON), &cfg.Events); err != nil {
		cfg.Events = []string{}
	}
	return &cfg, nil
}

func (n *Notifier) getAllEvents() []string {
	events := []string{}
	for _, group := range GetEventGroups() {
		for _, eventInfo := range group.Events {
			events = append(events, eventInfo.Name)
		}
	}
	return events
}

func (n *Notifier) handleEvent(eventType string, data map[string]interface{}) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, cfg := range n.configs {
		if !n.shouldNotify(cfg, eventType) {
			continue
		}
		if !n.canSend(cfg.ID, cfg.ThrottleSeconds) {
			logger.Debugf("Throttled notification %d for event %s", cfg.ID, eventType)
			continue
		}
		go n.sendNotification(cfg, eventType, data)
	}
}

func (n *Notifier) shouldNotify(cfg *NotificationConfig, eventType string) bool {
	for _, e := range cfg.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

func (n *Notifier) canSend(configID int64, throttleSeconds int) bool {
	n.mu.RLock()
	lastSent, exists := n.lastSent[configID]
	n.mu.RUnlock()

	if !exists {
		return true
	}
	return time.Since(lastSent) >= time.Duration(throttleSeconds)*time.Second
}

func (n *Notifier) sendNotification(cfg *NotificationConfig, eventType string, data map[string]interface{}) {
	var err error
	var message string

	if cfg.ProviderType == ProviderGeneric {
		err = n.sendGenericWebhook(cfg, eventType, data)
		message = fmt.Sprintf("[Generic Webhook] %s", eventType)
	} else {
		shoutrrrURL, buildErr := n.buildShoutrrrURL(cfg)
		if buildErr != nil {
			logger.Errorf("Failed to build shoutrrr URL for notification %d: %v", cfg.ID, buildErr)
			n.logNotification(cfg.ID, eventType, "", "failed", buildErr.Error())
			return
		}
		message = n.formatMessage(eventType, data)
		err = shoutrrr.Send(shoutrrrURL, message)
	}

	n.mu.Lock()
	n.lastSent[cfg.ID] = time.Now()
	n.mu.Unlock()

	aggregateID, _ := data["aggregate_id"].(string)
	providerLabel := n.getProviderLabel(cfg.ProviderType)

	if err != nil {
		logger.Errorf("Failed to send notification %d: %v", cfg.ID, err)
		n.logNotification(cfg.ID, eventType, message, "failed", err.Error())
		n.publishResult(domain.NotificationFailed, aggregateID, map[string]interface{}{
			"provider":      providerLabel,
			"trigger_event": eventType,
			"error":         err.Error(),
		})
	} else {
		logger.Debugf("Sent notification %d for event %s", cfg.ID, eventType)
		n.logNotification(cfg.ID, eventType, message, "sent", "")
		n.publishResult(domain.NotificationSent, aggregateID, map[string]interface{}{
			"provider":      providerLabel,
			"trigger_event": eventType,
		})
	}
}

func (n *Notifier) publishResult(eventType domain.EventType, aggregateID string, data map[string]interface{}) {
	if aggregateID == "" {
		return
	}
	if err := n.eb.Publish(domain.Event{
		AggregateType: "notification",
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventData:     data,
	}); err != nil {
		logger.Debugf("Failed to publish %s event: %v", eventType, err)
	}
}

// providerLabels maps provider types to human-readable labels
var providerLabels = map[string]string{
	ProviderDiscord:  "Discord",
	ProviderPushover: "Pushover",
	ProviderTelegram: "Telegram",
	ProviderSlack:    "Slack",
	ProviderEmail:    "Email",
	ProviderGotify:   "Gotify",
	ProviderNtfy:     "ntfy",
	ProviderGeneric:  "Generic Webhook",
	ProviderCustom:   "Custom (Shoutrrr URL)",
}

func (n *Notifier) getProviderLabel(providerType string) string {
	if label, ok := providerLabels[providerType]; ok {
		return label
	}
	return providerType
}

func (n *Notifier) buildShoutrrrURL(cfg *NotificationConfig) (string, error) {
	builder, ok := urlBuilders[cfg.ProviderType]
	if !ok {
		return "", fmt.Errorf("unknown provider type: %s", cfg.ProviderType)
	}
	return builder.BuildURL(cfg.Config)
}

// messageContext holds extracted data for message formatting
type messageContext struct {
	EntriesSeen   int
	EligibleCount int
	ExcludedCount int
	ItemCount     int
	Succeeded     int
	Failed        int
	Skipped       int
	DryRun        bool
	ErrorMsg      string
}

// extractMessageContext extracts common fields from event data
func extractMessageContext(data map[string]interface{}) messageContext {
	ctx := messageContext{
		EntriesSeen:   extractInt(data, "entries_seen"),
		EligibleCount: extractInt(data, "eligible_count"),
		ExcludedCount: extractInt(data, "excluded_count"),
		ItemCount:     extractInt(data, "item_count"),
		Succeeded:     extractInt(data, "succeeded"),
		Failed:        extractInt(data, "failed"),
		Skipped:       extractInt(data, "skipped"),
	}
	ctx.DryRun, _ = data["dry_run"].(bool)
	ctx.ErrorMsg, _ = data["error"].(string)
	return ctx
}

// extractInt extracts an int from a map, handling both int and float64 (from JSON).
func extractInt(data map[string]interface{}, key string) int {
	if v, ok := data[key].(int); ok {
		return v
	}
	if v, ok := data[key].(float64); ok {
		return int(v)
	}
	return 0
}

// messageFormatter is a function type for formatting event messages
type messageFormatter func(ctx messageContext) string

// messageFormatters maps event types to their message formatters
var messageFormatters = map[string]messageFormatter{
	string(domain.ScanStarted):          fmtScanStarted,
	string(domain.ScanCompleted):        fmtScanCompleted,
	string(domain.ScanFailed):           fmtScanFailed,
	string(domain.DeletionRunStarted):   fmtDeletionRunStarted,
	string(domain.DeletionRunCompleted): fmtDeletionRunCompleted,
	string(domain.DeletionRunFailed):    fmtDeletionRunFailed,
	string(domain.ItemExcluded):         fmtItemExcluded,
	string(domain.ItemUnexcluded):       fmtItemUnexcluded,
}

func fmtScanStarted(ctx messageContext) string {
	return "🔍 Retention scan started"
}

func fmtScanCompleted(ctx messageContext) string {
	return fmt.Sprintf("✅ Scan complete\n📊 %d entries, %d eligible for deletion, %d excluded",
		ctx.EntriesSeen, ctx.EligibleCount, ctx.ExcludedCount)
}

func fmtScanFailed(ctx messageContext) string {
	return fmt.Sprintf("❌ Scan failed\n⚠️ %s", ctx.ErrorMsg)
}

func fmtDeletionRunStarted(ctx messageContext) string {
	msg := fmt.Sprintf("🗑️ Deletion run started: %d item(s)", ctx.ItemCount)
	if ctx.DryRun {
		msg += "\n🧪 Dry-run mode, nothing will be deleted"
	}
	return msg
}

func fmtDeletionRunCompleted(ctx messageContext) string {
	return fmt.Sprintf("✅ Deletion run complete\n📊 %d succeeded, %d failed, %d skipped",
		ctx.Succeeded, ctx.Failed, ctx.Skipped)
}

func fmtDeletionRunFailed(ctx messageContext) string {
	return fmt.Sprintf("❌ Deletion run failed\n⚠️ %s", ctx.ErrorMsg)
}

func fmtItemExcluded(ctx messageContext) string {
	return "📌 Item excluded from deletion"
}

func fmtItemUnexcluded(ctx messageContext) string {
	return "📍 Item exclusion removed"
}

func (n *Notifier) formatMessage(eventType string, data map[string]interface{}) string {
	ctx := extractMessageContext(data)
	if formatter, ok := messageFormatters[eventType]; ok {
		return formatter(ctx)
	}
	return fmt.Sprintf("📢 Event: %s", eventType)
}

// GenericWebhookPayload is the rich JSON payload sent to generic webhooks
type GenericWebhookPayload struct {
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// sendGenericWebhook sends a rich JSON payload directly to a webhook URL
func (n *Notifier) sendGenericWebhook(cfg *NotificationConfig, eventType string, data map[string]interface{}) error {
	var c GenericConfig
	if err := json.Unmarshal(cfg.Config, &c); err != nil {
		return fmt.Errorf("invalid generic config: %w", err)
	}

	targetURL := c.WebhookURL
	if !strings.HasPrefix(targetURL, "http") {
		targetURL = "https://" + targetURL
	}

	structuredData := make(map[string]interface{})
	for _, key := range []string{
		"entries_seen", "eligible_count", "excluded_count",
		"item_count", "succeeded", "failed", "skipped", "dry_run", "error",
	} {
		if v, ok := data[key]; ok {
			structuredData[key] = v
		}
	}

	payload := GenericWebhookPayload{
		Title:     n.formatTitle(eventType),
		Message:   n.formatMessage(eventType, data),
		Event:     eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    "reclaimarr",
		Data:      structuredData,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	method := c.Method
	if method == "" {
		method = "POST"
	}
	req, err := http.NewRequest(method, targetURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	contentType := c.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "Reclaimarr/1.0")

	if c.CustomHeaders != "" {
		for _, line := range strings.Split(c.CustomHeaders, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				req.Header.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
			}
		}
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}

	logger.Debugf("Generic webhook sent successfully to %s (status: %d)", targetURL, resp.StatusCode)
	return nil
}

// eventTitles maps event types to short titles
var eventTitles = map[string]string{
	string(domain.ScanStarted):          "🔍 Scan Started",
	string(domain.ScanCompleted):        "✅ Scan Complete",
	string(domain.ScanFailed):           "❌ Scan Failed",
	string(domain.DeletionRunStarted):   "🗑️ Deletion Run Started",
	string(domain.DeletionRunCompleted): "✅ Deletion Run Complete",
	string(domain.DeletionRunFailed):    "❌ Deletion Run Failed",
	string(domain.ItemExcluded):         "📌 Item Excluded",
	string(domain.ItemUnexcluded):       "📍 Item Unexcluded",
}

func (n *Notifier) formatTitle(eventType string) string {
	if title, ok := eventTitles[eventType]; ok {
		return title
	}
	return fmt.Sprintf("📢 %s", eventType)
}

func (n *Notifier) logNotification(notificationID int64, eventType, message, status, errorMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifierQueryTimeout)
	defer cancel()

	_, err := n.db.ExecContext(ctx, `
		INSERT INTO notification_log (notification_id, event_type, message, status, error)
		VALUES (?, ?, ?, ?, ?)
	`, notificationID, eventType, message, status, errorMsg)
	if err != nil {
		logger.Errorf("Failed to log notification: %v", err)
	}
}

func (n *Notifier) cleanupOldLogs() {
	ctx, cancel := context.WithTimeout(context.Background(), notifierQueryTimeout)
	defer cancel()

	// Delete logs older than 7 days
	result, err := n.db.ExecContext(ctx, `
		DELETE FROM notification_log
		WHERE sent_at < datetime('now', '-7 days')
	`)
	if err != nil {
		logger.Errorf("Failed to cleanup notification logs: %v", err)
		return
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		logger.Infof("Cleaned up %d old notification log entries", rows)
	}
}

// SendTestNotification sends a test notification to verify configuration
func (n *Notifier) SendTestNotification(cfg *NotificationConfig) error {
	if cfg.ProviderType == ProviderGeneric {
		return n.sendGenericWebhook(cfg, "TestNotification", map[string]interface{}{})
	}

	shoutrrrURL, err := n.buildShoutrrrURL(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	message := "🧪 Reclaimarr Test Notification\n✅ Your notification configuration is working correctly!"
	if err := shoutrrr.Send(shoutrrrURL, message); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

// GetAllConfigs returns all notification configurations (for API)
func (n *Notifier) GetAllConfigs() ([]*NotificationConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), notifierQueryTimeout)
	defer cancel()

	rows, err := n.db.QueryContext(ctx, `
		SELECT id, name, provider_type, config, events, enabled, throttle_seconds, created_at, updated_at
		FROM notifications
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]*NotificationConfig, 0)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			logger.Errorf("Skipping unreadable notification config: %v", err)
			continue
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification configs: %w", err)
	}
	return configs, nil
}

// GetConfig returns a specific notification configuration
func (n *Notifier) GetConfig(id int64) (*NotificationConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), notifierQueryTimeout)
	defer cancel()

	row := n.db.QueryRowContext(ctx, `
		SELECT id, name, provider_type, config, events, enabled, throttle_seconds, created_at, updated_at
		FROM notifications
		WHERE id = ?
	`, id)
	return scanConfig(row)
}

// CreateConfig creates a new notification configuration
func (n *Notifier) CreateConfig(cfg *NotificationConfig) (int64, error) {
	eventsJSON, err := json.Marshal(cfg.Events)
	if err != nil {
		return 0, err
	}

	encryptedConfig, err := crypto.Encrypt(string(cfg.Config))
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifierQueryTimeout)
	defer cancel()

	result, err := n.db.ExecContext(ctx, `
		INSERT INTO notifications (name, provider_type, config, events, enabled, throttle_seconds)
		VALUES (?, ?, ?, ?, ?, ?)
	`, cfg.Name, cfg.ProviderType, encryptedConfig, string(eventsJSON), cfg.Enabled, cfg.ThrottleSeconds)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	n.ReloadConfigs()
	return id, nil
}

// UpdateConfig updates an existing notification configuration
func (n *Notifier) UpdateConfig(cfg *NotificationConfig) error {
	eventsJSON, err := json.Marshal(cfg.Events)
	if err != nil {
		return err
	}

	encryptedConfig, err := crypto.Encrypt(string(cfg.Config))
	if err != nil {
		return fmt.Errorf("failed to encrypt config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifierQueryTimeout)
	defer cancel()

	_, err = n.db.ExecContext(ctx, `
		UPDATE notifications
		SET name = ?, provider_type = ?, config = ?, events = ?, enabled = ?, throttle_seconds = ?, updated_at = datetime('now')
		WHERE id = ?
	`, cfg.Name, cfg.ProviderType, encryptedConfig, string(eventsJSON), cfg.Enabled, cfg.ThrottleSeconds, cfg.ID)
	if err != nil {
		return err
	}

	n.ReloadConfigs()
	return nil
}

// DeleteConfig deletes a notification configuration
func (n *Notifier) DeleteConfig(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), notifierQueryTimeout)
	defer cancel()

	if _, err := n.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := n.db.ExecContext(ctx, `DELETE FROM notification_log WHERE notification_id = ?`, id); err != nil {
		logger.Warnf("Failed to cleanup notification logs for id=%d: %v", id, err)
	}

	n.mu.Lock()
	delete(n.lastSent, id)
	n.mu.Unlock()

	n.ReloadConfigs()
	return nil
}

// GetNotificationLog returns recent notification log entries
func (n *Notifier) GetNotificationLog(notificationID int64, limit int) ([]NotificationLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifierQueryTimeout)
	defer cancel()

	query := `
		SELECT id, notification_id, event_type, message, status, error, sent_at
		FROM notification_log
	`
	args := []interface{}{}
	if notificationID > 0 {
		query += ` WHERE notification_id = ?`
		args = append(args, notificationID)
	}
	query += ` ORDER BY sent_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := n.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]NotificationLogEntry, 0)
	for rows.Next() {
		var entry NotificationLogEntry
		var message, errorMsg sql.NullString
		if err := rows.Scan(&entry.ID, &entry.NotificationID, &entry.EventType, &message, &entry.Status, &errorMsg, &entry.SentAt); err != nil {
			return nil, err
		}
		entry.Message = message.String
		entry.Error = errorMsg.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification log: %w", err)
	}
	return entries, nil
}

// NotificationLogEntry represents a notification log entry
type NotificationLogEntry struct {
	ID             int64  `json:"id"`
	NotificationID int64  `json:"notification_id"`
	EventType      string `json:"event_type"`
	Message        string `json:"message"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	SentAt         string `json:"sent_at"`
}
