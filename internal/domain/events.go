package domain

import (
	"time"
)

type EventType string

const (
	ScanStarted   EventType = "ScanStarted"
	ScanCompleted EventType = "ScanCompleted"
	ScanFailed    EventType = "ScanFailed"

	DeletionRunStarted   EventType = "DeletionRunStarted"
	DeletionRunCompleted EventType = "DeletionRunCompleted"
	DeletionRunFailed    EventType = "DeletionRunFailed"
	ItemProcessed        EventType = "ItemProcessed"

	ItemExcluded   EventType = "ItemExcluded"
	ItemUnexcluded EventType = "ItemUnexcluded"

	NotificationSent   EventType = "NotificationSent"
	NotificationFailed EventType = "NotificationFailed"
)

// Event is a persisted record of something that happened in the system.
// EventData is schemaless JSON; use the typed accessors below.
type Event struct {
	ID            int64                  `json:"id"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	EventVersion  int                    `json:"event_version"`
	CreatedAt     time.Time              `json:"created_at"`
}

// GetString safely extracts a string field from EventData.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetStringOr extracts a string field or returns the default value.
func (e *Event) GetStringOr(key, defaultVal string) string {
	if v, ok := e.GetString(key); ok {
		return v
	}
	return defaultVal
}

// GetInt safely extracts an integer field from EventData.
// JSON unmarshaling produces float64, so both forms are handled.
func (e *Event) GetInt(key string) (int, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// GetIntOr extracts an integer field or returns the default value.
func (e *Event) GetIntOr(key string, defaultVal int) int {
	if v, ok := e.GetInt(key); ok {
		return v
	}
	return defaultVal
}
