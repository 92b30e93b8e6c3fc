package domain

import (
	"encoding/json"
	"time"
)

const (
	AlertEventType     = "audit.alert"
	AlertSchemaVersion = 1
)

// AlertThreshold is the lowest severity forwarded through the outbox.
const AlertThreshold = SeverityError

func AlertTopic(s Severity) string {
	return "alerts." + string(s)
}

type AlertEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	AuditID       int64           `json:"audit_id"`
	UserID        string          `json:"user_id"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resource_type,omitempty"`
	ResourceID    string          `json:"resource_id,omitempty"`
	Severity      Severity        `json:"severity"`
	IPAddress     string          `json:"ip_address,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func NewAlertEnvelope(eventID string, entry AuditLogEntry) AlertEnvelope {
	return AlertEnvelope{
		EventID:       eventID,
		EventType:     AlertEventType,
		SchemaVersion: AlertSchemaVersion,
		AuditID:       entry.ID,
		UserID:        entry.UserID,
		Action:        entry.Action,
		ResourceType:  entry.ResourceType,
		ResourceID:    entry.ResourceID,
		Severity:      entry.Severity,
		IPAddress:     entry.IPAddress,
		Details:       entry.Details,
		OccurredAt:    entry.Timestamp,
	}
}

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxDispatched OutboxStatus = "dispatched"
	OutboxDead       OutboxStatus = "dead"
)

type OutboxEvent struct {
	ID            int64
	EventID       string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}
