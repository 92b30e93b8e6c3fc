package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// Severities lists every level from least to most severe.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
}

// ParseSeverity maps the empty string to info.
func ParseSeverity(raw string) (Severity, error) {
	if raw == "" {
		return SeverityInfo, nil
	}
	s := Severity(raw)
	if _, ok := severityRank[s]; !ok {
		return "", ErrInvalidSeverity
	}
	return s, nil
}

func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// systemActionPrefixes name the namespaces the service writes itself.
var systemActionPrefixes = []string{"auth.", "session.", "rate_limit."}

// SystemAction reports whether action belongs to a namespace that only the
// service or an admin may write.
func SystemAction(action string) bool {
	for _, p := range systemActionPrefixes {
		if strings.HasPrefix(action, p) {
			return true
		}
	}
	return false
}

type Geolocation struct {
	City      string  `json:"city,omitempty"`
	Region    string  `json:"region,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// AuditLogEntry is append-only: once stored it is never updated or deleted.
type AuditLogEntry struct {
	ID           int64
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Details      json.RawMessage
	IPAddress    string
	UserAgent    string
	Geolocation  *Geolocation
	Severity     Severity
	Timestamp    time.Time
}

func (e AuditLogEntry) Validate() error {
	if e.UserID == "" {
		return ErrUnknownUser
	}
	if err := ValidateAction(e.Action); err != nil {
		return err
	}
	if _, err := ParseSeverity(string(e.Severity)); err != nil {
		return err
	}
	if err := ValidateResource(e.ResourceType, e.ResourceID); err != nil {
		return err
	}
	if len(e.Details) > 0 {
		trimmed := bytes.TrimSpace(e.Details)
		if !json.Valid(trimmed) || len(trimmed) == 0 || trimmed[0] != '{' {
			return ErrInvalidDetails
		}
	}
	return nil
}

// AuditFilter selects entries newest first. Before is an exclusive id cursor.
type AuditFilter struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Since        time.Time
	Before       int64
	Limit        int
}

type AuditQuery struct {
	Before int64
	Limit  int
}

func (q AuditQuery) Normalize() AuditQuery {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}
	if q.Before < 0 {
		q.Before = 0
	}
	return q
}

type AuditStats struct {
	Total      int64              `json:"total"`
	BySeverity map[Severity]int64 `json:"by_severity"`
	Last24h    int64              `json:"last_24h"`
	Last7d     int64              `json:"last_7d"`
}
