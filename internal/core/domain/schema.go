package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrSchemaViolation is returned when audit details do not conform to the
// schema registered for the action. Errors holds machine-readable details.
type ErrSchemaViolation struct {
	Errors []string
}

func (e *ErrSchemaViolation) Error() string {
	return fmt.Sprintf("details validation failed: %s", strings.Join(e.Errors, "; "))
}

// DetailSchema holds the JSON Schema document configured for an audit action.
type DetailSchema struct {
	Action    string
	Schema    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}
