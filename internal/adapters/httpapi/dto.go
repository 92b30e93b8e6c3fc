package httpapi

import (
	"encoding/json"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

type auditLogRequest struct {
	UserID       string          `json:"user_id" validate:"omitempty,max=64"`
	Action       string          `json:"action" validate:"required,max=128"`
	ResourceType string          `json:"resource_type" validate:"omitempty,max=64"`
	ResourceID   string          `json:"resource_id" validate:"omitempty,max=128"`
	Details      json.RawMessage `json:"details"`
	Severity     string          `json:"severity" validate:"omitempty,oneof=info warning error critical"`
}

type schemaRequest struct {
	Schema json.RawMessage `json:"schema" validate:"required"`
}

type projectRequest struct {
	Name        string     `json:"name" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Status      string     `json:"status" validate:"omitempty,oneof=planning active on_hold completed"`
	BudgetCents int64      `json:"budget_cents" validate:"min=0"`
	DueDate     *time.Time `json:"due_date"`
}

type projectPatchRequest struct {
	Name        *string    `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	Status      *string    `json:"status" validate:"omitempty,oneof=planning active on_hold completed"`
	BudgetCents *int64     `json:"budget_cents" validate:"omitempty,min=0"`
	DueDate     *time.Time `json:"due_date"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: formatTime(u.CreatedAt),
	}
}

type sessionResponse struct {
	ID             string              `json:"id"`
	Device         domain.DeviceInfo   `json:"device"`
	DeviceLabel    string              `json:"device_label"`
	IPAddress      string              `json:"ip_address,omitempty"`
	Geolocation    *domain.Geolocation `json:"geolocation,omitempty"`
	CreatedAt      string              `json:"created_at"`
	LastActivityAt string              `json:"last_activity_at"`
	ExpiresAt      string              `json:"expires_at"`
	Current        bool                `json:"current"`
}

func toSessionResponse(s domain.Session, currentID string) sessionResponse {
	return sessionResponse{
		ID:             s.ID,
		Device:         s.Device,
		DeviceLabel:    s.Device.Label(),
		IPAddress:      s.IPAddress,
		Geolocation:    s.Geolocation,
		CreatedAt:      formatTime(s.CreatedAt),
		LastActivityAt: formatTime(s.LastActivityAt),
		ExpiresAt:      formatTime(s.ExpiresAt),
		Current:        s.ID == currentID,
	}
}

type auditEntryResponse struct {
	ID           int64               `json:"id"`
	UserID       string              `json:"user_id"`
	Action       string              `json:"action"`
	ResourceType string              `json:"resource_type,omitempty"`
	ResourceID   string              `json:"resource_id,omitempty"`
	Details      json.RawMessage     `json:"details,omitempty"`
	IPAddress    string              `json:"ip_address,omitempty"`
	UserAgent    string              `json:"user_agent,omitempty"`
	Geolocation  *domain.Geolocation `json:"geolocation,omitempty"`
	Severity     domain.Severity     `json:"severity"`
	Timestamp    string              `json:"timestamp"`
}

func toAuditEntryResponse(e domain.AuditLogEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:           e.ID,
		UserID:       e.UserID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Geolocation:  e.Geolocation,
		Severity:     e.Severity,
		Timestamp:    formatTime(e.Timestamp),
	}
}

type auditPageResponse struct {
	Items      []auditEntryResponse `json:"items"`
	NextBefore int64                `json:"next_before,omitempty"`
}

// toAuditPage sets NextBefore only when the page is full.
func toAuditPage(entries []domain.AuditLogEntry, q domain.AuditQuery) auditPageResponse {
	q = q.Normalize()
	page := auditPageResponse{Items: make([]auditEntryResponse, 0, len(entries))}
	for _, e := range entries {
		page.Items = append(page.Items, toAuditEntryResponse(e))
	}
	if len(entries) == q.Limit && len(entries) > 0 {
		page.NextBefore = entries[len(entries)-1].ID
	}
	return page
}

type schemaResponse struct {
	Action    string          `json:"action"`
	Schema    json.RawMessage `json:"schema"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

func toSchemaResponse(s domain.DetailSchema) schemaResponse {
	return schemaResponse{
		Action:    s.Action,
		Schema:    s.Schema,
		CreatedAt: formatTime(s.CreatedAt),
		UpdatedAt: formatTime(s.UpdatedAt),
	}
}

type projectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	OwnerID     string `json:"owner_id"`
	BudgetCents int64  `json:"budget_cents"`
	DueDate     string `json:"due_date,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toProjectResponse(p domain.Project) projectResponse {
	resp := projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      string(p.Status),
		OwnerID:     p.OwnerID,
		BudgetCents: p.BudgetCents,
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
	if p.DueDate != nil {
		resp.DueDate = formatTime(*p.DueDate)
	}
	return resp
}
