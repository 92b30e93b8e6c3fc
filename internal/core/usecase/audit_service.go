package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/ports"
	"github.com/rs/zerolog"
)

const defaultRecentWindow = 24 * time.Hour

type AuditService struct {
	repo    ports.AuditLogRepository
	users   ports.UserRepository
	schemas *DetailSchemaService
	metrics ports.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewAuditService wires the audit log. schemas and metrics may be nil.
func NewAuditService(repo ports.AuditLogRepository, users ports.UserRepository, schemas *DetailSchemaService, metrics ports.Metrics, logger zerolog.Logger) *AuditService {
	return &AuditService{
		repo:    repo,
		users:   users,
		schemas: schemas,
		metrics: metricsOrNop(metrics),
		logger:  logger,
		now:     time.Now,
	}
}

// Log appends one entry synchronously. Entries at or above the alert
// threshold are also queued for forwarding.
func (s *AuditService) Log(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	severity, err := domain.ParseSeverity(string(entry.Severity))
	if err != nil {
		return domain.AuditLogEntry{}, err
	}
	entry.Severity = severity
	if err := entry.Validate(); err != nil {
		return domain.AuditLogEntry{}, err
	}

	exists, err := s.users.Exists(ctx, entry.UserID)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("check audit user: %w", err)
	}
	if !exists {
		return domain.AuditLogEntry{}, domain.ErrUnknownUser
	}

	if s.schemas != nil {
		details := entry.Details
		if len(details) == 0 {
			details = json.RawMessage(`{}`)
		}
		if err := s.schemas.Validate(ctx, entry.Action, details); err != nil {
			return domain.AuditLogEntry{}, err
		}
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}

	alertTopic := ""
	if severity.AtLeast(domain.AlertThreshold) {
		alertTopic = domain.AlertTopic(severity)
	}

	saved, err := s.repo.Append(ctx, entry, alertTopic)
	if err != nil {
		return domain.AuditLogEntry{}, err
	}
	s.metrics.AuditLogged(severity)

	s.logger.WithLevel(zerologLevel(severity)).
		Int64("audit_id", saved.ID).
		Str("user_id", saved.UserID).
		Str("action", saved.Action).
		Str("resource_type", saved.ResourceType).
		Str("resource_id", saved.ResourceID).
		Str("ip", saved.IPAddress).
		Msg("audit entry recorded")
	return saved, nil
}

func (s *AuditService) ByUser(ctx context.Context, userID string, q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
	if userID == "" {
		return nil, domain.ErrInvalidInput
	}
	q = q.Normalize()
	return s.repo.List(ctx, domain.AuditFilter{UserID: userID, Before: q.Before, Limit: q.Limit})
}

func (s *AuditService) ByAction(ctx context.Context, action string, q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
	if err := domain.ValidateAction(action); err != nil {
		return nil, err
	}
	q = q.Normalize()
	return s.repo.List(ctx, domain.AuditFilter{Action: action, Before: q.Before, Limit: q.Limit})
}

func (s *AuditService) ByResource(ctx context.Context, resourceType, resourceID string, q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
	if resourceType == "" || resourceID == "" {
		return nil, domain.ErrInvalidResource
	}
	if err := domain.ValidateResource(resourceType, resourceID); err != nil {
		return nil, err
	}
	q = q.Normalize()
	return s.repo.List(ctx, domain.AuditFilter{ResourceType: resourceType, ResourceID: resourceID, Before: q.Before, Limit: q.Limit})
}

// Recent returns entries newer than now-window. A non-positive window means 24h.
func (s *AuditService) Recent(ctx context.Context, window time.Duration, q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
	if window <= 0 {
		window = defaultRecentWindow
	}
	q = q.Normalize()
	since := s.now().UTC().Add(-window)
	return s.repo.List(ctx, domain.AuditFilter{Since: since, Before: q.Before, Limit: q.Limit})
}

func (s *AuditService) Stats(ctx context.Context) (domain.AuditStats, error) {
	return s.repo.Stats(ctx, s.now().UTC())
}

func (s *AuditService) LoginSucceeded(ctx context.Context, session domain.Session) {
	s.record(ctx, domain.AuditLogEntry{
		UserID:       session.UserID,
		Action:       "auth.login",
		ResourceType: "session",
		ResourceID:   session.ID,
		Details:      detailsJSON(map[string]any{"device": session.Device.Label()}),
		IPAddress:    session.IPAddress,
		UserAgent:    session.Device.UserAgent,
		Geolocation:  session.Geolocation,
		Severity:     domain.SeverityInfo,
	})
}

func (s *AuditService) LoginFailed(ctx context.Context, userID string, client domain.ClientInfo, reason string) {
	s.record(ctx, domain.AuditLogEntry{
		UserID:    userID,
		Action:    "auth.login_failed",
		Details:   detailsJSON(map[string]any{"reason": reason}),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Severity:  domain.SeverityWarning,
	})
}

func (s *AuditService) Logout(ctx context.Context, session domain.Session) {
	s.record(ctx, domain.AuditLogEntry{
		UserID:       session.UserID,
		Action:       "auth.logout",
		ResourceType: "session",
		ResourceID:   session.ID,
		IPAddress:    session.IPAddress,
		UserAgent:    session.Device.UserAgent,
		Severity:     domain.SeverityInfo,
	})
}

func (s *AuditService) SessionsRevoked(ctx context.Context, userID string, client domain.ClientInfo, sessionID string, count int64) {
	entry := domain.AuditLogEntry{
		UserID:    userID,
		Action:    "session.revoked",
		Details:   detailsJSON(map[string]any{"count": count}),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Severity:  domain.SeverityInfo,
	}
	if sessionID != "" {
		entry.ResourceType = "session"
		entry.ResourceID = sessionID
	}
	s.record(ctx, entry)
}

func (s *AuditService) RateLimitExceeded(ctx context.Context, userID string, client domain.ClientInfo, policy string) {
	s.record(ctx, domain.AuditLogEntry{
		UserID:    userID,
		Action:    "rate_limit.exceeded",
		Details:   detailsJSON(map[string]any{"policy": policy}),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Severity:  domain.SeverityWarning,
	})
}

func (s *AuditService) ProjectChanged(ctx context.Context, userID string, client domain.ClientInfo, action, projectID string, severity domain.Severity, details map[string]any) {
	s.record(ctx, domain.AuditLogEntry{
		UserID:       userID,
		Action:       action,
		ResourceType: domain.ProjectResourceType,
		ResourceID:   projectID,
		Details:      detailsJSON(details),
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
		Severity:     severity,
	})
}

// record is used by the typed helpers; a failed write is logged, not returned,
// so the calling request still completes.
func (s *AuditService) record(ctx context.Context, entry domain.AuditLogEntry) {
	if _, err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("user_id", entry.UserID).
			Str("action", entry.Action).
			Msg("audit write failed")
	}
}

func detailsJSON(details map[string]any) json.RawMessage {
	if len(details) == 0 {
		return nil
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return nil
	}
	return encoded
}

func zerologLevel(s domain.Severity) zerolog.Level {
	switch s {
	case domain.SeverityWarning:
		return zerolog.WarnLevel
	case domain.SeverityError:
		return zerolog.ErrorLevel
	case domain.SeverityCritical:
		// not FatalLevel: that would exit the process
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
