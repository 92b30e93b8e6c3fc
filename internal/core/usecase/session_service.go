package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Activity timestamps are written at most once per this interval per session.
const activityGranularity = time.Minute

type SessionService struct {
	repo    ports.SessionRepository
	geo     ports.GeoLocator
	devices ports.DeviceDetector
	metrics ports.Metrics
	ttl     time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSessionService wires the registry. geo, devices and metrics may be nil.
func NewSessionService(repo ports.SessionRepository, geo ports.GeoLocator, devices ports.DeviceDetector, metrics ports.Metrics, ttl time.Duration, logger zerolog.Logger) *SessionService {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	return &SessionService{
		repo:    repo,
		geo:     geo,
		devices: devices,
		metrics: metricsOrNop(metrics),
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Create registers a session for userID. The raw token is returned only here;
// the store keeps its hash.
func (s *SessionService) Create(ctx context.Context, userID string, client domain.ClientInfo) (domain.Session, string, error) {
	if userID == "" {
		return domain.Session{}, "", domain.ErrInvalidInput
	}
	token, err := newSessionToken()
	if err != nil {
		return domain.Session{}, "", err
	}

	now := s.now().UTC()
	session := domain.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		TokenHash:      HashToken(token),
		Device:         s.detect(client.UserAgent),
		IPAddress:      client.IPAddress,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if s.geo != nil && client.IPAddress != "" {
		session.Geolocation = s.geo.Locate(ctx, client.IPAddress)
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return domain.Session{}, "", err
	}
	s.logger.Info().
		Str("session_id", session.ID).
		Str("user_id", userID).
		Str("device", session.Device.Label()).
		Msg("session created")
	return session, token, nil
}

// Authenticate resolves a bearer token. Expired sessions are deleted on sight.
func (s *SessionService) Authenticate(ctx context.Context, token string) (domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Session{}, domain.ErrUnauthorized
	}

	session, err := s.repo.FindByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Session{}, domain.ErrUnauthorized
		}
		return domain.Session{}, err
	}

	now := s.now().UTC()
	if session.Expired(now) {
		if _, err := s.repo.DeleteByTokenHash(ctx, session.TokenHash); err != nil {
			s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("delete expired session")
		} else {
			s.metrics.SessionsRevoked("expired", 1)
		}
		return domain.Session{}, domain.ErrUnauthorized
	}

	if now.Sub(session.LastActivityAt) >= activityGranularity {
		if err := s.repo.Touch(ctx, session.ID, now); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// revoked between lookup and touch
				return domain.Session{}, domain.ErrUnauthorized
			}
			return domain.Session{}, fmt.Errorf("touch session: %w", err)
		}
		session.LastActivityAt = now
	}
	return session, nil
}

func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]domain.Session, error) {
	if userID == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.repo.ListByUser(ctx, userID)
}

// Revoke deletes one of userID's sessions.
func (s *SessionService) Revoke(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return domain.ErrInvalidInput
	}
	deleted, err := s.repo.Delete(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.metrics.SessionsRevoked("revoked", 1)
	return nil
}

func (s *SessionService) RevokeByToken(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, domain.ErrUnauthorized
	}
	deleted, err := s.repo.DeleteByTokenHash(ctx, HashToken(token))
	if err != nil {
		return false, err
	}
	if deleted {
		s.metrics.SessionsRevoked("logout", 1)
	}
	return deleted, nil
}

// RevokeOthers deletes every session of userID except the one holding currentToken.
func (s *SessionService) RevokeOthers(ctx context.Context, userID, currentToken string) (int64, error) {
	currentToken = strings.TrimSpace(currentToken)
	if userID == "" || currentToken == "" {
		return 0, domain.ErrInvalidInput
	}
	n, err := s.repo.DeleteOthers(ctx, userID, HashToken(currentToken))
	if err != nil {
		return 0, err
	}
	s.metrics.SessionsRevoked("revoke_others", int(n))
	return n, nil
}

func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.SessionsRevoked("expired", int(n))
	}
	return n, nil
}

func (s *SessionService) detect(userAgent string) domain.DeviceInfo {
	if s.devices == nil {
		return domain.DeviceInfo{UserAgent: userAgent}
	}
	return s.devices.Detect(userAgent)
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
