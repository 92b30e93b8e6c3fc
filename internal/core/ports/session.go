package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) (bool, error)
	DeleteOthers(ctx context.Context, userID, keepTokenHash string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// GeoLocator resolves an IP address. It returns nil when the lookup fails
// or the address is private.
type GeoLocator interface {
	Locate(ctx context.Context, ip string) *domain.Geolocation
}

type DeviceDetector interface {
	Detect(userAgent string) domain.DeviceInfo
}
