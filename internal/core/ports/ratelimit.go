package ports

import (
	"context"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
)

// RateLimiter counts one call for key against policy.
type RateLimiter interface {
	Allow(ctx context.Context, key string, policy domain.RateLimitPolicy) (domain.RateLimitDecision, error)
}

// Metrics receives counters from the core services.
type Metrics interface {
	RateLimitDecision(policy string, allowed bool)
	AuditLogged(severity domain.Severity)
	SessionsRevoked(reason string, n int)
}
