package usecase

import (
	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/ports"
)

type nopMetrics struct{}

func (nopMetrics) RateLimitDecision(string, bool) {}
func (nopMetrics) AuditLogged(domain.Severity)    {}
func (nopMetrics) SessionsRevoked(string, int)    {}

func metricsOrNop(m ports.Metrics) ports.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
