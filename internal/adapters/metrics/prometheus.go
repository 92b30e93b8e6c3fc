package metrics

import (
	"net/http"
	"strconv"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trustgate"

// Recorder implements ports.Metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	rateLimitDecisions *prometheus.CounterVec
	auditEntries       *prometheus.CounterVec
	sessionsRevoked    *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		rateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limit checks by policy and outcome",
			},
			[]string{"policy", "outcome"},
		),
		auditEntries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_entries_total",
				Help:      "Audit log entries appended by severity",
			},
			[]string{"severity"},
		),
		sessionsRevoked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_revoked_total",
				Help:      "Sessions removed by reason (logout, revoked, revoke_others, expired)",
			},
			[]string{"reason"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route pattern",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (r *Recorder) RateLimitDecision(policy string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	r.rateLimitDecisions.WithLabelValues(policy, outcome).Inc()
}

func (r *Recorder) AuditLogged(severity domain.Severity) {
	r.auditEntries.WithLabelValues(string(severity)).Inc()
}

func (r *Recorder) SessionsRevoked(reason string, n int) {
	if n <= 0 {
		return
	}
	r.sessionsRevoked.WithLabelValues(reason).Add(float64(n))
}

func (r *Recorder) ObserveHTTP(method, route string, status int, seconds float64) {
	r.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}

// WatchRateLimiter exports the in-memory limiter's bucket table.
func (r *Recorder) WatchRateLimiter(limiter *usecase.MemoryRateLimiter) {
	factory := promauto.With(r.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rate_limit_tracked_keys",
		Help:      "Keys currently held by the in-memory rate limiter",
	}, func() float64 { return float64(limiter.Stats().TrackedKeys) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_sweeps_total",
		Help:      "Expired-bucket sweeps run by the in-memory rate limiter",
	}, func() float64 { return float64(limiter.Stats().Sweeps) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_swept_keys_total",
		Help:      "Expired buckets removed by sweeps",
	}, func() float64 { return float64(limiter.Stats().Swept) })
}

func (r *Recorder) WatchAlerts(dispatcher *usecase.AlertDispatcher) {
	factory := promauto.With(r.registry)
	for outcome, read := range map[string]func(usecase.AlertDispatchStats) int64{
		"delivered": func(s usecase.AlertDispatchStats) int64 { return s.Delivered },
		"retried":   func(s usecase.AlertDispatchStats) int64 { return s.Retried },
		"dead":      func(s usecase.AlertDispatchStats) int64 { return s.Dead },
	} {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "alert_dispatch_total",
			Help:        "Audit alert deliveries by outcome",
			ConstLabels: prometheus.Labels{"outcome": outcome},
		}, func() float64 { return float64(read(dispatcher.Stats())) })
	}
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
