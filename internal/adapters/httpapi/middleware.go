package httpapi

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type ctxKey int

const (
	sessionCtxKey ctxKey = iota
	userCtxKey
	tokenCtxKey
)

func sessionFrom(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(sessionCtxKey).(domain.Session)
	return s, ok
}

func userFrom(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userCtxKey).(domain.User)
	return u, ok
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenCtxKey).(string)
	return t
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(raw[len(prefix):])
}

func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}
		session, err := h.sessions.Authenticate(r.Context(), token)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		user, err := h.accounts.Get(r.Context(), session.UserID)
		if err != nil {
			handleDomainError(w, r, domain.ErrUnauthorized)
			return
		}

		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("user_id", user.ID)
		})
		ctx := context.WithValue(r.Context(), sessionCtxKey, session)
		ctx = context.WithValue(ctx, userCtxKey, user)
		ctx = context.WithValue(ctx, tokenCtxKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFrom(r.Context())
		if !ok || !user.IsAdmin() {
			writeError(w, r, http.StatusForbidden, domain.ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) ipKey(r *http.Request) (string, error) {
	ip, err := h.clientIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

func userKey(r *http.Request) (string, error) {
	user, ok := userFrom(r.Context())
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return "user:" + user.ID, nil
}

// rateLimit applies policy per key. Limiter errors let the request through.
func (h *Handler) rateLimit(policy domain.RateLimitPolicy, key func(*http.Request) (string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			k, err := key(r)
			if err != nil {
				hlog.FromRequest(r).Warn().Err(err).Str("policy", policy.Name).Msg("rate limit key unavailable")
				next.ServeHTTP(w, r)
				return
			}
			decision, err := h.limiter.Allow(r.Context(), k, policy)
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Str("policy", policy.Name).Msg("rate limiter failed")
				next.ServeHTTP(w, r)
				return
			}
			if h.metrics != nil {
				h.metrics.RateLimitDecision(policy.Name, decision.Allowed)
			}

			now := h.now()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := int(math.Ceil(decision.RetryAfter(now).Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			if user, ok := userFrom(r.Context()); ok && h.audit != nil {
				h.audit.RateLimitExceeded(r.Context(), user.ID, h.client(r), policy.Name)
			}
			hlog.FromRequest(r).Warn().Str("policy", policy.Name).Str("key", k).Msg("rate limit exceeded")
			writeJSON(w, r, http.StatusTooManyRequests, map[string]any{
				"error":       "rate limit exceeded",
				"retry_after": retry,
			})
		})
	}
}

// accessLog logs every request once and feeds the duration histogram.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
		if h.opts.ObserveHTTP != nil {
			h.opts.ObserveHTTP(r.Method, route, status, duration.Seconds())
		}
	})(next)
}
