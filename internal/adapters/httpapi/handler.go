package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/ports"
	"github.com/atvirokodosprendimai/trustgate/internal/core/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const (
	timeFormat      = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize = 1 << 20
)

type Services struct {
	Accounts *usecase.AccountService
	Sessions *usecase.SessionService
	Audit    *usecase.AuditService
	Schemas  *usecase.DetailSchemaService
	Projects *usecase.ProjectService
	Limiter  ports.RateLimiter
	Metrics  ports.Metrics
}

type Options struct {
	AuthPolicy  domain.RateLimitPolicy
	APIPolicy   domain.RateLimitPolicy
	TrustProxy  bool
	CORSOrigins []string
	Logger      zerolog.Logger

	// MetricsHandler is mounted on /metrics when set.
	MetricsHandler http.Handler
	// ObserveHTTP receives one call per finished request.
	ObserveHTTP func(method, route string, status int, seconds float64)
	// Ready backs /healthz.
	Ready func(ctx context.Context) error
}

type Handler struct {
	accounts *usecase.AccountService
	sessions *usecase.SessionService
	audit    *usecase.AuditService
	schemas  *usecase.DetailSchemaService
	projects *usecase.ProjectService
	limiter  ports.RateLimiter
	metrics  ports.Metrics

	opts     Options
	validate *validator.Validate
	clientIP httprate.KeyFunc
	now      func() time.Time
}

func NewHandler(svc Services, opts Options) *Handler {
	keyFn := httprate.KeyByIP
	if opts.TrustProxy {
		keyFn = httprate.KeyByRealIP
	}
	return &Handler{
		accounts: svc.Accounts,
		sessions: svc.Sessions,
		audit:    svc.Audit,
		schemas:  svc.Schemas,
		projects: svc.Projects,
		limiter:  svc.Limiter,
		metrics:  svc.Metrics,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clientIP: keyFn,
		now:      time.Now,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(h.opts.Logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	if len(h.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", "X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	if h.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.opts.MetricsHandler)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(h.rateLimit(h.opts.AuthPolicy, h.ipKey))
		pr.Post("/v1/auth/register", h.register)
		pr.Post("/v1/auth/login", h.login)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireSession)
		pr.Use(h.rateLimit(h.opts.APIPolicy, userKey))

		pr.Post("/v1/auth/logout", h.logout)
		pr.Get("/v1/me", h.me)

		pr.Get("/v1/sessions", h.listSessions)
		pr.Delete("/v1/sessions/{id}", h.revokeSession)
		pr.Post("/v1/sessions:revoke-others", h.revokeOtherSessions)

		pr.Post("/v1/audit", h.logAudit)
		pr.Get("/v1/audit/me", h.myAudit)

		pr.Get("/v1/projects", h.listProjects)
		pr.Post("/v1/projects", h.createProject)
		pr.Get("/v1/projects/{id}", h.getProject)
		pr.Patch("/v1/projects/{id}", h.updateProject)
		pr.Delete("/v1/projects/{id}", h.deleteProject)

		pr.Group(func(ar chi.Router) {
			ar.Use(requireAdmin)
			ar.Get("/v1/audit/users/{userID}", h.auditByUser)
			ar.Get("/v1/audit/actions/{action}", h.auditByAction)
			ar.Get("/v1/audit/resources/{resourceType}/{resourceID}", h.auditByResource)
			ar.Get("/v1/audit/recent", h.auditRecent)
			ar.Get("/v1/audit/stats", h.auditStats)

			ar.Put("/v1/audit/schemas/{action}", h.upsertSchema)
			ar.Get("/v1/audit/schemas/{action}", h.getSchema)
			ar.Delete("/v1/audit/schemas/{action}", h.deleteSchema)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ready(ctx); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]bool{"ok": false})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, openapiSpec())
}

func (h *Handler) client(r *http.Request) domain.ClientInfo {
	ip, err := h.clientIP(r)
	if err != nil {
		ip = ""
	}
	return domain.ClientInfo{IPAddress: ip, UserAgent: r.UserAgent()}
}

// decodeJSON reads a single JSON value into dst and runs struct validation.
// It writes the 400 response itself and reports false on failure.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, r, err)
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func parseAuditQuery(w http.ResponseWriter, r *http.Request) (domain.AuditQuery, bool) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return domain.AuditQuery{}, false
	}
	q := domain.AuditQuery{Limit: limit}
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || before < 0 {
			writeError(w, r, http.StatusBadRequest, "before must be a positive integer")
			return domain.AuditQuery{}, false
		}
		q.Before = before
	}
	return q, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encode json response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, map[string]any{"error": message})
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		writeError(w, r, http.StatusBadRequest, "invalid request")
		return
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	writeJSON(w, r, http.StatusBadRequest, map[string]any{"error": "invalid request", "fields": fields})
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var schemaErr *domain.ErrSchemaViolation
	switch {
	case errors.As(err, &schemaErr):
		writeJSON(w, r, http.StatusUnprocessableEntity, map[string]any{"error": "details do not match schema", "details": schemaErr.Errors})
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, domain.ErrInvalidSeverity),
		errors.Is(err, domain.ErrInvalidResource),
		errors.Is(err, domain.ErrInvalidDetails),
		errors.Is(err, domain.ErrInvalidPolicy):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownUser):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrDuplicateEmail):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}
