package httpapi

import (
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/go-chi/chi/v5"
)

// logAudit appends an entry on behalf of the caller. Only admins may name
// another user, raise an alert-level severity or write a system action.
func (h *Handler) logAudit(w http.ResponseWriter, r *http.Request) {
	var req auditLogRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	user, _ := userFrom(r.Context())
	session, _ := sessionFrom(r.Context())

	subject := user.ID
	if req.UserID != "" && req.UserID != user.ID {
		if !user.IsAdmin() {
			writeError(w, r, http.StatusForbidden, domain.ErrForbidden.Error())
			return
		}
		subject = req.UserID
	}
	if !user.IsAdmin() && (domain.SystemAction(req.Action) || domain.Severity(req.Severity).AtLeast(domain.AlertThreshold)) {
		writeError(w, r, http.StatusForbidden, domain.ErrForbidden.Error())
		return
	}

	client := h.client(r)
	entry, err := h.audit.Log(r.Context(), domain.AuditLogEntry{
		UserID:       subject,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Details:      req.Details,
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
		Geolocation:  session.Geolocation,
		Severity:     domain.Severity(req.Severity),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toAuditEntryResponse(entry))
}

func (h *Handler) myAudit(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	h.listAudit(w, r, func(q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
		return h.audit.ByUser(r.Context(), user.ID, q)
	})
}

func (h *Handler) auditByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	h.listAudit(w, r, func(q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
		return h.audit.ByUser(r.Context(), userID, q)
	})
}

func (h *Handler) auditByAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	h.listAudit(w, r, func(q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
		return h.audit.ByAction(r.Context(), action, q)
	})
}

func (h *Handler) auditByResource(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "resourceType")
	resourceID := chi.URLParam(r, "resourceID")
	h.listAudit(w, r, func(q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
		return h.audit.ByResource(r.Context(), resourceType, resourceID, q)
	})
}

func (h *Handler) auditRecent(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeError(w, r, http.StatusBadRequest, "window must be a positive duration like 24h")
			return
		}
		window = parsed
	}
	h.listAudit(w, r, func(q domain.AuditQuery) ([]domain.AuditLogEntry, error) {
		return h.audit.Recent(r.Context(), window, q)
	})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request, query func(domain.AuditQuery) ([]domain.AuditLogEntry, error)) {
	q, ok := parseAuditQuery(w, r)
	if !ok {
		return
	}
	entries, err := query(q)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toAuditPage(entries, q))
}

func (h *Handler) auditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audit.Stats(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (h *Handler) upsertSchema(w http.ResponseWriter, r *http.Request) {
	var req schemaRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	schema, err := h.schemas.Upsert(r.Context(), chi.URLParam(r, "action"), req.Schema)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSchemaResponse(schema))
}

func (h *Handler) getSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.schemas.Get(r.Context(), chi.URLParam(r, "action"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSchemaResponse(schema))
}

func (h *Handler) deleteSchema(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.schemas.Delete(r.Context(), chi.URLParam(r, "action"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, r, http.StatusNotFound, domain.ErrNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
