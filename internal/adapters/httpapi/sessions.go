package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	current, _ := sessionFrom(r.Context())
	sessions, err := h.sessions.ListForUser(r.Context(), user.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	items := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionResponse(s, current.ID))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.sessions.Revoke(r.Context(), user.ID, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	h.audit.SessionsRevoked(r.Context(), user.ID, h.client(r), id, 1)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	n, err := h.sessions.RevokeOthers(r.Context(), user.ID, tokenFrom(r.Context()))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	h.audit.SessionsRevoked(r.Context(), user.ID, h.client(r), "", n)
	writeJSON(w, r, http.StatusOK, map[string]any{"revoked": n})
}
