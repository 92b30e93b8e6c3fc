package httpapi

import (
	"net/http"

	"github.com/atvirokodosprendimai/trustgate/internal/core/usecase"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	user, err := h.accounts.Register(r.Context(), usecase.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}, h.client(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	res, err := h.accounts.Login(r.Context(), req.Email, req.Password, h.client(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"token":   res.Token,
		"user":    toUserResponse(res.User),
		"session": toSessionResponse(res.Session, res.Session.ID),
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	if err := h.accounts.Logout(r.Context(), session, tokenFrom(r.Context())); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	session, _ := sessionFrom(r.Context())
	writeJSON(w, r, http.StatusOK, map[string]any{
		"user":    toUserResponse(user),
		"session": toSessionResponse(session, session.ID),
	})
}
