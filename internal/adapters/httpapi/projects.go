package httpapi

import (
	"net/http"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/usecase"
	"github.com/go-chi/chi/v5"
)

// listProjects returns the caller's projects. Admins may pass ?owner= or
// omit it to see every project.
func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	filter := domain.ProjectFilter{
		OwnerID: user.ID,
		Status:  domain.ProjectStatus(r.URL.Query().Get("status")),
		After:   r.URL.Query().Get("after"),
		Limit:   limit,
	}
	if user.IsAdmin() {
		filter.OwnerID = r.URL.Query().Get("owner")
	}

	projects, err := h.projects.List(r.Context(), filter)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	items := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		items = append(items, toProjectResponse(p))
	}
	resp := map[string]any{"items": items}
	if len(projects) > 0 && len(projects) == pageSize(limit) {
		resp["next_after"] = projects[len(projects)-1].ID
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	user, _ := userFrom(r.Context())
	project, err := h.projects.Create(r.Context(), user, h.client(r), domain.Project{
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.ProjectStatus(req.Status),
		BudgetCents: req.BudgetCents,
		DueDate:     req.DueDate,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toProjectResponse(project))
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	project, err := h.projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !user.IsAdmin() && project.OwnerID != user.ID {
		handleDomainError(w, r, domain.ErrForbidden)
		return
	}
	writeJSON(w, r, http.StatusOK, toProjectResponse(project))
}

func (h *Handler) updateProject(w http.ResponseWriter, r *http.Request) {
	var req projectPatchRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	patch := usecase.ProjectPatch{
		Name:        req.Name,
		Description: req.Description,
		BudgetCents: req.BudgetCents,
		DueDate:     req.DueDate,
	}
	if req.Status != nil {
		status := domain.ProjectStatus(*req.Status)
		patch.Status = &status
	}

	user, _ := userFrom(r.Context())
	project, err := h.projects.Update(r.Context(), user, h.client(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toProjectResponse(project))
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	if err := h.projects.Delete(r.Context(), user, h.client(r), chi.URLParam(r, "id")); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	}
	return limit
}
