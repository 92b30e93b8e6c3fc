package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/ports"
	"github.com/google/uuid"
)

type ProjectService struct {
	repo  ports.ProjectRepository
	audit *AuditService
	now   func() time.Time
}

func NewProjectService(repo ports.ProjectRepository, audit *AuditService) *ProjectService {
	return &ProjectService{repo: repo, audit: audit, now: time.Now}
}

// ProjectPatch carries the fields to change; nil fields are left alone.
type ProjectPatch struct {
	Name        *string
	Description *string
	Status      *domain.ProjectStatus
	BudgetCents *int64
	DueDate     *time.Time
}

func (s *ProjectService) Create(ctx context.Context, actor domain.User, client domain.ClientInfo, p domain.Project) (domain.Project, error) {
	now := s.now().UTC()
	p.ID = uuid.NewString()
	p.Name = strings.TrimSpace(p.Name)
	p.OwnerID = actor.ID
	if p.Status == "" {
		p.Status = domain.ProjectPlanning
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := p.Validate(); err != nil {
		return domain.Project{}, err
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return domain.Project{}, err
	}
	s.audit.ProjectChanged(ctx, actor.ID, client, "project.created", created.ID, domain.SeverityInfo,
		map[string]any{"name": created.Name, "status": created.Status})
	return created, nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (domain.Project, error) {
	if id == "" {
		return domain.Project{}, domain.ErrInvalidInput
	}
	return s.repo.Get(ctx, id)
}

func (s *ProjectService) List(ctx context.Context, filter domain.ProjectFilter) ([]domain.Project, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.List(ctx, filter)
}

func (s *ProjectService) Update(ctx context.Context, actor domain.User, client domain.ClientInfo, id string, patch ProjectPatch) (domain.Project, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if !canModify(actor, p) {
		return domain.Project{}, domain.ErrForbidden
	}

	changed := make([]string, 0, 5)
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
		changed = append(changed, "name")
	}
	if patch.Description != nil {
		p.Description = *patch.Description
		changed = append(changed, "description")
	}
	if patch.Status != nil {
		p.Status = *patch.Status
		changed = append(changed, "status")
	}
	if patch.BudgetCents != nil {
		p.BudgetCents = *patch.BudgetCents
		changed = append(changed, "budget_cents")
	}
	if patch.DueDate != nil {
		due := patch.DueDate.UTC()
		p.DueDate = &due
		changed = append(changed, "due_date")
	}
	if len(changed) == 0 {
		return p, nil
	}
	p.UpdatedAt = s.now().UTC()
	if err := p.Validate(); err != nil {
		return domain.Project{}, err
	}

	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return domain.Project{}, err
	}
	s.audit.ProjectChanged(ctx, actor.ID, client, "project.updated", updated.ID, domain.SeverityInfo,
		map[string]any{"changed": changed})
	return updated, nil
}

func (s *ProjectService) Delete(ctx context.Context, actor domain.User, client domain.ClientInfo, id string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(actor, p) {
		return domain.ErrForbidden
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.audit.ProjectChanged(ctx, actor.ID, client, "project.deleted", id, domain.SeverityWarning,
		map[string]any{"name": p.Name})
	return nil
}

func canModify(actor domain.User, p domain.Project) bool {
	return actor.IsAdmin() || actor.ID == p.OwnerID
}
