package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"gorm.io/gorm"
)

type projectModel struct {
	ID          string     `gorm:"column:id;primaryKey"`
	Name        string     `gorm:"column:name;not null"`
	Description string     `gorm:"column:description;not null"`
	Status      string     `gorm:"column:status;not null"`
	OwnerID     string     `gorm:"column:owner_id;not null"`
	BudgetCents int64      `gorm:"column:budget_cents;not null"`
	DueDate     *time.Time `gorm:"column:due_date"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null"`
}

func (projectModel) TableName() string {
	return "projects"
}

type ProjectRepository struct {
	db *gormsqlite.DB
}

func NewProjectRepository(db *gormsqlite.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p domain.Project) (domain.Project, error) {
	model := toProjectModel(p)
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return toProjectDomain(model), nil
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (domain.Project, error) {
	var model projectModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Project{}, domain.ErrNotFound
		}
		return domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	return toProjectDomain(model), nil
}

func (r *ProjectRepository) List(ctx context.Context, filter domain.ProjectFilter) ([]domain.Project, error) {
	var rows []projectModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&projectModel{})
		if filter.OwnerID != "" {
			query = query.Where("owner_id = ?", filter.OwnerID)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", string(filter.Status))
		}
		if filter.After != "" {
			query = query.Where("id > ?", filter.After)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		return query.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	result := make([]domain.Project, 0, len(rows))
	for _, row := range rows {
		result = append(result, toProjectDomain(row))
	}
	return result, nil
}

func (r *ProjectRepository) Update(ctx context.Context, p domain.Project) (domain.Project, error) {
	model := toProjectModel(p)
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&projectModel{}).Where("id = ?", p.ID).Updates(map[string]any{
			"name":         model.Name,
			"description":  model.Description,
			"status":       model.Status,
			"budget_cents": model.BudgetCents,
			"due_date":     model.DueDate,
			"updated_at":   model.UpdatedAt,
		})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", err)
	}
	if affected == 0 {
		return domain.Project{}, domain.ErrNotFound
	}
	return r.Get(ctx, p.ID)
}

func (r *ProjectRepository) Delete(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("id = ?", id).Delete(&projectModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	return affected > 0, nil
}

func toProjectModel(p domain.Project) projectModel {
	var due *time.Time
	if p.DueDate != nil {
		d := p.DueDate.UTC()
		due = &d
	}
	return projectModel{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      string(p.Status),
		OwnerID:     p.OwnerID,
		BudgetCents: p.BudgetCents,
		DueDate:     due,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func toProjectDomain(m projectModel) domain.Project {
	p := domain.Project{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Status:      domain.ProjectStatus(m.Status),
		OwnerID:     m.OwnerID,
		BudgetCents: m.BudgetCents,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
	if m.DueDate != nil {
		d := m.DueDate.UTC()
		p.DueDate = &d
	}
	return p
}
