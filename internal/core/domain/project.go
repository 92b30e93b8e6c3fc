package domain

import (
	"strings"
	"time"
)

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
)

const ProjectResourceType = "project"

type Project struct {
	ID          string
	Name        string
	Description string
	Status      ProjectStatus
	OwnerID     string
	BudgetCents int64
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (p Project) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" || len(name) > 200 {
		return ErrInvalidInput
	}
	switch p.Status {
	case ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCompleted:
	default:
		return ErrInvalidInput
	}
	if p.BudgetCents < 0 {
		return ErrInvalidInput
	}
	return nil
}

type ProjectFilter struct {
	OwnerID string
	Status  ProjectStatus
	After   string
	Limit   int
}
