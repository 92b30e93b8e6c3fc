package ports

import (
	"context"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, id string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type ProjectRepository interface {
	Create(ctx context.Context, project domain.Project) (domain.Project, error)
	Get(ctx context.Context, id string) (domain.Project, error)
	List(ctx context.Context, filter domain.ProjectFilter) ([]domain.Project, error)
	Update(ctx context.Context, project domain.Project) (domain.Project, error)
	Delete(ctx context.Context, id string) (bool, error)
}
