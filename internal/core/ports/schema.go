package ports

import (
	"context"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
)

type DetailSchemaRepository interface {
	Upsert(ctx context.Context, schema domain.DetailSchema) (domain.DetailSchema, error)
	Get(ctx context.Context, action string) (domain.DetailSchema, error)
	Delete(ctx context.Context, action string) (bool, error)
}
