package ports

import (
	"context"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event domain.AlertEnvelope) error
}
