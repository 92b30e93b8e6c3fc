package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
)

// AuditLogRepository appends entries and serves the read queries. When
// alertTopic is non-empty the entry is written together with an outbox row.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry, alertTopic string) (domain.AuditLogEntry, error)
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error)
	Stats(ctx context.Context, now time.Time) (domain.AuditStats, error)
}

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
}
