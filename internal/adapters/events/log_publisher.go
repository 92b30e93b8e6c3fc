package events

import (
	"context"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/rs/zerolog"
)

// LogPublisher writes alerts to the structured log. It is the fallback when
// no webhook is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "alerts").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.AlertEnvelope) error {
	level := zerolog.ErrorLevel
	if event.Severity == domain.SeverityWarning || event.Severity == domain.SeverityInfo {
		level = zerolog.WarnLevel
	}
	p.logger.WithLevel(level).
		Str("topic", topic).
		Str("event_id", event.EventID).
		Int64("audit_id", event.AuditID).
		Str("user_id", event.UserID).
		Str("action", event.Action).
		Str("severity", string(event.Severity)).
		Str("resource", event.ResourceType+"/"+event.ResourceID).
		Time("occurred_at", event.OccurredAt).
		Msg("audit alert")
	return nil
}
