package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/atvirokodosprendimai/trustgate/internal/core/ports"
	"github.com/rs/zerolog"
)

const (
	alertMaxAttempts  = 5
	alertBackoffLimit = 5 * time.Minute
)

// AlertDispatcher drains queued audit alerts to a publisher. A failed delivery
// is retried with growing backoff until alertMaxAttempts, then marked dead.
// Rows whose payload cannot be decoded are marked dead at once.
type AlertDispatcher struct {
	periodic
	repo      ports.OutboxRepository
	publisher ports.EventPublisher
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time

	delivered atomic.Int64
	retried   atomic.Int64
	dead      atomic.Int64
}

// AlertDispatchStats counts delivery outcomes since start.
type AlertDispatchStats struct {
	Delivered int64
	Retried   int64
	Dead      int64
}

func NewAlertDispatcher(repo ports.OutboxRepository, publisher ports.EventPublisher, interval time.Duration, batchSize int, logger zerolog.Logger) *AlertDispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	d := &AlertDispatcher{
		repo:      repo,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "alert_dispatcher").Logger(),
		now:       time.Now,
	}
	d.periodic = periodic{interval: interval, tick: d.tick}
	return d
}

func (d *AlertDispatcher) tick(ctx context.Context) {
	if err := d.dispatchBatch(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error().Err(err).Msg("alert dispatch batch")
	}
}

// dispatchBatch returns only storage errors; delivery problems are recorded
// on the row itself.
func (d *AlertDispatcher) dispatchBatch(ctx context.Context) error {
	pending, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("fetch pending alerts: %w", err)
	}

	for _, row := range pending {
		var alert domain.AlertEnvelope
		if err := json.Unmarshal(row.PayloadJSON, &alert); err != nil {
			if err := d.bury(ctx, row, row.Attempts+1, alert, fmt.Sprintf("decode payload: %v", err)); err != nil {
				return err
			}
			continue
		}

		if err := d.publisher.Publish(ctx, row.Topic, alert); err != nil {
			if err := d.retryOrBury(ctx, row, alert, err.Error()); err != nil {
				return err
			}
			continue
		}

		if err := d.repo.MarkDispatched(ctx, row.ID); err != nil {
			return fmt.Errorf("mark alert %d dispatched: %w", row.ID, err)
		}
		d.delivered.Add(1)
		d.logger.Debug().
			Str("event_id", alert.EventID).
			Int64("audit_id", alert.AuditID).
			Str("severity", string(alert.Severity)).
			Msg("alert delivered")
	}
	return nil
}

func (d *AlertDispatcher) retryOrBury(ctx context.Context, row domain.OutboxEvent, alert domain.AlertEnvelope, reason string) error {
	attempts := row.Attempts + 1
	if attempts >= alertMaxAttempts {
		return d.bury(ctx, row, attempts, alert, reason)
	}
	next := d.now().UTC().Add(backoffDuration(attempts))
	if err := d.repo.MarkFailed(ctx, row.ID, attempts, next, reason); err != nil {
		return fmt.Errorf("reschedule alert %d: %w", row.ID, err)
	}
	d.retried.Add(1)
	d.logger.Warn().
		Str("event_id", row.EventID).
		Int("attempt", attempts).
		Time("next_attempt_at", next).
		Str("error", reason).
		Msg("alert delivery failed, will retry")
	return nil
}

// bury marks the row dead. The log line carries what is known about the
// audit entry so an operator can follow up without the outbox table.
func (d *AlertDispatcher) bury(ctx context.Context, row domain.OutboxEvent, attempts int, alert domain.AlertEnvelope, reason string) error {
	if err := d.repo.MarkDead(ctx, row.ID, attempts, reason); err != nil {
		return fmt.Errorf("mark alert %d dead: %w", row.ID, err)
	}
	d.dead.Add(1)
	d.logger.Error().
		Str("event_id", row.EventID).
		Str("topic", row.Topic).
		Int64("audit_id", alert.AuditID).
		Str("user_id", alert.UserID).
		Str("action", alert.Action).
		Str("severity", string(alert.Severity)).
		Int("attempts", attempts).
		Str("error", reason).
		Msg("alert dropped after delivery failures")
	return nil
}

func (d *AlertDispatcher) Stats() AlertDispatchStats {
	return AlertDispatchStats{
		Delivered: d.delivered.Load(),
		Retried:   d.retried.Load(),
		Dead:      d.dead.Load(),
	}
}

// backoffDuration grows quadratically from one second and caps at alertBackoffLimit.
func backoffDuration(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Second
	}
	wait := time.Duration(attempt*attempt) * time.Second
	if wait > alertBackoffLimit {
		return alertBackoffLimit
	}
	return wait
}
