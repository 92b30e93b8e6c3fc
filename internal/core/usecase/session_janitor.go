package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionJanitor periodically deletes sessions past their expiry.
type SessionJanitor struct {
	periodic
	sessions *SessionService
	logger   zerolog.Logger
}

func NewSessionJanitor(sessions *SessionService, interval time.Duration, logger zerolog.Logger) *SessionJanitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	j := &SessionJanitor{sessions: sessions, logger: logger}
	j.periodic = periodic{interval: interval, tick: j.sweep}
	return j
}

func (j *SessionJanitor) sweep(ctx context.Context) {
	n, err := j.sessions.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error().Err(err).Msg("purge expired sessions")
		}
		return
	}
	if n > 0 {
		j.logger.Info().Int64("removed", n).Msg("expired sessions purged")
	}
}
