package domain

import (
	"errors"
	"time"
)

var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// RateLimitPolicy is a named fixed-window limit: at most Limit calls per Window.
type RateLimitPolicy struct {
	Name   string
	Limit  int
	Window time.Duration
}

func (p RateLimitPolicy) Validate() error {
	if p.Name == "" || p.Limit < 0 || p.Window <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is zero for allowed decisions and never negative.
func (d RateLimitDecision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
