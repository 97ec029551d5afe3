// Package transport POSTs rendered payloads to webhook endpoints with
// bounded retry and per-endpoint pacing.
package transport

import (
	"fmt"
	"time"
)

// Config controls timeouts and retry. Zero fields take the defaults.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	// Jitter is the +/- fraction applied to each backoff wait. Negative
	// disables it.
	Jitter        float64
	RetryAfterCap time.Duration
	// RatePerSec paces requests per endpoint. Negative disables pacing.
	RatePerSec float64
	// BreakerTrip is the number of consecutive failed sends after which an
	// endpoint is skipped for BreakerCooldown (doubling per further
	// failure). Negative disables the breaker.
	BreakerTrip     int
	BreakerCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		MaxAttempts:    3,
		BackoffBase:    200 * time.Millisecond,
		Jitter:         0.2,
		RetryAfterCap:  30 * time.Second,
		RatePerSec:     5,

		BreakerTrip:     5,
		BreakerCooldown: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	switch {
	case c.Jitter == 0 || c.Jitter >= 1:
		c.Jitter = d.Jitter
	case c.Jitter < 0:
		c.Jitter = 0
	}
	if c.RetryAfterCap <= 0 {
		c.RetryAfterCap = d.RetryAfterCap
	}
	if c.RatePerSec == 0 {
		c.RatePerSec = d.RatePerSec
	}
	if c.BreakerTrip == 0 {
		c.BreakerTrip = d.BreakerTrip
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = d.BreakerCooldown
	}
	return c
}

// Result describes a successful delivery.
type Result struct {
	Status   int
	Attempts int
	Elapsed  time.Duration
}

// Error is a failed delivery. Status is zero for network errors.
type Error struct {
	Status     int
	BodyPrefix string
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.BodyPrefix != "":
		return fmt.Sprintf("webhook returned %d after %d attempt(s): %s", e.Status, e.Attempts, e.BodyPrefix)
	case e.Status != 0:
		return fmt.Sprintf("webhook returned %d after %d attempt(s)", e.Status, e.Attempts)
	default:
		return fmt.Sprintf("webhook request failed after %d attempt(s): %v", e.Attempts, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }
