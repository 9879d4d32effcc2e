// Package health aggregates liveness checks for the api role.
package health

import (
	"context"
	"time"
)

// StorePinger is the durable-store connectivity check.
type StorePinger interface {
	Ping() error
}

// RedisPinger is the queue/bus connectivity check.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker runs all registered checks.
type Checker struct {
	store StorePinger
	redis RedisPinger
}

// New creates a checker. Either dependency may be nil when a deployment
// runs without it.
func New(store StorePinger, redis RedisPinger) *Checker {
	return &Checker{store: store, redis: redis}
}

// Report is the health endpoint payload.
type Report struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks"`
	Time    time.Time         `json:"time"`
}

// Check runs every configured probe.
func (c *Checker) Check(ctx context.Context) *Report {
	report := &Report{
		Healthy: true,
		Checks:  make(map[string]string),
		Time:    time.Now().UTC(),
	}

	if c.store != nil {
		if err := c.store.Ping(); err != nil {
			report.Healthy = false
			report.Checks["store"] = err.Error()
		} else {
			report.Checks["store"] = "ok"
		}
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx); err != nil {
			report.Healthy = false
			report.Checks["redis"] = err.Error()
		} else {
			report.Checks["redis"] = "ok"
		}
	}
	return report
}
