// Package browser owns the headless-browser resource controller: a single
// Instance wraps one live Chrome process, and Pool multiplexes acquire/
// release calls across a bounded, autoscaling collection of instances plus
// unbounded temporary overflow instances when the pool is saturated.
package browser

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Status is the lifecycle state of an Instance.
type Status int32

const (
	// StatusIdle means the instance is parked in the pool's idle ring.
	StatusIdle Status = iota
	// StatusActive means the instance is checked out by a caller.
	StatusActive
	// StatusRestarting means the instance is being recycled in place.
	StatusRestarting
	// StatusDead means the underlying browser process is gone.
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusActive:
		return "active"
	case StatusRestarting:
		return "restarting"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Instance represents a single Chrome browser process.
type Instance struct {
	ID              int // immutable; -1 for temporary overflow instances
	Temporary       bool
	ctx             context.Context
	cancel          context.CancelFunc
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	createdAt       time.Time
	logger          *zap.Logger
	browserVersion  string

	status           int32
	requestsDone     int32
	lastUsedNano     int64
	currentRequestID string
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	CurrentSize     int
	MaxSize         int
	MinSize         int
	IdleCount       int
	ActiveCount     int
	TotalAcquired   int64
	TemporaryActive int32
	Uptime          time.Duration
}
