package quota

import (
	"context"
	"time"
)

// Scope names one of the two quota windows enforced by the remote API.
type Scope string

const (
	ScopeShort Scope = "minute"
	ScopeLong  Scope = "day"
)

// Tracker keeps local request counts against the remote per-minute and
// per-day quotas. It is an optimization to avoid wasted round-trips, not a
// source of truth: the remote API's own answer always wins and is fed back
// through NoteRemoteExhaustion.
//
// The context matters only for shared backends (redis, postgres); the
// in-memory tracker ignores it and never returns an error.
type Tracker interface {
	// Reserve counts one request against both windows. All-or-nothing: a
	// request that would pass the minute window but exhaust the day window
	// is not counted against either.
	Reserve(ctx context.Context) (bool, error)

	// TimeUntilAvailable returns how long until a refused request may pass:
	// the smaller remaining time among exhausted windows, zero if neither
	// window is exhausted.
	TimeUntilAvailable(ctx context.Context) (time.Duration, error)

	// NoteRemoteExhaustion records that the remote API reported the given
	// scope as exhausted. When retryAfter is positive, the window is
	// reshaped so TimeUntilAvailable reflects the server-supplied value.
	NoteRemoteExhaustion(ctx context.Context, scope Scope, retryAfter time.Duration) error

	// Reset zeroes both windows. Quotas are provisioned per credential, so
	// rotating to a fresh credential makes the accumulated counts moot.
	Reset(ctx context.Context) error
}

// Config holds the window limits and durations.
type Config struct {
	ShortLimit  int
	ShortWindow time.Duration
	LongLimit   int
	LongWindow  time.Duration
}

// Usage is a point-in-time snapshot for logs and diagnostics.
type Usage struct {
	ShortUsed  int
	ShortLimit int
	ShortReset time.Duration
	LongUsed   int
	LongLimit  int
	LongReset  time.Duration
}
