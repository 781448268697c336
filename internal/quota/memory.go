package quota

import (
	"context"
	"sync"
	"time"

	"github.com/kitbuilder587/genclient/internal/domain"
)

// window - фиксированное окно: used обнуляется, когда время уходит за
// start+duration. Превышение used >= limit не ошибка, а сигнал отказать
// локально до похода в сеть.
type window struct {
	limit    int
	used     int
	duration time.Duration
	start    time.Time
}

func (w *window) maybeReset(now time.Time) {
	if now.Sub(w.start) >= w.duration {
		w.used = 0
		w.start = now
	}
}

func (w *window) exhausted() bool {
	return w.used >= w.limit
}

func (w *window) remaining(now time.Time) time.Duration {
	d := w.start.Add(w.duration).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Memory is the in-process Tracker. Safe for concurrent callers: both
// windows are checked and mutated under one lock, so two concurrent
// reservations can never both slip past the limit.
type Memory struct {
	mu    sync.Mutex
	short window
	long  window
	now   func() time.Time
}

var _ Tracker = (*Memory)(nil)

func NewMemory(cfg Config) (*Memory, error) {
	if cfg.ShortLimit <= 0 || cfg.LongLimit <= 0 {
		return nil, domain.ErrInvalidLimit
	}
	if cfg.ShortWindow <= 0 || cfg.LongWindow <= 0 {
		return nil, domain.ErrInvalidWindow
	}

	m := &Memory{now: time.Now}
	start := m.now()
	m.short = window{limit: cfg.ShortLimit, duration: cfg.ShortWindow, start: start}
	m.long = window{limit: cfg.LongLimit, duration: cfg.LongWindow, start: start}
	return m, nil
}

func (m *Memory) Reserve(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.short.maybeReset(now)
	m.long.maybeReset(now)

	if m.short.exhausted() || m.long.exhausted() {
		return false, nil
	}

	m.short.used++
	m.long.used++
	return true, nil
}

func (m *Memory) TimeUntilAvailable(_ context.Context) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.short.maybeReset(now)
	m.long.maybeReset(now)

	var wait time.Duration
	if m.short.exhausted() {
		wait = m.short.remaining(now)
	}
	if m.long.exhausted() {
		if lw := m.long.remaining(now); wait == 0 || lw < wait {
			wait = lw
		}
	}
	return wait, nil
}

// NoteRemoteExhaustion pins used to the limit for the given scope. Server
// accounting beats local counting: clock skew, other processes and prior
// sessions all make the local estimate drift.
func (m *Memory) NoteRemoteExhaustion(_ context.Context, scope Scope, retryAfter time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := &m.short
	if scope == ScopeLong {
		w = &m.long
	}

	w.used = w.limit
	if retryAfter > 0 {
		// start+duration-now должно равняться retryAfter
		w.start = m.now().Add(retryAfter - w.duration)
	}
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.short.used = 0
	m.short.start = now
	m.long.used = 0
	m.long.start = now
	return nil
}

// Snapshot returns current usage for logs and the quotacheck command.
func (m *Memory) Snapshot() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.short.maybeReset(now)
	m.long.maybeReset(now)

	return Usage{
		ShortUsed:  m.short.used,
		ShortLimit: m.short.limit,
		ShortReset: m.short.remaining(now),
		LongUsed:   m.long.used,
		LongLimit:  m.long.limit,
		LongReset:  m.long.remaining(now),
	}
}
