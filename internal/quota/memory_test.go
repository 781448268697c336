package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kitbuilder587/genclient/internal/domain"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(t *testing.T, cfg Config) (*Memory, *fakeClock) {
	t.Helper()
	m, err := NewMemory(cfg)
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m.now = clock.Now
	m.short.start = clock.Now()
	m.long.start = clock.Now()
	return m, clock
}

func TestMemory_ReserveShortLimit(t *testing.T) {
	m, _ := newTestTracker(t, Config{
		ShortLimit: 3, ShortWindow: time.Minute,
		LongLimit: 1000, LongWindow: 24 * time.Hour,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Reserve(ctx)
		if err != nil {
			t.Fatalf("Reserve() error = %v", err)
		}
		if !ok {
			t.Errorf("Reserve() %d = false, want true", i+1)
		}
	}

	if ok, _ := m.Reserve(ctx); ok {
		t.Error("Reserve() beyond short limit = true, want false")
	}
}

func TestMemory_ReserveAllOrNothing(t *testing.T) {
	// длинное окно исчерпано - короткое не должно инкрементироваться
	m, _ := newTestTracker(t, Config{
		ShortLimit: 10, ShortWindow: time.Minute,
		LongLimit: 2, LongWindow: 24 * time.Hour,
	})
	ctx := context.Background()

	m.Reserve(ctx)
	m.Reserve(ctx)

	if ok, _ := m.Reserve(ctx); ok {
		t.Fatal("Reserve() with exhausted long window = true, want false")
	}

	usage := m.Snapshot()
	if usage.ShortUsed != 2 {
		t.Errorf("ShortUsed = %d, want 2 (refused reserve must not count)", usage.ShortUsed)
	}
}

func TestMemory_WindowReset(t *testing.T) {
	m, clock := newTestTracker(t, Config{
		ShortLimit: 1, ShortWindow: time.Minute,
		LongLimit: 2, LongWindow: 24 * time.Hour,
	})
	ctx := context.Background()

	m.Reserve(ctx)
	if ok, _ := m.Reserve(ctx); ok {
		t.Fatal("Reserve() = true, want false before reset")
	}

	clock.Advance(time.Minute + time.Second)

	ok, _ := m.Reserve(ctx)
	if !ok {
		t.Error("Reserve() after short window reset = false, want true")
	}

	// а теперь суточное окно
	m.NoteRemoteExhaustion(ctx, ScopeLong, 0)
	clock.Advance(25 * time.Hour)

	if ok, _ := m.Reserve(ctx); !ok {
		t.Error("Reserve() after long window reset = false, want true")
	}
	if used := m.Snapshot().LongUsed; used != 1 {
		t.Errorf("LongUsed after reset = %d, want 1", used)
	}
}

func TestMemory_TimeUntilAvailable(t *testing.T) {
	m, clock := newTestTracker(t, Config{
		ShortLimit: 1, ShortWindow: time.Minute,
		LongLimit: 100, LongWindow: 24 * time.Hour,
	})
	ctx := context.Background()

	if wait, _ := m.TimeUntilAvailable(ctx); wait != 0 {
		t.Errorf("TimeUntilAvailable() = %v, want 0 while fresh", wait)
	}

	m.Reserve(ctx)
	clock.Advance(20 * time.Second)

	wait, _ := m.TimeUntilAvailable(ctx)
	if wait != 40*time.Second {
		t.Errorf("TimeUntilAvailable() = %v, want 40s", wait)
	}
}

func TestMemory_TimeUntilAvailable_BothExhausted(t *testing.T) {
	m, _ := newTestTracker(t, Config{
		ShortLimit: 5, ShortWindow: time.Minute,
		LongLimit: 100, LongWindow: 24 * time.Hour,
	})
	ctx := context.Background()

	m.NoteRemoteExhaustion(ctx, ScopeShort, 30*time.Second)
	m.NoteRemoteExhaustion(ctx, ScopeLong, 2*time.Hour)

	// обе исчерпаны - берем меньшее
	wait, _ := m.TimeUntilAvailable(ctx)
	if wait != 30*time.Second {
		t.Errorf("TimeUntilAvailable() = %v, want 30s", wait)
	}
}

func TestMemory_NoteRemoteExhaustion(t *testing.T) {
	m, _ := newTestTracker(t, Config{
		ShortLimit: 15, ShortWindow: time.Minute,
		LongLimit: 1500, LongWindow: 24 * time.Hour,
	})
	ctx := context.Background()

	// локально свободно, но сервер сказал 429 retry in 90s
	m.NoteRemoteExhaustion(ctx, ScopeShort, 90*time.Second)

	if ok, _ := m.Reserve(ctx); ok {
		t.Error("Reserve() after remote exhaustion = true, want false")
	}

	wait, _ := m.TimeUntilAvailable(ctx)
	if wait != 90*time.Second {
		t.Errorf("TimeUntilAvailable() = %v, want server-supplied 90s", wait)
	}
}

func TestMemory_Concurrent(t *testing.T) {
	m, _ := newTestTracker(t, Config{
		ShortLimit: 100, ShortWindow: time.Minute,
		LongLimit: 100, LongWindow: 24 * time.Hour,
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if ok, _ := m.Reserve(ctx); ok {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if granted != 100 {
		t.Errorf("granted = %d, want exactly 100 under concurrency", granted)
	}
}

func TestNewMemory_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name: "zero short limit",
			cfg: Config{
				ShortLimit: 0, ShortWindow: time.Minute,
				LongLimit: 10, LongWindow: time.Hour,
			},
			wantErr: domain.ErrInvalidLimit,
		},
		{
			name: "negative long limit",
			cfg: Config{
				ShortLimit: 1, ShortWindow: time.Minute,
				LongLimit: -5, LongWindow: time.Hour,
			},
			wantErr: domain.ErrInvalidLimit,
		},
		{
			name: "zero window",
			cfg: Config{
				ShortLimit: 1, ShortWindow: 0,
				LongLimit: 10, LongWindow: time.Hour,
			},
			wantErr: domain.ErrInvalidWindow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMemory(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewMemory() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
