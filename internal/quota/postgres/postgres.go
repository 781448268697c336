package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitbuilder587/genclient/internal/domain"
	"github.com/kitbuilder587/genclient/internal/quota"
)

const schema = `
    CREATE TABLE IF NOT EXISTS quota_windows (
        client_id    TEXT NOT NULL,
        kind         TEXT NOT NULL,
        used         BIGINT NOT NULL DEFAULT 0,
        window_start TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (client_id, kind)
    )
`

// Tracker is a quota.Tracker whose windows survive process restarts.
// Counts from a previous session keep gating new requests until their
// window elapses, which is exactly what a per-day quota needs.
type Tracker struct {
	pool     *pgxpool.Pool
	cfg      quota.Config
	clientID string
	ownsPool bool
}

var _ quota.Tracker = (*Tracker)(nil)

// New connects, ensures the schema and seeds the two window rows.
func New(ctx context.Context, connString string, cfg quota.Config, clientID string) (*Tracker, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	t, err := NewWithPool(ctx, pool, cfg, clientID)
	if err != nil {
		pool.Close()
		return nil, err
	}
	t.ownsPool = true
	return t, nil
}

// NewWithPool reuses an existing pool (tests, shared apps).
func NewWithPool(ctx context.Context, pool *pgxpool.Pool, cfg quota.Config, clientID string) (*Tracker, error) {
	if cfg.ShortLimit <= 0 || cfg.LongLimit <= 0 {
		return nil, domain.ErrInvalidLimit
	}
	if cfg.ShortWindow <= 0 || cfg.LongWindow <= 0 {
		return nil, domain.ErrInvalidWindow
	}
	if clientID == "" {
		clientID = "default"
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure quota schema: %w", err)
	}

	seed := `
        INSERT INTO quota_windows (client_id, kind, used, window_start)
        VALUES ($1, $2, 0, NOW())
        ON CONFLICT (client_id, kind) DO NOTHING
    `
	for _, kind := range []quota.Scope{quota.ScopeShort, quota.ScopeLong} {
		if _, err := pool.Exec(ctx, seed, clientID, string(kind)); err != nil {
			return nil, fmt.Errorf("seed quota window %s: %w", kind, err)
		}
	}

	return &Tracker{pool: pool, cfg: cfg, clientID: clientID}, nil
}

func (t *Tracker) Close() {
	if t.ownsPool {
		t.pool.Close()
	}
}

type windowRow struct {
	kind  quota.Scope
	used  int64
	start time.Time
}

func (t *Tracker) limits(kind quota.Scope) (int, time.Duration) {
	if kind == quota.ScopeLong {
		return t.cfg.LongLimit, t.cfg.LongWindow
	}
	return t.cfg.ShortLimit, t.cfg.ShortWindow
}

// Reserve locks both rows, rolls over stale windows, and increments both
// counters or neither.
func (t *Tracker) Reserve(ctx context.Context) (bool, error) {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := t.lockWindows(ctx, tx)
	if err != nil {
		return false, err
	}

	now := time.Now()
	exhausted := false
	for i := range rows {
		limit, dur := t.limits(rows[i].kind)
		if now.Sub(rows[i].start) >= dur {
			rows[i].used = 0
			rows[i].start = now
		}
		if rows[i].used >= int64(limit) {
			exhausted = true
		}
	}

	for i := range rows {
		if !exhausted {
			rows[i].used++
		}
		if err := t.saveWindow(ctx, tx, rows[i]); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit reserve tx: %w", err)
	}
	return !exhausted, nil
}

func (t *Tracker) TimeUntilAvailable(ctx context.Context) (time.Duration, error) {
	query := `SELECT kind, used, window_start FROM quota_windows WHERE client_id = $1`
	rs, err := t.pool.Query(ctx, query, t.clientID)
	if err != nil {
		return 0, fmt.Errorf("read quota windows: %w", err)
	}
	defer rs.Close()

	now := time.Now()
	var wait time.Duration
	for rs.Next() {
		var row windowRow
		if err := rs.Scan(&row.kind, &row.used, &row.start); err != nil {
			return 0, fmt.Errorf("scan quota window: %w", err)
		}

		limit, dur := t.limits(row.kind)
		if now.Sub(row.start) >= dur || row.used < int64(limit) {
			continue
		}
		if w := row.start.Add(dur).Sub(now); wait == 0 || w < wait {
			wait = w
		}
	}
	return wait, rs.Err()
}

func (t *Tracker) NoteRemoteExhaustion(ctx context.Context, scope quota.Scope, retryAfter time.Duration) error {
	limit, dur := t.limits(scope)

	if retryAfter > 0 {
		// window_start подбирается так, чтобы остаток окна равнялся retry-after
		start := time.Now().Add(retryAfter - dur)
		query := `
            UPDATE quota_windows SET used = $3, window_start = $4
            WHERE client_id = $1 AND kind = $2
        `
		if _, err := t.pool.Exec(ctx, query, t.clientID, string(scope), limit, start); err != nil {
			return fmt.Errorf("pin quota exhaustion: %w", err)
		}
		return nil
	}

	query := `UPDATE quota_windows SET used = $3 WHERE client_id = $1 AND kind = $2`
	if _, err := t.pool.Exec(ctx, query, t.clientID, string(scope), limit); err != nil {
		return fmt.Errorf("pin quota exhaustion: %w", err)
	}
	return nil
}

func (t *Tracker) lockWindows(ctx context.Context, tx pgx.Tx) ([]windowRow, error) {
	query := `
        SELECT kind, used, window_start FROM quota_windows
        WHERE client_id = $1
        ORDER BY kind
        FOR UPDATE
    `
	rs, err := tx.Query(ctx, query, t.clientID)
	if err != nil {
		return nil, fmt.Errorf("lock quota windows: %w", err)
	}
	defer rs.Close()

	var rows []windowRow
	for rs.Next() {
		var row windowRow
		if err := rs.Scan(&row.kind, &row.used, &row.start); err != nil {
			return nil, fmt.Errorf("scan quota window: %w", err)
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	if len(rows) != 2 {
		return nil, fmt.Errorf("quota windows for %q not seeded", t.clientID)
	}
	return rows, nil
}

func (t *Tracker) saveWindow(ctx context.Context, tx pgx.Tx, row windowRow) error {
	query := `
        UPDATE quota_windows SET used = $3, window_start = $4
        WHERE client_id = $1 AND kind = $2
    `
	if _, err := tx.Exec(ctx, query, t.clientID, string(row.kind), row.used, row.start); err != nil {
		return fmt.Errorf("save quota window %s: %w", row.kind, err)
	}
	return nil
}

func (t *Tracker) Reset(ctx context.Context) error {
	query := `UPDATE quota_windows SET used = 0, window_start = NOW() WHERE client_id = $1`
	if _, err := t.pool.Exec(ctx, query, t.clientID); err != nil {
		return fmt.Errorf("reset quota windows: %w", err)
	}
	return nil
}
