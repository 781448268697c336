package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kitbuilder587/genclient/internal/domain"
	"github.com/kitbuilder587/genclient/internal/quota"
)

// reserveScript consumes one request from both windows atomically, or
// neither. Returns {allowed, wait_ms}. Counter keys expire with their
// window, so a reset is just the key disappearing.
const reserveScript = `
local short = tonumber(redis.call('GET', KEYS[1]) or '0')
local long = tonumber(redis.call('GET', KEYS[2]) or '0')
local short_limit = tonumber(ARGV[1])
local long_limit = tonumber(ARGV[2])

if short >= short_limit or long >= long_limit then
    local wait = -1
    if short >= short_limit then
        local ttl = redis.call('PTTL', KEYS[1])
        if ttl > 0 then wait = ttl end
    end
    if long >= long_limit then
        local ttl = redis.call('PTTL', KEYS[2])
        if ttl > 0 and (wait < 0 or ttl < wait) then wait = ttl end
    end
    if wait < 0 then wait = 0 end
    return {0, wait}
end

short = redis.call('INCR', KEYS[1])
if short == 1 then redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[3])) end
long = redis.call('INCR', KEYS[2])
if long == 1 then redis.call('PEXPIRE', KEYS[2], tonumber(ARGV[4])) end
return {1, 0}
`

// Tracker is a quota.Tracker backed by redis, for several processes sharing
// one API key. Counters live under "<prefix>:minute" and "<prefix>:day".
type Tracker struct {
	rdb     *goredis.Client
	cfg     quota.Config
	prefix  string
	reserve *goredis.Script
}

var _ quota.Tracker = (*Tracker)(nil)

func New(rdb *goredis.Client, cfg quota.Config, prefix string) (*Tracker, error) {
	if cfg.ShortLimit <= 0 || cfg.LongLimit <= 0 {
		return nil, domain.ErrInvalidLimit
	}
	if cfg.ShortWindow <= 0 || cfg.LongWindow <= 0 {
		return nil, domain.ErrInvalidWindow
	}
	if prefix == "" {
		prefix = "genclient:quota"
	}

	return &Tracker{
		rdb:     rdb,
		cfg:     cfg,
		prefix:  prefix,
		reserve: goredis.NewScript(reserveScript),
	}, nil
}

func (t *Tracker) shortKey() string { return t.prefix + ":" + string(quota.ScopeShort) }
func (t *Tracker) longKey() string  { return t.prefix + ":" + string(quota.ScopeLong) }

func (t *Tracker) Reserve(ctx context.Context) (bool, error) {
	res, err := t.reserve.Run(ctx, t.rdb,
		[]string{t.shortKey(), t.longKey()},
		t.cfg.ShortLimit, t.cfg.LongLimit,
		t.cfg.ShortWindow.Milliseconds(), t.cfg.LongWindow.Milliseconds(),
	).Result()
	if err != nil {
		return false, fmt.Errorf("quota reserve script: %w", err)
	}
	return parseReserveReply(res)
}

// parseReserveReply decodes the {allowed, wait_ms} pair the Lua script
// returns. Anything else is a malformed reply, not a refusal.
func parseReserveReply(res interface{}) (bool, error) {
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return false, fmt.Errorf("quota reserve script: unexpected reply %v", res)
	}
	allowed, ok := arr[0].(int64)
	if !ok {
		return false, fmt.Errorf("quota reserve script: unexpected reply %v", res)
	}
	return allowed == 1, nil
}

func (t *Tracker) TimeUntilAvailable(ctx context.Context) (time.Duration, error) {
	pipe := t.rdb.Pipeline()
	shortUsed := pipe.Get(ctx, t.shortKey())
	shortTTL := pipe.PTTL(ctx, t.shortKey())
	longUsed := pipe.Get(ctx, t.longKey())
	longTTL := pipe.PTTL(ctx, t.longKey())
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return 0, fmt.Errorf("quota usage read: %w", err)
	}

	var wait time.Duration
	if used, _ := shortUsed.Int(); used >= t.cfg.ShortLimit {
		if ttl := shortTTL.Val(); ttl > 0 {
			wait = ttl
		}
	}
	if used, _ := longUsed.Int(); used >= t.cfg.LongLimit {
		if ttl := longTTL.Val(); ttl > 0 && (wait == 0 || ttl < wait) {
			wait = ttl
		}
	}
	return wait, nil
}

func (t *Tracker) NoteRemoteExhaustion(ctx context.Context, scope quota.Scope, retryAfter time.Duration) error {
	key, limit, windowDur := t.shortKey(), t.cfg.ShortLimit, t.cfg.ShortWindow
	if scope == quota.ScopeLong {
		key, limit, windowDur = t.longKey(), t.cfg.LongLimit, t.cfg.LongWindow
	}

	if retryAfter > 0 {
		if err := t.rdb.Set(ctx, key, limit, retryAfter).Err(); err != nil {
			return fmt.Errorf("quota exhaustion pin: %w", err)
		}
		return nil
	}

	// без retry-after: пиним счетчик, TTL окна сохраняем
	if err := t.rdb.SetArgs(ctx, key, limit, goredis.SetArgs{KeepTTL: true}).Err(); err != nil {
		return fmt.Errorf("quota exhaustion pin: %w", err)
	}
	if ttl, err := t.rdb.PTTL(ctx, key).Result(); err == nil && ttl < 0 {
		// ключа не было, TTL не унаследован
		if err := t.rdb.PExpire(ctx, key, windowDur).Err(); err != nil {
			return fmt.Errorf("quota exhaustion expire: %w", err)
		}
	}
	return nil
}

func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.rdb.Del(ctx, t.shortKey(), t.longKey()).Err(); err != nil {
		return fmt.Errorf("quota reset: %w", err)
	}
	return nil
}
