package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hostpanel/backend/internal/config"
	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

// acquireScript compares the stored send time with now and claims the key
// when the cooldown has passed. KEYS: entry, index. ARGV: now ms, cooldown
// ms, dedup key.
var acquireScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
if last and (tonumber(ARGV[1]) - tonumber(last)) < tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// RedisLedger shares the cooldown ledger between restarts. Every key expires
// on its own after one cooldown; a sorted set indexes keys by send time for
// Prune and Len.
type RedisLedger struct {
	rc     *redis.Client
	prefix string
}

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewRedisLedger(rc *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "hostpanel:alerts:"
	}
	return &RedisLedger{rc: rc, prefix: prefix}
}

var _ ports.CooldownLedger = (*RedisLedger)(nil)

func (l *RedisLedger) entryKey(key string) string {
	return l.prefix + "key:" + key
}

func (l *RedisLedger) indexKey() string {
	return l.prefix + "index"
}

func (l *RedisLedger) TryAcquire(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, error) {
	if cooldown < time.Millisecond {
		cooldown = time.Millisecond
	}
	res, err := acquireScript.Run(ctx, l.rc,
		[]string{l.entryKey(key), l.indexKey()},
		now.UnixMilli(), cooldown.Milliseconds(), key,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis ledger acquire %q: %w", key, err)
	}
	return res == 1, nil
}

func (l *RedisLedger) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	upper := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	stale, err := l.rc.ZRangeByScore(ctx, l.indexKey(), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ledger prune: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	keys := make([]string, len(stale))
	members := make([]interface{}, len(stale))
	for i, k := range stale {
		keys[i] = l.entryKey(k)
		members[i] = k
	}
	_, err = l.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.ZRem(ctx, l.indexKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis ledger prune: %w", err)
	}
	return len(stale), nil
}

func (l *RedisLedger) Len(ctx context.Context) (int, error) {
	n, err := l.rc.ZCard(ctx, l.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ledger len: %w", err)
	}
	return int(n), nil
}
