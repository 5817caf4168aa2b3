package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/irfndi/tradeyodha-signals/internal/models"
)

const cooldownPrefix = "signals:cooldown:"

// reserveScript claims the key when absent, otherwise only extends its TTL.
// Redis drops the key when the window lapses, so absence covers expiry too.
var reserveScript = redis.NewScript(`
local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
if ok then
	return 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 0
`)

// releaseScript deletes the key only while it still holds the caller's value.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// CooldownCache is the Redis implementation of the cooldown store.
type CooldownCache struct {
	redis redis.Cmdable
}

func NewCooldownCache(client redis.Cmdable) *CooldownCache {
	return &CooldownCache{redis: client}
}

func cooldownKey(key models.CooldownKey) string {
	return fmt.Sprintf("%s%s:%s:%s", cooldownPrefix, key.UserID, key.Ticker, key.SignalType)
}

// Reserve reports true when no window was active for key. The window is
// pushed to now+window either way.
func (c *CooldownCache) Reserve(ctx context.Context, key models.CooldownKey, window time.Duration, now time.Time) (bool, error) {
	res, err := reserveScript.Run(ctx, c.redis, []string{cooldownKey(key)},
		now.UnixMilli(), window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to reserve cooldown %s/%s/%s: %w", key.UserID, key.Ticker, key.SignalType, err)
	}
	return res == 1, nil
}

// Release deletes the window for key when it still holds the reservation
// made at firedAt.
func (c *CooldownCache) Release(ctx context.Context, key models.CooldownKey, firedAt time.Time) error {
	if err := releaseScript.Run(ctx, c.redis, []string{cooldownKey(key)}, firedAt.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to release cooldown %s/%s/%s: %w", key.UserID, key.Ticker, key.SignalType, err)
	}
	return nil
}

// DeleteExpired is a no-op; Redis evicts lapsed windows itself.
func (c *CooldownCache) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// CountActive counts the windows currently held in Redis.
func (c *CooldownCache) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	iter := c.redis.Scan(ctx, 0, cooldownPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("error scanning cooldown keys: %w", err)
	}
	return count, nil
}
