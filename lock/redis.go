// Package lock keeps reconciliation runs of the same job from overlapping
// across service instances.
package lock

import (
	"context"
	"fmt"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "payrecon:lock:"

// release deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func NewRedisGuardFromRuntime(art *kernel.AppRuntime) *RedisGuard {
	client := redis.NewClient(&redis.Options{
		Addr: art.RedisAddr,
	})
	return NewRedisGuard(client, art.LockTTL)
}

func Key(job string) string {
	return keyPrefix + job
}

// Acquire takes the lock for job for at most the guard's TTL.
func (g *RedisGuard) Acquire(ctx context.Context, job string) (func(), bool, error) {
	token, err := kernel.UuidV7()
	if err != nil {
		return nil, false, err
	}

	key := Key(job)
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// the run context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, g.client, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("could not release run lock, it will expire")
		}
	}
	return release, true, nil
}

func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}
