// Package ratelimit provides a per-owner fixed-window message limiter for
// the transport layer. The conversation core performs no throttling of its
// own.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"tgchatbot/internal/redis"
)

const window = time.Minute

// Limiter counts messages per owner in redis. A nil *Limiter allows
// everything, so transports can carry one unconditionally.
type Limiter struct {
	rdb   *redis.Client
	limit int
}

// New builds a limiter allowing limit messages per owner per minute.
func New(rdb *redis.Client, limit int) *Limiter {
	if rdb == nil || limit <= 0 {
		return nil
	}
	return &Limiter{rdb: rdb, limit: limit}
}

// Allow reports whether the owner may send another message in the current
// window. Errors are returned so the caller can decide to fail open.
func (l *Limiter) Allow(ctx context.Context, ownerID int64) (bool, error) {
	if l == nil {
		return true, nil
	}
	key := fmt.Sprintf("ratelimit:%d:%d", ownerID, time.Now().Unix()/int64(window.Seconds()))
	n, err := l.rdb.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, key, window); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return n <= int64(l.limit), nil
}
