package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"tgchatbot/internal/redis"
)

func newTestLimiter(t *testing.T, limit int) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClientAddr(mr.Addr())
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, limit)
}

func TestAllowUpToLimit(t *testing.T) {
	l := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, 42)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("message %d should be within the limit", i+1)
		}
	}

	allowed, err := l.Allow(ctx, 42)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if allowed {
		t.Fatalf("fourth message should be blocked")
	}
}

func TestOwnersCountedSeparately(t *testing.T) {
	l := newTestLimiter(t, 1)
	ctx := context.Background()

	if allowed, _ := l.Allow(ctx, 1); !allowed {
		t.Fatalf("first owner should be allowed")
	}
	if allowed, _ := l.Allow(ctx, 2); !allowed {
		t.Fatalf("second owner must not share the first owner's budget")
	}
	if allowed, _ := l.Allow(ctx, 1); allowed {
		t.Fatalf("first owner exhausted the budget")
	}
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *Limiter
	for i := 0; i < 100; i++ {
		allowed, err := l.Allow(context.Background(), 7)
		if err != nil || !allowed {
			t.Fatalf("nil limiter must allow: allowed=%v err=%v", allowed, err)
		}
	}
	if New(nil, 5) != nil {
		t.Fatalf("New without redis should return nil")
	}
	if newNoLimit := New(redis.NewClientAddr("127.0.0.1:0"), 0); newNoLimit != nil {
		t.Fatalf("New without a positive limit should return nil")
	}
}

func TestAllowErrorWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClientAddr(mr.Addr())
	t.Cleanup(func() { rdb.Close() })
	l := New(rdb, 5)
	mr.Close()

	if _, err := l.Allow(context.Background(), 1); err == nil {
		t.Fatalf("expected error when redis is unreachable")
	}
}
