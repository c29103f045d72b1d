package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestFireGuard_FirstClaimWins(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewFireGuard(client, zap.NewNop())
	ctx := context.Background()
	minute := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

	acquired, err := guard.Acquire(ctx, "alert-1", minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Fatal("first claim should succeed")
	}

	acquired, err = guard.Acquire(ctx, "alert-1", minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Fatal("second claim for the same alert+minute must fail")
	}
}

func TestFireGuard_SubMinuteTimesShareTheClaim(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewFireGuard(client, zap.NewNop())
	ctx := context.Background()
	minute := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

	if _, err := guard.Acquire(ctx, "alert-1", minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acquired, err := guard.Acquire(ctx, "alert-1", minute.Add(30*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Fatal("times within the same minute must map to the same claim")
	}
}

func TestFireGuard_IsolatedByAlertAndMinute(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewFireGuard(client, zap.NewNop())
	ctx := context.Background()
	minute := time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

	if _, err := guard.Acquire(ctx, "alert-1", minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if acquired, _ := guard.Acquire(ctx, "alert-2", minute); !acquired {
		t.Error("a different alert must get its own claim")
	}
	if acquired, _ := guard.Acquire(ctx, "alert-1", minute.Add(time.Minute)); !acquired {
		t.Error("the next minute must get its own claim")
	}
}
