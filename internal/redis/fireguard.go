package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// fireGuardTTL keeps a claimed alert+minute long enough to outlive any
// overlapping evaluation of that minute, and no longer.
const fireGuardTTL = 2 * time.Minute

// FireGuard claims an alert+minute pair with SET NX so that only one engine
// instance dispatches a given alert in a given minute. The trigger's
// last_fired stamp already covers the single-instance case; the guard closes
// the window where two instances evaluate the same minute before either has
// persisted the stamp.
type FireGuard struct {
	client *Client
	logger *zap.Logger
}

func NewFireGuard(client *Client, logger *zap.Logger) *FireGuard {
	return &FireGuard{
		client: client,
		logger: logger,
	}
}

func (g *FireGuard) key(alertID string, minute time.Time) string {
	return fmt.Sprintf("fireguard:%s:%d", alertID, minute.UTC().Truncate(time.Minute).Unix())
}

// Acquire atomically claims the alert+minute. Returns false when another
// instance already holds the claim.
func (g *FireGuard) Acquire(ctx context.Context, alertID string, minute time.Time) (bool, error) {
	acquired, err := g.client.rdb.SetNX(ctx, g.key(alertID, minute), 1, fireGuardTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !acquired {
		g.logger.Debug("fire guard already claimed",
			zap.String("alert_id", alertID),
			zap.Time("minute", minute),
		)
	}
	return acquired, nil
}
