// Package engine implements the periodic alert-evaluation cycle: scan all
// alerts, decide per trigger whether each fires now, dispatch push
// notifications and persist trigger state.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lembra-app/lembra/internal/db"
	"github.com/lembra-app/lembra/internal/metrics"
	"github.com/lembra-app/lembra/internal/push"
)

// Store is the persistence surface the engine consumes.
type Store interface {
	ListAlertCandidates(ctx context.Context) ([]*db.AlertCandidate, error)
	UpdateTriggerLastAlert(ctx context.Context, alertID uuid.UUID, lastAlert time.Time) error
	MarkTriggerFired(ctx context.Context, alertID uuid.UUID, firedAt time.Time) error
}

// FireGuard deduplicates fires across engine instances. Acquire returns
// false when another instance already claimed this alert+minute.
type FireGuard interface {
	Acquire(ctx context.Context, alertID string, minute time.Time) (bool, error)
}

// Config holds cycle timing parameters.
type Config struct {
	ScanInterval    time.Duration // cadence of the scan timer
	DispatchTimeout time.Duration // deadline for one outbound send
}

// Engine drives the scan → evaluate → dispatch → persist cycle.
type Engine struct {
	store  Store
	sender push.Sender
	guard  FireGuard // nil when redis is not configured
	config Config
	logger *zap.Logger

	// Overlap policy: a tick arriving while a cycle is still running is
	// skipped, never run concurrently. INTERVAL's read-modify-write of
	// last_alert is not safe under overlapping cycles.
	running atomic.Bool
}

// CycleStats aggregates the counters of one cycle.
type CycleStats struct {
	Processed int
	Triggered int
	Skipped   int
	Errors    int
	Duration  time.Duration
}

func New(store Store, sender push.Sender, guard FireGuard, cfg Config, logger *zap.Logger) *Engine {
	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = time.Minute
	}
	if cfg.DispatchTimeout == 0 {
		cfg.DispatchTimeout = 10 * time.Second
	}

	return &Engine{
		store:  store,
		sender: sender,
		guard:  guard,
		config: cfg,
		logger: logger,
	}
}

// Start runs the scan loop until ctx is canceled.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(e.config.ScanInterval)
	defer ticker.Stop()

	e.logger.Info("alert engine started",
		zap.Duration("scan_interval", e.config.ScanInterval),
		zap.String("provider", e.sender.Name()),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("alert engine stopping")
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle performs one full evaluation pass. If a cycle is already in
// flight the call is dropped and zero stats are returned.
func (e *Engine) RunCycle(ctx context.Context) CycleStats {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Warn("previous cycle still running, skipping tick")
		metrics.RecordCycleSkipped()
		return CycleStats{}
	}
	defer e.running.Store(false)

	start := time.Now()
	now := start.UTC().Truncate(time.Minute)

	var stats CycleStats

	candidates, err := e.store.ListAlertCandidates(ctx)
	if err != nil {
		e.logger.Error("failed to load alert candidates", zap.Error(err))
		stats.Errors++
		return stats
	}

	e.logger.Debug("cycle started",
		zap.Time("now", now),
		zap.Int("alerts", len(candidates)),
	)

	for _, candidate := range candidates {
		e.processAlert(ctx, candidate, now, &stats)
	}

	stats.Duration = time.Since(start)
	metrics.RecordCycle(stats.Duration)

	e.logger.Info("cycle complete",
		zap.Int("processed", stats.Processed),
		zap.Int("triggered", stats.Triggered),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
		zap.Int64("duration_ms", stats.Duration.Milliseconds()),
	)

	return stats
}

// processAlert evaluates and, when due, dispatches one alert. Any failure is
// converted into a counted, logged outcome; nothing here aborts the cycle.
func (e *Engine) processAlert(ctx context.Context, candidate *db.AlertCandidate, now time.Time, stats *CycleStats) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while processing alert",
				zap.String("alert_id", candidate.Alert.ID.String()),
				zap.Any("panic", r),
			)
			stats.Errors++
			metrics.RecordAlertOutcome(metrics.OutcomeError)
		}
	}()

	stats.Processed++
	alert := candidate.Alert
	user := candidate.User

	if candidate.Trigger == nil {
		e.logger.Warn("alert has no trigger, skipping",
			zap.String("alert_id", alert.ID.String()),
			zap.String("title", alert.Title),
		)
		stats.Skipped++
		metrics.RecordAlertOutcome(metrics.OutcomeSkipped)
		return
	}
	trigger := candidate.Trigger

	if user.PushToken == nil || *user.PushToken == "" {
		e.logger.Warn("user has no push token, skipping",
			zap.String("alert_id", alert.ID.String()),
			zap.String("username", user.Username),
		)
		stats.Skipped++
		metrics.RecordAlertOutcome(metrics.OutcomeSkipped)
		return
	}

	decision := Evaluate(trigger, now, alert.CreatedAt, user.Timezone)

	e.logger.Debug("alert evaluated",
		zap.String("alert_id", alert.ID.String()),
		zap.String("title", alert.Title),
		zap.String("alert_type", string(trigger.AlertType)),
		zap.String("username", user.Username),
		zap.Bool("fire", decision.Fire),
		zap.String("reason", decision.Reason),
	)

	if decision.Err != nil {
		e.logger.Error("malformed trigger, skipping alert",
			zap.String("alert_id", alert.ID.String()),
			zap.String("alert_type", string(trigger.AlertType)),
			zap.Error(decision.Err),
		)
		stats.Errors++
		metrics.RecordAlertOutcome(metrics.OutcomeError)
		return
	}

	if !decision.Fire {
		metrics.RecordAlertOutcome(metrics.OutcomeIdle)
		return
	}

	if e.guard != nil {
		acquired, err := e.guard.Acquire(ctx, alert.ID.String(), decision.FiredAt)
		if err != nil {
			// Guard unavailability must not suppress reminders.
			e.logger.Warn("fire guard unavailable, dispatching anyway",
				zap.String("alert_id", alert.ID.String()),
				zap.Error(err),
			)
		} else if !acquired {
			e.logger.Info("alert already fired this minute by another instance",
				zap.String("alert_id", alert.ID.String()),
			)
			stats.Skipped++
			metrics.RecordAlertOutcome(metrics.OutcomeSkipped)
			return
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.DispatchTimeout)
	err := e.sender.Send(sendCtx, push.BuildPayload(alert, user))
	cancel()
	metrics.RecordDispatch(e.sender.Name(), err)
	if err != nil {
		// Not retried within the cycle. INTERVAL state was not advanced,
		// so the next cycle retries implicitly.
		e.logger.Error("dispatch failed",
			zap.String("alert_id", alert.ID.String()),
			zap.String("username", user.Username),
			zap.Error(err),
		)
		stats.Errors++
		metrics.RecordAlertOutcome(metrics.OutcomeError)
		return
	}

	stats.Triggered++
	metrics.RecordAlertOutcome(metrics.OutcomeFired)

	e.logger.Info("alert fired",
		zap.String("alert_id", alert.ID.String()),
		zap.String("title", alert.Title),
		zap.String("alert_type", string(trigger.AlertType)),
		zap.String("username", user.Username),
	)

	// The notification is already out: a failed write-back leaves a
	// partial-failure state (possible duplicate next minute) that is
	// logged and counted, not rolled back.
	if decision.SetLastAlert != nil {
		if err := e.store.UpdateTriggerLastAlert(ctx, alert.ID, *decision.SetLastAlert); err != nil {
			e.logger.Error("failed to advance last_alert",
				zap.String("alert_id", alert.ID.String()),
				zap.Error(err),
			)
			stats.Errors++
		}
	}
	if err := e.store.MarkTriggerFired(ctx, alert.ID, decision.FiredAt); err != nil {
		e.logger.Error("failed to stamp last_fired",
			zap.String("alert_id", alert.ID.String()),
			zap.Error(err),
		)
		stats.Errors++
	}
}
