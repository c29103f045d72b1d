package engine

import (
	"fmt"
	"time"

	"github.com/lembra-app/lembra/internal/clock"
	"github.com/lembra-app/lembra/internal/db"
)

// Decision is the outcome of evaluating one trigger against "now".
//
// When Fire is set, FiredAt holds the evaluation minute and must be stamped
// onto the trigger so the same minute is never fired twice. SetLastAlert is
// additionally set for INTERVAL triggers to advance the interval base.
// A non-nil Err means the trigger configuration is malformed; the alert is
// skipped and the error is counted, never propagated as a batch failure.
type Decision struct {
	Fire         bool
	FiredAt      time.Time
	SetLastAlert *time.Time
	Reason       string
	Err          error
}

// Evaluate decides whether a trigger fires at nowUTC, interpreting
// wall-clock variants in the owner's timezone. It is pure: all state
// changes are described on the returned Decision.
func Evaluate(trigger *db.Trigger, nowUTC, alertCreatedAt time.Time, timezone string) Decision {
	now := nowUTC.UTC().Truncate(time.Minute)

	// One send per minute per trigger, regardless of variant.
	if trigger.LastFired != nil && trigger.LastFired.UTC().Truncate(time.Minute).Equal(now) {
		return Decision{Reason: "already fired this minute"}
	}

	switch trigger.AlertType {
	case db.AlertTypeInterval:
		return evaluateInterval(trigger, now, alertCreatedAt)
	case db.AlertTypeDaily:
		return evaluateDaily(trigger, now, timezone)
	case db.AlertTypeWeekly:
		return evaluateWeekly(trigger, now, timezone)
	case db.AlertTypeDate:
		return evaluateDate(trigger, now, timezone)
	default:
		return Decision{Err: fmt.Errorf("unknown alert type %q", trigger.AlertType)}
	}
}

func evaluateInterval(trigger *db.Trigger, now time.Time, createdAt time.Time) Decision {
	if trigger.Hours < 0 || trigger.Minutes < 0 {
		return Decision{Err: fmt.Errorf("negative interval: hours=%d minutes=%d", trigger.Hours, trigger.Minutes)}
	}
	intervalMinutes := trigger.Hours*60 + trigger.Minutes
	if intervalMinutes == 0 {
		return Decision{Err: fmt.Errorf("zero-length interval")}
	}

	base := createdAt
	if trigger.LastAlert != nil {
		base = *trigger.LastAlert
	}
	base = base.UTC().Truncate(time.Minute)

	elapsed := int(now.Sub(base) / time.Minute)
	if elapsed < intervalMinutes {
		return Decision{Reason: fmt.Sprintf("%dm of %dm elapsed", elapsed, intervalMinutes)}
	}

	fired := now
	return Decision{Fire: true, FiredAt: fired, SetLastAlert: &fired}
}

func evaluateDaily(trigger *db.Trigger, now time.Time, timezone string) Decision {
	if err := validateTimeOfDay(trigger.Hours, trigger.Minutes); err != nil {
		return Decision{Err: err}
	}

	local, err := clock.ToLocal(now, timezone)
	if err != nil {
		return Decision{Err: err}
	}

	target := clock.WallClock{Hour: trigger.Hours, Minute: trigger.Minutes}
	if !clock.SameMinute(local, target) {
		return Decision{Reason: "time of day does not match"}
	}
	return Decision{Fire: true, FiredAt: now}
}

func evaluateWeekly(trigger *db.Trigger, now time.Time, timezone string) Decision {
	if len(trigger.Week) == 0 {
		return Decision{Err: fmt.Errorf("weekly trigger with empty weekday set")}
	}
	if err := validateTimeOfDay(trigger.Hours, trigger.Minutes); err != nil {
		return Decision{Err: err}
	}

	local, err := clock.ToLocal(now, timezone)
	if err != nil {
		return Decision{Err: err}
	}

	match := false
	for _, name := range trigger.Week {
		day, err := clock.ParseWeekday(name)
		if err != nil {
			return Decision{Err: err}
		}
		if day == local.Weekday {
			match = true
		}
	}
	if !match {
		return Decision{Reason: "weekday not in set"}
	}

	target := clock.WallClock{Hour: trigger.Hours, Minute: trigger.Minutes}
	if !clock.SameMinute(local, target) {
		return Decision{Reason: "time of day does not match"}
	}
	return Decision{Fire: true, FiredAt: now}
}

func evaluateDate(trigger *db.Trigger, now time.Time, timezone string) Decision {
	if trigger.Date == nil {
		return Decision{Err: fmt.Errorf("date trigger with unset date")}
	}

	localNow, err := clock.ToLocal(now, timezone)
	if err != nil {
		return Decision{Err: err}
	}
	localTarget, err := clock.ToLocal(trigger.Date.UTC(), timezone)
	if err != nil {
		return Decision{Err: err}
	}

	if !clock.SameInstantMinute(localNow, localTarget) {
		return Decision{Reason: "target minute does not match"}
	}
	return Decision{Fire: true, FiredAt: now}
}

func validateTimeOfDay(hours, minutes int) error {
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return fmt.Errorf("time of day out of range: %02d:%02d", hours, minutes)
	}
	return nil
}
