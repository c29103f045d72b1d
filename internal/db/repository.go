package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Sentinel errors surfaced to the API layer.
var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrNotOwner      = errors.New("alert belongs to another user")
)

// AlertWithTrigger pairs an alert with its trigger for API responses.
type AlertWithTrigger struct {
	Alert
	Trigger *Trigger `json:"trigger"`
}

// AlertPatch describes a partial alert update. Nil fields are left as-is;
// the trigger patch merges field-by-field into the existing trigger.
type AlertPatch struct {
	Title    *string
	Subtitle *string
	Body     *string
	Trigger  *TriggerPatch
}

// TriggerPatch merges into an existing trigger.
type TriggerPatch struct {
	AlertType *AlertType
	Hours     *int
	Minutes   *int
	Week      []string
	Date      *time.Time
}

// Repository handles database operations for users, alerts and triggers
type Repository struct {
	db     *DB
	logger *zap.Logger
}

func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListAlertCandidates loads every alert with its trigger and owning user in
// one eager join. Alerts whose trigger row is missing come back with a nil
// Trigger so the engine can log the inconsistency.
func (r *Repository) ListAlertCandidates(ctx context.Context) ([]*AlertCandidate, error) {
	query := `
		SELECT
			a.id, a.title, a.subtitle, a.body, a.user_id, a.created_at, a.updated_at,
			t.alert_id, t.alert_type, t.hours, t.minutes, t.week, t.date, t.last_alert, t.last_fired,
			u.id, u.username, u.email, u.push_token, u.language_tag, u.timezone, u.created_at, u.updated_at
		FROM alerts a
		LEFT JOIN triggers t ON t.alert_id = a.id
		JOIN users u ON u.id = a.user_id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query alert candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*AlertCandidate
	for rows.Next() {
		var (
			c         AlertCandidate
			triggerID *uuid.UUID
			alertType *AlertType
			hours     *int
			minutes   *int
			week      []string
			date      *time.Time
			lastAlert *time.Time
			lastFired *time.Time
		)

		err := rows.Scan(
			&c.Alert.ID, &c.Alert.Title, &c.Alert.Subtitle, &c.Alert.Body,
			&c.Alert.UserID, &c.Alert.CreatedAt, &c.Alert.UpdatedAt,
			&triggerID, &alertType, &hours, &minutes, &week, &date, &lastAlert, &lastFired,
			&c.User.ID, &c.User.Username, &c.User.Email, &c.User.PushToken,
			&c.User.LanguageTag, &c.User.Timezone, &c.User.CreatedAt, &c.User.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert candidate: %w", err)
		}

		if triggerID != nil {
			c.Trigger = &Trigger{
				AlertID:   *triggerID,
				AlertType: *alertType,
				Hours:     *hours,
				Minutes:   *minutes,
				Week:      week,
				Date:      date,
				LastAlert: lastAlert,
				LastFired: lastFired,
			}
		}

		candidates = append(candidates, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert candidates: %w", err)
	}

	return candidates, nil
}

// UpdateTriggerLastAlert advances the interval base for one trigger.
func (r *Repository) UpdateTriggerLastAlert(ctx context.Context, alertID uuid.UUID, lastAlert time.Time) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE triggers SET last_alert = $1 WHERE alert_id = $2`,
		lastAlert, alertID,
	)
	if err != nil {
		return fmt.Errorf("update trigger last_alert: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update trigger last_alert: %w", ErrAlertNotFound)
	}
	return nil
}

// MarkTriggerFired stamps the minute a trigger last fired.
func (r *Repository) MarkTriggerFired(ctx context.Context, alertID uuid.UUID, firedAt time.Time) error {
	result, err := r.db.Pool().Exec(ctx,
		`UPDATE triggers SET last_fired = $1 WHERE alert_id = $2`,
		firedAt, alertID,
	)
	if err != nil {
		return fmt.Errorf("mark trigger fired: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("mark trigger fired: %w", ErrAlertNotFound)
	}
	return nil
}

// CreateAlert inserts an alert and its trigger atomically. The trigger's
// last_alert is seeded to creation time so INTERVAL counts from now.
func (r *Repository) CreateAlert(ctx context.Context, alert *Alert, trigger *Trigger) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create alert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO alerts (id, title, subtitle, body, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, alert.ID, alert.Title, alert.Subtitle, alert.Body, alert.UserID,
	).Scan(&alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	trigger.AlertID = alert.ID
	seed := alert.CreatedAt
	trigger.LastAlert = &seed

	_, err = tx.Exec(ctx, `
		INSERT INTO triggers (alert_id, alert_type, hours, minutes, week, date, last_alert)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, trigger.AlertID, trigger.AlertType, trigger.Hours, trigger.Minutes,
		trigger.Week, trigger.Date, trigger.LastAlert)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create alert: %w", err)
	}

	r.logger.Info("alert created",
		zap.String("alert_id", alert.ID.String()),
		zap.String("user_id", alert.UserID.String()),
		zap.String("alert_type", string(trigger.AlertType)),
	)
	return nil
}

// GetAlert fetches one alert and its trigger, enforcing ownership.
func (r *Repository) GetAlert(ctx context.Context, id, userID uuid.UUID) (*AlertWithTrigger, error) {
	query := `
		SELECT
			a.id, a.title, a.subtitle, a.body, a.user_id, a.created_at, a.updated_at,
			t.alert_id, t.alert_type, t.hours, t.minutes, t.week, t.date, t.last_alert, t.last_fired
		FROM alerts a
		LEFT JOIN triggers t ON t.alert_id = a.id
		WHERE a.id = $1
	`

	var (
		out       AlertWithTrigger
		triggerID *uuid.UUID
		alertType *AlertType
		hours     *int
		minutes   *int
		week      []string
		date      *time.Time
		lastAlert *time.Time
		lastFired *time.Time
	)
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&out.Alert.ID, &out.Alert.Title, &out.Alert.Subtitle, &out.Alert.Body,
		&out.Alert.UserID, &out.Alert.CreatedAt, &out.Alert.UpdatedAt,
		&triggerID, &alertType, &hours, &minutes, &week, &date, &lastAlert, &lastFired,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query alert: %w", err)
	}

	if out.Alert.UserID != userID {
		return nil, ErrNotOwner
	}

	if triggerID != nil {
		out.Trigger = &Trigger{
			AlertID:   *triggerID,
			AlertType: *alertType,
			Hours:     *hours,
			Minutes:   *minutes,
			Week:      week,
			Date:      date,
			LastAlert: lastAlert,
			LastFired: lastFired,
		}
	}
	return &out, nil
}

// ListAlertsByUser returns all alerts of one user with their triggers.
func (r *Repository) ListAlertsByUser(ctx context.Context, userID uuid.UUID) ([]*AlertWithTrigger, error) {
	query := `
		SELECT
			a.id, a.title, a.subtitle, a.body, a.user_id, a.created_at, a.updated_at,
			t.alert_id, t.alert_type, t.hours, t.minutes, t.week, t.date, t.last_alert, t.last_fired
		FROM alerts a
		LEFT JOIN triggers t ON t.alert_id = a.id
		WHERE a.user_id = $1
		ORDER BY a.created_at
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query alerts by user: %w", err)
	}
	defer rows.Close()

	var result []*AlertWithTrigger
	for rows.Next() {
		var (
			out       AlertWithTrigger
			triggerID *uuid.UUID
			alertType *AlertType
			hours     *int
			minutes   *int
			week      []string
			date      *time.Time
			lastAlert *time.Time
			lastFired *time.Time
		)
		err := rows.Scan(
			&out.Alert.ID, &out.Alert.Title, &out.Alert.Subtitle, &out.Alert.Body,
			&out.Alert.UserID, &out.Alert.CreatedAt, &out.Alert.UpdatedAt,
			&triggerID, &alertType, &hours, &minutes, &week, &date, &lastAlert, &lastFired,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if triggerID != nil {
			out.Trigger = &Trigger{
				AlertID:   *triggerID,
				AlertType: *alertType,
				Hours:     *hours,
				Minutes:   *minutes,
				Week:      week,
				Date:      date,
				LastAlert: lastAlert,
				LastFired: lastFired,
			}
		}
		result = append(result, &out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return result, nil
}

// UpdateAlert applies a partial update to an alert and merges the trigger
// patch, enforcing ownership. Runs in one transaction.
func (r *Repository) UpdateAlert(ctx context.Context, id, userID uuid.UUID, patch AlertPatch) (*AlertWithTrigger, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update alert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var alert Alert
	err = tx.QueryRow(ctx, `
		SELECT id, title, subtitle, body, user_id, created_at, updated_at
		FROM alerts WHERE id = $1 FOR UPDATE
	`, id).Scan(&alert.ID, &alert.Title, &alert.Subtitle, &alert.Body,
		&alert.UserID, &alert.CreatedAt, &alert.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock alert: %w", err)
	}
	if alert.UserID != userID {
		return nil, ErrNotOwner
	}

	if patch.Title != nil {
		alert.Title = *patch.Title
	}
	if patch.Subtitle != nil {
		alert.Subtitle = *patch.Subtitle
	}
	if patch.Body != nil {
		alert.Body = *patch.Body
	}

	err = tx.QueryRow(ctx, `
		UPDATE alerts SET title = $1, subtitle = $2, body = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`, alert.Title, alert.Subtitle, alert.Body, id).Scan(&alert.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}

	var trigger Trigger
	err = tx.QueryRow(ctx, `
		SELECT alert_id, alert_type, hours, minutes, week, date, last_alert, last_fired
		FROM triggers WHERE alert_id = $1 FOR UPDATE
	`, id).Scan(&trigger.AlertID, &trigger.AlertType, &trigger.Hours, &trigger.Minutes,
		&trigger.Week, &trigger.Date, &trigger.LastAlert, &trigger.LastFired)
	if errors.Is(err, pgx.ErrNoRows) {
		// Alert without trigger is a data-consistency issue; the alert
		// update still goes through.
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit update alert: %w", err)
		}
		return &AlertWithTrigger{Alert: alert}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock trigger: %w", err)
	}

	if p := patch.Trigger; p != nil {
		if p.AlertType != nil {
			trigger.AlertType = *p.AlertType
		}
		if p.Hours != nil {
			trigger.Hours = *p.Hours
		}
		if p.Minutes != nil {
			trigger.Minutes = *p.Minutes
		}
		if p.Week != nil {
			trigger.Week = p.Week
		}
		if p.Date != nil {
			trigger.Date = p.Date
		}

		_, err = tx.Exec(ctx, `
			UPDATE triggers SET alert_type = $1, hours = $2, minutes = $3, week = $4, date = $5
			WHERE alert_id = $6
		`, trigger.AlertType, trigger.Hours, trigger.Minutes, trigger.Week, trigger.Date, id)
		if err != nil {
			return nil, fmt.Errorf("update trigger: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update alert: %w", err)
	}

	return &AlertWithTrigger{Alert: alert, Trigger: &trigger}, nil
}

// DeleteAlert removes an alert, enforcing ownership. The trigger row goes
// with it via ON DELETE CASCADE.
func (r *Repository) DeleteAlert(ctx context.Context, id, userID uuid.UUID) error {
	var ownerID uuid.UUID
	err := r.db.Pool().QueryRow(ctx, `SELECT user_id FROM alerts WHERE id = $1`, id).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlertNotFound
	}
	if err != nil {
		return fmt.Errorf("query alert owner: %w", err)
	}
	if ownerID != userID {
		return ErrNotOwner
	}

	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}

	r.logger.Info("alert deleted",
		zap.String("alert_id", id.String()),
		zap.String("user_id", userID.String()),
	)
	return nil
}
