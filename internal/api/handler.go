package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lembra-app/lembra/internal/clock"
	"github.com/lembra-app/lembra/internal/db"
	"github.com/lembra-app/lembra/internal/push"
)

// AlertRepository defines the persistence operations the API needs.
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert *db.Alert, trigger *db.Trigger) error
	GetAlert(ctx context.Context, id, userID uuid.UUID) (*db.AlertWithTrigger, error)
	ListAlertsByUser(ctx context.Context, userID uuid.UUID) ([]*db.AlertWithTrigger, error)
	UpdateAlert(ctx context.Context, id, userID uuid.UUID, patch db.AlertPatch) (*db.AlertWithTrigger, error)
	DeleteAlert(ctx context.Context, id, userID uuid.UUID) error
}

// TriggerRequest is the trigger portion of create/update requests.
type TriggerRequest struct {
	AlertType string     `json:"alert_type"`
	Hours     *int       `json:"hours,omitempty"`
	Minutes   *int       `json:"minutes,omitempty"`
	Week      []string   `json:"week,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
}

// CreateAlertRequest is the POST /v1/alerts body.
type CreateAlertRequest struct {
	Title    string          `json:"title"`
	Subtitle string          `json:"subtitle"`
	Body     string          `json:"body"`
	Trigger  *TriggerRequest `json:"trigger"`
}

// UpdateAlertRequest is the PATCH /v1/alerts/{id} body; all fields optional.
type UpdateAlertRequest struct {
	Title    *string         `json:"title,omitempty"`
	Subtitle *string         `json:"subtitle,omitempty"`
	Body     *string         `json:"body,omitempty"`
	Trigger  *TriggerRequest `json:"trigger,omitempty"`
}

// DebugNotificationRequest sends a test push to one device.
type DebugNotificationRequest struct {
	Target   string `json:"target"`
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Body     string `json:"body,omitempty"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger *zap.Logger
	repo   AlertRepository
	sender push.Sender
}

func NewHandler(logger *zap.Logger, repo AlertRepository, sender push.Sender) *Handler {
	return &Handler{
		logger: logger,
		repo:   repo,
		sender: sender,
	}
}

// Routes mounts the alert endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/alerts", h.CreateAlert)
	r.Get("/alerts", h.ListAlerts)
	r.Post("/alerts/debug", h.SendDebugNotification)
	r.Get("/alerts/{id}", h.GetAlert)
	r.Patch("/alerts/{id}", h.UpdateAlert)
	r.Delete("/alerts/{id}", h.DeleteAlert)
}

// CreateAlert handles POST /v1/alerts
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Title == "" || req.Subtitle == "" || req.Body == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "title, subtitle and body are required")
		return
	}

	trigger, err := triggerFromRequest(req.Trigger)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_trigger", "Invalid trigger configuration", err.Error())
		return
	}

	alert := &db.Alert{
		ID:       uuid.New(),
		Title:    req.Title,
		Subtitle: req.Subtitle,
		Body:     req.Body,
		UserID:   userID,
	}

	if err := h.repo.CreateAlert(r.Context(), alert, trigger); err != nil {
		h.logger.Error("failed to create alert", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create alert", "")
		return
	}

	h.writeJSON(w, http.StatusCreated, db.AlertWithTrigger{Alert: *alert, Trigger: trigger})
}

// ListAlerts handles GET /v1/alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	alerts, err := h.repo.ListAlertsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list alerts", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list alerts", "")
		return
	}
	if alerts == nil {
		alerts = []*db.AlertWithTrigger{}
	}

	h.writeJSON(w, http.StatusOK, alerts)
}

// GetAlert handles GET /v1/alerts/{id}
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}

	alert, err := h.repo.GetAlert(r.Context(), id, userID)
	if err != nil {
		h.writeRepoError(w, err, "Failed to get alert")
		return
	}

	h.writeJSON(w, http.StatusOK, alert)
}

// UpdateAlert handles PATCH /v1/alerts/{id}
func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}

	var req UpdateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	patch := db.AlertPatch{
		Title:    req.Title,
		Subtitle: req.Subtitle,
		Body:     req.Body,
	}
	if req.Trigger != nil {
		triggerPatch, err := triggerPatchFromRequest(req.Trigger)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_trigger", "Invalid trigger configuration", err.Error())
			return
		}
		patch.Trigger = triggerPatch
	}

	alert, err := h.repo.UpdateAlert(r.Context(), id, userID, patch)
	if err != nil {
		h.writeRepoError(w, err, "Failed to update alert")
		return
	}

	h.writeJSON(w, http.StatusOK, alert)
}

// DeleteAlert handles DELETE /v1/alerts/{id}
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}

	if err := h.repo.DeleteAlert(r.Context(), id, userID); err != nil {
		h.writeRepoError(w, err, "Failed to delete alert")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SendDebugNotification handles POST /v1/alerts/debug: a direct test push
// to one device token, bypassing trigger evaluation.
func (h *Handler) SendDebugNotification(w http.ResponseWriter, r *http.Request) {
	var req DebugNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.Target == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing target", "target device token is required")
		return
	}

	payload := &push.Payload{
		Target:   req.Target,
		Title:    req.Title,
		Subtitle: req.Subtitle,
		Body:     req.Body,
		Data:     map[string]any{"debug": true, "timestamp": time.Now().UTC().Format(time.RFC3339)},
	}
	if payload.Title == "" {
		payload.Title = "Test notification"
	}
	if payload.Subtitle == "" {
		payload.Subtitle = "Debug"
	}
	if payload.Body == "" {
		payload.Body = "This is a test notification"
	}

	if err := h.sender.Send(r.Context(), payload); err != nil {
		h.logger.Error("debug notification failed", zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "dispatch_failed", "Failed to send notification", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"target":  req.Target,
	})
}

// triggerFromRequest validates a full trigger definition for creation.
func triggerFromRequest(req *TriggerRequest) (*db.Trigger, error) {
	if req == nil {
		return nil, errors.New("trigger is required")
	}

	trigger := &db.Trigger{AlertType: db.AlertType(req.AlertType)}
	if req.Hours != nil {
		trigger.Hours = *req.Hours
	}
	if req.Minutes != nil {
		trigger.Minutes = *req.Minutes
	}
	trigger.Week = req.Week
	trigger.Date = req.Date

	if err := validateTrigger(trigger); err != nil {
		return nil, err
	}
	return trigger, nil
}

func triggerPatchFromRequest(req *TriggerRequest) (*db.TriggerPatch, error) {
	patch := &db.TriggerPatch{
		Hours:   req.Hours,
		Minutes: req.Minutes,
		Week:    req.Week,
		Date:    req.Date,
	}
	if req.AlertType != "" {
		alertType := db.AlertType(req.AlertType)
		switch alertType {
		case db.AlertTypeInterval, db.AlertTypeDaily, db.AlertTypeWeekly, db.AlertTypeDate:
		default:
			return nil, errors.New("unknown alert type")
		}
		patch.AlertType = &alertType
	}
	for _, name := range req.Week {
		if _, err := clock.ParseWeekday(name); err != nil {
			return nil, err
		}
	}
	return patch, nil
}

func validateTrigger(t *db.Trigger) error {
	switch t.AlertType {
	case db.AlertTypeInterval:
		if t.Hours < 0 || t.Minutes < 0 || t.Hours*60+t.Minutes == 0 {
			return errors.New("interval trigger needs a positive hours/minutes interval")
		}
	case db.AlertTypeDaily:
		return validateTimeOfDay(t)
	case db.AlertTypeWeekly:
		if len(t.Week) == 0 {
			return errors.New("weekly trigger needs at least one weekday")
		}
		for _, name := range t.Week {
			if _, err := clock.ParseWeekday(name); err != nil {
				return err
			}
		}
		return validateTimeOfDay(t)
	case db.AlertTypeDate:
		if t.Date == nil {
			return errors.New("date trigger needs a date")
		}
	default:
		return errors.New("alert_type must be INTERVAL, DAILY, WEEKLY or DATE")
	}
	return nil
}

func validateTimeOfDay(t *db.Trigger) error {
	if t.Hours < 0 || t.Hours > 23 || t.Minutes < 0 || t.Minutes > 59 {
		return errors.New("hours must be 0-23 and minutes 0-59")
	}
	return nil
}

// userID extracts the owner id from the X-User-ID header. Token issuance
// and verification live outside this service.
func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", "X-User-ID header is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid user identity", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) alertID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid alert id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error, title string) {
	switch {
	case errors.Is(err, db.ErrAlertNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Alert not found", "")
	case errors.Is(err, db.ErrNotOwner):
		h.writeError(w, http.StatusForbidden, "forbidden", "Alert belongs to another user", "")
	default:
		h.logger.Error(title, zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", title, "")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
