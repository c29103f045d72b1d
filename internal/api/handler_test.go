package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lembra-app/lembra/internal/db"
	"github.com/lembra-app/lembra/internal/push"
)

var ErrDatabaseError = errors.New("database error")

// MockRepository is a fake database for testing
type MockRepository struct {
	alerts map[string]*db.AlertWithTrigger

	createCalled bool
	deleteCalled bool

	shouldFail bool
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		alerts: make(map[string]*db.AlertWithTrigger),
	}
}

func (m *MockRepository) CreateAlert(ctx context.Context, alert *db.Alert, trigger *db.Trigger) error {
	m.createCalled = true

	if m.shouldFail {
		return ErrDatabaseError
	}

	now := time.Now().UTC()
	alert.CreatedAt = now
	alert.UpdatedAt = now
	trigger.AlertID = alert.ID
	m.alerts[alert.ID.String()] = &db.AlertWithTrigger{Alert: *alert, Trigger: trigger}
	return nil
}

func (m *MockRepository) GetAlert(ctx context.Context, id, userID uuid.UUID) (*db.AlertWithTrigger, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}

	alert, exists := m.alerts[id.String()]
	if !exists {
		return nil, db.ErrAlertNotFound
	}
	if alert.UserID != userID {
		return nil, db.ErrNotOwner
	}
	return alert, nil
}

func (m *MockRepository) ListAlertsByUser(ctx context.Context, userID uuid.UUID) ([]*db.AlertWithTrigger, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}

	var result []*db.AlertWithTrigger
	for _, alert := range m.alerts {
		if alert.UserID == userID {
			result = append(result, alert)
		}
	}
	return result, nil
}

func (m *MockRepository) UpdateAlert(ctx context.Context, id, userID uuid.UUID, patch db.AlertPatch) (*db.AlertWithTrigger, error) {
	if m.shouldFail {
		return nil, ErrDatabaseError
	}

	alert, err := m.GetAlert(ctx, id, userID)
	if err != nil {
		return nil, err
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
	alert.UpdatedAt = time.Now().UTC()
	return alert, nil
}

func (m *MockRepository) DeleteAlert(ctx context.Context, id, userID uuid.UUID) error {
	m.deleteCalled = true

	if m.shouldFail {
		return ErrDatabaseError
	}

	if _, err := m.GetAlert(ctx, id, userID); err != nil {
		return err
	}
	delete(m.alerts, id.String())
	return nil
}

type recordingSender struct {
	sent    []*push.Payload
	sendErr error
}

func (s *recordingSender) Send(ctx context.Context, p *push.Payload) error {
	s.sent = append(s.sent, p)
	return s.sendErr
}

func (s *recordingSender) Name() string { return "recording" }

func newTestRouter(repo AlertRepository, sender push.Sender) http.Handler {
	h := NewHandler(zap.NewNop(), repo, sender)
	r := chi.NewRouter()
	r.Route("/v1", h.Routes)
	return r
}

func seedAlert(repo *MockRepository, userID uuid.UUID) *db.AlertWithTrigger {
	alert := &db.Alert{
		ID:       uuid.New(),
		Title:    "Vitamin D",
		Subtitle: "Morning dose",
		Body:     "Take one capsule",
		UserID:   userID,
	}
	trigger := &db.Trigger{AlertType: db.AlertTypeDaily, Hours: 9, Minutes: 0}
	_ = repo.CreateAlert(context.Background(), alert, trigger)
	return repo.alerts[alert.ID.String()]
}

func TestCreateAlert_Success(t *testing.T) {
	repo := NewMockRepository()
	router := newTestRouter(repo, &recordingSender{})
	userID := uuid.New()

	body := map[string]any{
		"title":    "Ibuprofen",
		"subtitle": "Every 6 hours",
		"body":     "Take with food",
		"trigger": map[string]any{
			"alert_type": "INTERVAL",
			"hours":      6,
			"minutes":    0,
		},
	}
	raw, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader(raw))
	req.Header.Set("X-User-ID", userID.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if !repo.createCalled {
		t.Error("repository CreateAlert was not called")
	}

	var created db.AlertWithTrigger
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if created.Title != "Ibuprofen" || created.UserID != userID {
		t.Errorf("unexpected alert %+v", created.Alert)
	}
	if created.Trigger == nil || created.Trigger.AlertType != db.AlertTypeInterval {
		t.Errorf("unexpected trigger %+v", created.Trigger)
	}
}

func TestCreateAlert_RejectsMissingUserHeader(t *testing.T) {
	router := newTestRouter(NewMockRepository(), &recordingSender{})

	req := httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateAlert_RejectsInvalidTrigger(t *testing.T) {
	tests := []struct {
		name    string
		trigger map[string]any
	}{
		{"zero interval", map[string]any{"alert_type": "INTERVAL", "hours": 0, "minutes": 0}},
		{"hour out of range", map[string]any{"alert_type": "DAILY", "hours": 24, "minutes": 0}},
		{"empty weekday set", map[string]any{"alert_type": "WEEKLY", "hours": 9, "minutes": 0}},
		{"bad weekday name", map[string]any{"alert_type": "WEEKLY", "hours": 9, "minutes": 0, "week": []string{"FUNDAY"}}},
		{"date without date", map[string]any{"alert_type": "DATE"}},
		{"unknown type", map[string]any{"alert_type": "HOURLY"}},
	}

	router := newTestRouter(NewMockRepository(), &recordingSender{})
	userID := uuid.New().String()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := json.Marshal(map[string]any{
				"title":    "t",
				"subtitle": "s",
				"body":     "b",
				"trigger":  tt.trigger,
			})
			req := httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewReader(raw))
			req.Header.Set("X-User-ID", userID)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListAlerts_OnlyOwnAlerts(t *testing.T) {
	repo := NewMockRepository()
	router := newTestRouter(repo, &recordingSender{})

	owner := uuid.New()
	seedAlert(repo, owner)
	seedAlert(repo, owner)
	seedAlert(repo, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", nil)
	req.Header.Set("X-User-ID", owner.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var listed []*db.AlertWithTrigger
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if len(listed) != 2 {
		t.Errorf("got %d alerts, want 2", len(listed))
	}
}

func TestGetAlert_NotFound(t *testing.T) {
	router := newTestRouter(NewMockRepository(), &recordingSender{})

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts/"+uuid.New().String(), nil)
	req.Header.Set("X-User-ID", uuid.New().String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetAlert_ForbiddenForOtherUser(t *testing.T) {
	repo := NewMockRepository()
	router := newTestRouter(repo, &recordingSender{})
	alert := seedAlert(repo, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts/"+alert.ID.String(), nil)
	req.Header.Set("X-User-ID", uuid.New().String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestUpdateAlert_PatchesFields(t *testing.T) {
	repo := NewMockRepository()
	router := newTestRouter(repo, &recordingSender{})
	owner := uuid.New()
	alert := seedAlert(repo, owner)

	raw, _ := json.Marshal(map[string]any{"title": "Vitamin D3"})
	req := httptest.NewRequest(http.MethodPatch, "/v1/alerts/"+alert.ID.String(), bytes.NewReader(raw))
	req.Header.Set("X-User-ID", owner.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var updated db.AlertWithTrigger
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if updated.Title != "Vitamin D3" {
		t.Errorf("title = %q, want %q", updated.Title, "Vitamin D3")
	}
	if updated.Subtitle != "Morning dose" {
		t.Errorf("subtitle = %q, unpatched field must survive", updated.Subtitle)
	}
}

func TestDeleteAlert_Success(t *testing.T) {
	repo := NewMockRepository()
	router := newTestRouter(repo, &recordingSender{})
	owner := uuid.New()
	alert := seedAlert(repo, owner)

	req := httptest.NewRequest(http.MethodDelete, "/v1/alerts/"+alert.ID.String(), nil)
	req.Header.Set("X-User-ID", owner.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !repo.deleteCalled {
		t.Error("repository DeleteAlert was not called")
	}
	if len(repo.alerts) != 0 {
		t.Error("alert still present after delete")
	}
}

func TestDebugNotification_SendsWithDefaults(t *testing.T) {
	sender := &recordingSender{}
	router := newTestRouter(NewMockRepository(), sender)

	raw, _ := json.Marshal(map[string]any{"target": "player-123"})
	req := httptest.NewRequest(http.MethodPost, "/v1/alerts/debug", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sender called %d times, want 1", len(sender.sent))
	}
	payload := sender.sent[0]
	if payload.Target != "player-123" {
		t.Errorf("target = %q", payload.Target)
	}
	if payload.Title != "Test notification" {
		t.Errorf("title = %q, want default", payload.Title)
	}
}

func TestDebugNotification_DispatchFailure(t *testing.T) {
	sender := &recordingSender{sendErr: errors.New("provider down")}
	router := newTestRouter(NewMockRepository(), sender)

	raw, _ := json.Marshal(map[string]any{"target": "player-123"})
	req := httptest.NewRequest(http.MethodPost, "/v1/alerts/debug", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestDebugNotification_RequiresTarget(t *testing.T) {
	router := newTestRouter(NewMockRepository(), &recordingSender{})

	req := httptest.NewRequest(http.MethodPost, "/v1/alerts/debug", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRepositoryFailure_Returns500(t *testing.T) {
	repo := NewMockRepository()
	repo.shouldFail = true
	router := newTestRouter(repo, &recordingSender{})

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", nil)
	req.Header.Set("X-User-ID", uuid.New().String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
