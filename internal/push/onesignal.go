package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultOneSignalURL = "https://onesignal.com"

// OneSignalConfig holds the REST credentials for the OneSignal app.
type OneSignalConfig struct {
	AppID   string
	APIKey  string
	BaseURL string        // overridable for tests
	Timeout time.Duration // per-request timeout, default 10s
}

// OneSignalSender delivers notifications through the OneSignal REST API.
type OneSignalSender struct {
	config OneSignalConfig
	client *http.Client
	logger *zap.Logger
}

func NewOneSignalSender(cfg OneSignalConfig, logger *zap.Logger) (*OneSignalSender, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("onesignal app id and api key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOneSignalURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &OneSignalSender{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// notificationRequest mirrors the OneSignal create-notification body.
type notificationRequest struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         map[string]string `json:"headings"`
	Subtitle         map[string]string `json:"subtitle"`
	Contents         map[string]string `json:"contents"`
	Data             map[string]any    `json:"data,omitempty"`
}

type notificationResponse struct {
	ID     string   `json:"id"`
	Errors []string `json:"errors,omitempty"`
}

func (s *OneSignalSender) Send(ctx context.Context, payload *Payload) error {
	if payload.Target == "" {
		return fmt.Errorf("payload missing target player id")
	}

	body, err := json.Marshal(notificationRequest{
		AppID:            s.config.AppID,
		IncludePlayerIDs: []string{payload.Target},
		Headings:         map[string]string{"en": payload.Title},
		Subtitle:         map[string]string{"en": payload.Subtitle},
		Contents:         map[string]string{"en": payload.Body},
		Data:             payload.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/api/v1/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("onesignal request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("onesignal returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	var result notificationResponse
	if err := json.Unmarshal(respBytes, &result); err == nil && len(result.Errors) > 0 {
		return fmt.Errorf("onesignal rejected notification: %v", result.Errors)
	}

	s.logger.Info("notification delivered",
		zap.String("provider", s.Name()),
		zap.String("notification_id", result.ID),
		zap.String("target", payload.Target),
	)
	return nil
}

func (s *OneSignalSender) Name() string { return "onesignal" }
