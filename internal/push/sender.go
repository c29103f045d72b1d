// Package push builds provider-agnostic notification payloads and delivers
// them through a configured provider.
package push

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lembra-app/lembra/internal/db"
)

// Payload is everything a provider needs to deliver one notification.
// Target is the user's opaque device token (OneSignal player id or an SNS
// platform-endpoint ARN, depending on the configured sender).
type Payload struct {
	Target   string         `json:"target"`
	Title    string         `json:"title"`
	Subtitle string         `json:"subtitle"`
	Body     string         `json:"body"`
	Data     map[string]any `json:"data"`
}

// Sender delivers a payload to the push provider.
type Sender interface {
	Send(ctx context.Context, payload *Payload) error
	Name() string
}

// BuildPayload assembles the notification for a fired alert. Pure, no I/O.
func BuildPayload(alert db.Alert, user db.User) *Payload {
	target := ""
	if user.PushToken != nil {
		target = *user.PushToken
	}
	return &Payload{
		Target:   target,
		Title:    alert.Title,
		Subtitle: alert.Subtitle,
		Body:     alert.Body,
		Data: map[string]any{
			"alert_id":   alert.ID.String(),
			"created_at": alert.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}

// LogSender logs payloads instead of delivering them. Used in development
// and as the fallback when no provider is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, payload *Payload) error {
	s.logger.Info("logging notification (development mode)",
		zap.String("target", payload.Target),
		zap.String("title", payload.Title),
		zap.Any("data", payload.Data),
	)
	return nil
}

func (s *LogSender) Name() string { return "log" }
