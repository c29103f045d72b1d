package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// SNSSender delivers mobile push notifications via AWS SNS. The payload
// target is expected to be a platform-endpoint ARN.
type SNSSender struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for SNS: %w", err)
	}

	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

func (s *SNSSender) Send(ctx context.Context, payload *Payload) error {
	if payload.Target == "" {
		return fmt.Errorf("payload missing target endpoint ARN")
	}

	message, err := json.Marshal(map[string]any{
		"title":    payload.Title,
		"subtitle": payload.Subtitle,
		"body":     payload.Body,
		"data":     payload.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal SNS message: %w", err)
	}

	result, err := s.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(payload.Target),
		Message:   aws.String(string(message)),
	})
	if err != nil {
		return fmt.Errorf("SNS publish failed: %w", err)
	}

	s.logger.Info("notification delivered",
		zap.String("provider", s.Name()),
		zap.String("message_id", aws.ToString(result.MessageId)),
		zap.String("target", payload.Target),
	)
	return nil
}

func (s *SNSSender) Name() string { return "sns" }
