package circuitbreaker

import (
	"context"

	"go.uber.org/zap"

	"github.com/lembra-app/lembra/internal/push"
)

// ProtectedSender wraps a push.Sender with a circuit breaker. While the
// breaker is open, sends fail fast with ErrCircuitOpen instead of hitting a
// provider that is already down.
type ProtectedSender struct {
	inner   push.Sender
	breaker *Breaker
	logger  *zap.Logger
}

func NewProtectedSender(inner push.Sender, breaker *Breaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		inner:   inner,
		breaker: breaker,
		logger:  logger,
	}
}

func (s *ProtectedSender) Send(ctx context.Context, payload *push.Payload) error {
	if !s.breaker.Allow() {
		s.logger.Debug("dispatch rejected, circuit open",
			zap.String("provider", s.inner.Name()),
			zap.String("target", payload.Target),
		)
		return ErrCircuitOpen
	}

	err := s.inner.Send(ctx, payload)
	if err != nil {
		s.breaker.RecordFailure()
		return err
	}
	s.breaker.RecordSuccess()
	return nil
}

func (s *ProtectedSender) Name() string {
	return s.inner.Name()
}
