package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lembra-app/lembra/internal/push"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(DefaultConfig("test"), zap.NewNop())
	if b.GetState() != StateClosed {
		t.Fatalf("expected closed, got %s", b.GetState())
	}
}

func TestBreaker_AllowsWhenClosed(t *testing.T) {
	b := New(DefaultConfig("test"), zap.NewNop())
	for i := 0; i < 10; i++ {
		if !b.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 3, RecoveryTimeout: time.Second}, zap.NewNop())
	for i := 0; i < 3; i++ {
		b.Allow()
		b.RecordFailure()
	}
	if b.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", b.GetState())
	}
	if b.Allow() {
		t.Fatal("should reject while open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: time.Second}, zap.NewNop())
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	if b.GetState() != StateClosed {
		t.Fatal("non-consecutive failures must not open the circuit")
	}
}

func TestBreaker_ProbeAndRecovery(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 1, RecoveryTimeout: 10 * time.Millisecond}, zap.NewNop())
	b.RecordFailure()
	if b.GetState() != StateOpen {
		t.Fatal("expected open")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("probe should be allowed after recovery timeout")
	}
	if b.GetState() != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", b.GetState())
	}
	if b.Allow() {
		t.Fatal("only one probe at a time")
	}

	b.RecordSuccess()
	if b.GetState() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", b.GetState())
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := New(Config{Name: "test", MaxFailures: 1, RecoveryTimeout: 10 * time.Millisecond}, zap.NewNop())
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.Allow()
	b.RecordFailure()
	if b.GetState() != StateOpen {
		t.Fatalf("expected re-open after failed probe, got %s", b.GetState())
	}
}

// flakySender fails until told otherwise.
type flakySender struct {
	fail  bool
	calls int
}

func (s *flakySender) Send(ctx context.Context, p *push.Payload) error {
	s.calls++
	if s.fail {
		return errors.New("provider down")
	}
	return nil
}

func (s *flakySender) Name() string { return "flaky" }

func TestProtectedSender_FailsFastWhenOpen(t *testing.T) {
	inner := &flakySender{fail: true}
	breaker := New(Config{Name: "test", MaxFailures: 2, RecoveryTimeout: time.Minute}, zap.NewNop())
	sender := NewProtectedSender(inner, breaker, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := sender.Send(ctx, &push.Payload{}); err == nil {
			t.Fatal("expected provider error")
		}
	}

	err := sender.Send(ctx, &push.Payload{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("provider called %d times, want 2 (open circuit must not reach it)", inner.calls)
	}
}

func TestProtectedSender_PassesThroughWhenHealthy(t *testing.T) {
	inner := &flakySender{}
	sender := NewProtectedSender(inner, New(DefaultConfig("test"), zap.NewNop()), zap.NewNop())

	if err := sender.Send(context.Background(), &push.Payload{Target: "t"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("provider called %d times, want 1", inner.calls)
	}
	if sender.Name() != "flaky" {
		t.Errorf("unexpected name %q", sender.Name())
	}
}
