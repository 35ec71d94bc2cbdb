package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	exec := NewExecutor(Config{Retry: fastRetry(3)})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		if errors.Is(err, errTemp) {
			return Transient
		}
		return Permanent
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{Retry: fastRetry(3)})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification { return Ignore })
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteDefaultCallsOnce(t *testing.T) {
	exec := NewExecutor(Config{})

	attempts := 0
	_ = exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errors.New("busy")
	}, func(error) ErrorClassification { return Transient })
	if attempts != 1 {
		t.Fatalf("expected a single attempt by default, got %d", attempts)
	}
}

func TestExecuteStopsRetryingOnCancel(t *testing.T) {
	exec := NewExecutor(Config{Retry: RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}})
	ctx, cancel := context.WithCancel(context.Background())

	errBusy := errors.New("busy")
	err := exec.Execute(ctx, "op", func(context.Context) error {
		cancel()
		return errBusy
	}, func(error) ErrorClassification { return Transient })
	if !errors.Is(err, errBusy) {
		t.Fatalf("expected last error after cancel, got %v", err)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		Retry: fastRetry(1),
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      2,
			FailureRatio:     0.5,
			OpenTimeout:      50 * time.Millisecond,
			HalfOpenMaxCalls: 1,
		},
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification { return Permanent }

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatalf("expected IsCircuitOpen to recognize %v", err)
	}
}

func TestExecuteIgnoredErrorsKeepCircuitClosed(t *testing.T) {
	exec := NewExecutor(Config{Breaker: BreakerPolicy{Enabled: true, MinRequests: 1, FailureRatio: 0.1}})

	for i := 0; i < 3; i++ {
		_ = exec.Execute(context.Background(), "qdrant.search", func(context.Context) error {
			return errors.New("bad request")
		}, func(error) ErrorClassification { return Ignore })
	}
	if state := exec.BreakerStates()["qdrant.search"]; state != "closed" {
		t.Fatalf("expected closed breaker for ignored errors, got %s", state)
	}
}

func TestBreakerStatesReportsOperations(t *testing.T) {
	exec := NewExecutor(Config{Breaker: BreakerPolicy{Enabled: true}})
	_ = exec.Execute(context.Background(), "rerank", func(context.Context) error { return nil }, nil)

	states := exec.BreakerStates()
	if states["rerank"] != "closed" {
		t.Fatalf("expected closed rerank breaker, got %v", states)
	}
}

func TestRetryPolicyBackoffIsCapped(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}.withDefaults()
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := p.backoff(i + 1); got != w {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w)
		}
	}
}

func TestPolicyDefaults(t *testing.T) {
	retry := RetryPolicy{}.withDefaults()
	if retry.MaxAttempts != 1 || retry.MaxBackoff < retry.InitialBackoff {
		t.Fatalf("unexpected retry defaults %+v", retry)
	}
	breaker := BreakerPolicy{FailureRatio: 3}.withDefaults()
	if breaker.FailureRatio != 0.5 || breaker.MinRequests != 10 {
		t.Fatalf("unexpected breaker defaults %+v", breaker)
	}
}
