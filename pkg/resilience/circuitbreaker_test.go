package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func succeeding(context.Context) error { return nil }

func tripped(t *testing.T, opts BreakerOpts) *Breaker {
	t.Helper()
	b := NewBreaker(opts)
	for i := 0; i < opts.FailThreshold; i++ {
		if err := b.Call(context.Background(), failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}
	return b
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := tripped(t, BreakerOpts{FailThreshold: 3, Timeout: time.Minute})

	if b.State() != StateOpen {
		t.Fatalf("expected open after %d failures, got %v", 3, b.State())
	}
	if err := b.Call(context.Background(), succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Timeout: time.Minute})

	_ = b.Call(context.Background(), failing)
	_ = b.Call(context.Background(), succeeding)
	_ = b.Call(context.Background(), failing)

	if b.State() != StateClosed {
		t.Errorf("interleaved success should keep the breaker closed, got %v", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := tripped(t, BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second})

	// Advance the clock past the open timeout.
	base := time.Now()
	b.now = func() time.Time { return base.Add(11 * time.Second) }

	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %v", b.State())
	}
	if err := b.Call(context.Background(), succeeding); err != nil {
		t.Fatalf("probe call should pass, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("successful probe should close the breaker, got %v", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := tripped(t, BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second})

	base := time.Now()
	b.now = func() time.Time { return base.Add(11 * time.Second) }

	if err := b.Call(context.Background(), failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe should run, got %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("failed probe should reopen, got %v", b.State())
	}
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	b := tripped(t, BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Second, HalfOpenMax: 1})

	base := time.Now()
	b.now = func() time.Time { return base.Add(11 * time.Second) }

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = b.Call(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// Second call while the probe is in flight must be rejected.
	if err := b.Call(context.Background(), succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected probe limit rejection, got %v", err)
	}
	close(release)
}

func TestDoReturnsValue(t *testing.T) {
	b := NewBreaker(DefaultBreakerOpts)

	got, err := Do(b, context.Background(), func(context.Context) (string, error) {
		return "answer", nil
	})
	if err != nil || got != "answer" {
		t.Errorf("expected answer, got %q %v", got, err)
	}
}

func TestDoOpenBreakerZeroValue(t *testing.T) {
	b := tripped(t, BreakerOpts{FailThreshold: 1, Timeout: time.Minute})

	got, err := Do(b, context.Background(), func(context.Context) (string, error) {
		return "should not run", nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got != "" {
		t.Errorf("expected zero value, got %q", got)
	}
}
