package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type tempErr struct{ temp bool }

func (e tempErr) Error() string   { return "tempErr" }
func (e tempErr) Temporary() bool { return e.temp }

func TestClassify(t *testing.T) {
	if got := Classify(nil); got != Permanent {
		t.Errorf("Classify(nil) = %v, want Permanent", got)
	}
	if got := Classify(tempErr{temp: true}); got != Temporary {
		t.Errorf("Classify(temp) = %v, want Temporary", got)
	}
	if got := Classify(tempErr{temp: false}); got != Permanent {
		t.Errorf("Classify(permanent) = %v, want Permanent", got)
	}
	if got := Classify(errors.New("plain")); got != Permanent {
		t.Errorf("Classify(plain) = %v, want Permanent", got)
	}
	if got := Classify(context.DeadlineExceeded); got != Temporary {
		t.Errorf("Classify(DeadlineExceeded) = %v, want Temporary", got)
	}
}

func TestRetryPolicyDoSucceedsEventually(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return tempErr{temp: true}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryPolicyDoStopsOnPermanent(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return tempErr{temp: false}
	})
	if err == nil {
		t.Fatal("Do() = nil, want permanent error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on permanent)", attempts)
	}
}

func TestRetryPolicyDoExhaustsAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return tempErr{temp: true}
	})
	if err == nil {
		t.Fatal("Do() = nil, want error after exhausting attempts")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}
