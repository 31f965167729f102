package backoff

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNextGrowth(t *testing.T) {
	b, err := New(Options{
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      time.Nanosecond,
		MaxAttempts: -1,
	})
	if err != nil {
		t.Fatalf("new backoff: %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		got, ok := b.Next()
		if !ok {
			t.Fatalf("attempt %v: budget exhausted unexpectedly", i)
		}
		if got < w || got > w+time.Nanosecond {
			t.Fatalf("attempt %v: expected = %v (+jitter), got = %v", i, w, got)
		}
	}
}

func TestNextBudget(t *testing.T) {
	b, err := New(Options{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("new backoff: %v", err)
	}
	for i := range 2 {
		if _, ok := b.Next(); !ok {
			t.Fatalf("attempt %v: budget exhausted too early", i)
		}
	}
	if _, ok := b.Next(); ok {
		t.Fatalf("budget not exhausted after the limit")
	}
	b.Reset()
	if _, ok := b.Next(); !ok {
		t.Fatalf("budget not restored by reset")
	}
}

func TestRetryExhaustion(t *testing.T) {
	b, err := New(Options{BaseDelay: time.Microsecond, Jitter: time.Nanosecond, MaxAttempts: 2})
	if err != nil {
		t.Fatalf("new backoff: %v", err)
	}
	cause := errors.New("boom")
	if err := b.Retry(context.Background(), cause); err != nil {
		t.Fatalf("first retry: %v", err)
	}
	err = b.Retry(context.Background(), cause)
	if err == nil || !errors.Is(err, cause) {
		t.Fatalf("exhausted retry: expected wrapped cause, got = %v", err)
	}
	if !strings.Contains(err.Error(), "retry limit exceeded") {
		t.Fatalf("exhausted retry message: got = %v", err)
	}
}

func TestRetryCanceled(t *testing.T) {
	b, err := New(Options{BaseDelay: time.Hour, Jitter: time.Nanosecond, MaxAttempts: -1})
	if err != nil {
		t.Fatalf("new backoff: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Retry(ctx, errors.New("boom")); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled retry: expected = context.Canceled, got = %v", err)
	}
}

func TestValidate(t *testing.T) {
	if _, err := New(Options{BaseDelay: -time.Second}); err == nil {
		t.Fatalf("expected error for negative base delay")
	}
}
