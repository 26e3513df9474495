package reconciler

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	log := discardLogger()
	attempts := 0
	err := withRetry(context.Background(), log, "test-op", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryReturnsLastErrorAfterExhausted(t *testing.T) {
	log := discardLogger()
	attempts := 0
	wantErr := errors.New("permanent")
	err := withRetry(context.Background(), log, "test-op", func(ctx context.Context) error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("withRetry() error = %v, want %v", err, wantErr)
	}
	if attempts != MaxRetries+1 {
		t.Errorf("attempts = %d, want %d", attempts, MaxRetries+1)
	}
}

func TestWithRetrySucceedsOnFirstAttempt(t *testing.T) {
	log := discardLogger()
	attempts := 0
	err := withRetry(context.Background(), log, "test-op", func(ctx context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no unnecessary retries)", attempts)
	}
}

func TestWithRetryStopsOnContextCancellation(t *testing.T) {
	log := discardLogger()
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := withRetry(ctx, log, "test-op", func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("transient")
	})
	if err == nil {
		t.Errorf("withRetry() error = nil, want context cancellation error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (stopped after cancellation)", attempts)
	}
}
