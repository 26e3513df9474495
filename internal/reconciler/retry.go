package reconciler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// retry constants mirrored verbatim from sincronizar.rs's BATCH_SIZE,
// MAX_RETRIES, OPERATION_TIMEOUT, RETRY_DELAY.
const (
	BatchSize        = 50
	MaxRetries       = 3
	OperationTimeout = 30 * time.Second
	RetryDelay       = 1 * time.Second
)

// withRetry runs op up to MaxRetries+1 times, each attempt bounded by
// OperationTimeout, sleeping RetryDelay between attempts — grounded on
// sincronizar.rs's with_retry.
func withRetry(ctx context.Context, log *logrus.Logger, label string, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
		err := op(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt >= MaxRetries {
			break
		}
		log.WithError(err).WithField("attempt", attempt+1).Warnf("%s failed, retrying", label)
		select {
		case <-time.After(RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
