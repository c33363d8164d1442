// Package retry implements a bounded-attempt retry helper for operations
// against flaky external services (the broker, the database). Only errors
// the caller marks retryable are retried; anything else propagates
// immediately.
package retry

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultAttempts and DefaultInterval match the broker/DB gateway defaults
// from the original configuration (db.try/db.try_interval,
// broker.try/broker.try_interval).
const (
	DefaultAttempts = 30
	DefaultInterval = time.Second
)

// Do runs op. If op fails with an error isRetryable accepts, Do sleeps
// interval and retries, up to attempts total tries. If attempts are
// exhausted, onFailure (if non-nil) is invoked before the last error is
// returned. A non-retryable error returns immediately without invoking
// onFailure.
func Do(name string, attempts int, interval time.Duration, isRetryable func(error) bool, onFailure func(), op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		logrus.WithError(lastErr).Warnf("%s: attempt %d/%d failed, retrying in %s", name, attempt, attempts, interval)
		if attempt < attempts {
			time.Sleep(interval)
		}
	}
	if onFailure != nil {
		onFailure()
	}
	return fmt.Errorf("%s: exhausted %d attempts: %w", name, attempts, lastErr)
}
