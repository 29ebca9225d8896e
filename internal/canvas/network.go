package canvas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// defNumAttempts is the default number of retry attempts.
const defNumAttempts = 3

// maxAllowedWaitTime is the maximum time to wait before retrying a
// transient error.  The wait time depends on the current attempt number
// and is calculated as (attempt+2)^3 seconds, capped at this value.
var maxAllowedWaitTime = 5 * time.Minute

// waitFn returns the amount of time to wait before retrying depending
// on the current attempt.  This variable exists to reduce the test time.
var waitFn = cubicWait

// ErrRetryFailed is returned if the number of retry attempts was
// exhausted and the callback was unable to complete without errors.
var ErrRetryFailed = errors.New("callback was unable to complete without errors within the allowed number of retries")

// ErrNotFound is returned when the requested Canvas resource does not
// exist or is not visible to the current token.
var ErrNotFound = errors.New("resource not found")

// StatusCodeError is returned when the Canvas API responds with a
// non-200 status code.
type StatusCodeError struct {
	Code       int
	Status     string
	RetryAfter time.Duration // from the Retry-After header, 0 if absent
}

func (e StatusCodeError) Error() string {
	return fmt.Sprintf("canvas server error: %s (%d)", e.Status, e.Code)
}

// withRetry runs the callback fn.  If fn returns a recoverable
// StatusCodeError, it delays and calls it again, up to maxAttempts
// times.  Any other error is returned immediately.
func withRetry(ctx context.Context, lim *rate.Limiter, maxAttempts int, fn func() error) error {
	if maxAttempts == 0 {
		maxAttempts = defNumAttempts
	}
	var ok bool
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		cbErr := fn()
		if cbErr == nil {
			ok = true
			break
		}

		var sce StatusCodeError
		if errors.As(cbErr, &sce) && isRecoverable(sce.Code) {
			delay := sce.RetryAfter
			if delay == 0 {
				delay = waitFn(attempt)
			}
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		return fmt.Errorf("callback error: %w", cbErr)
	}
	if !ok {
		return ErrRetryFailed
	}
	return nil
}

// isRecoverable returns true if the status code is a recoverable error.
func isRecoverable(statusCode int) bool {
	return (statusCode >= http.StatusInternalServerError && statusCode <= 599 && statusCode != http.StatusNotImplemented) ||
		statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests
}

// cubicWait is the wait time function.  Time is calculated as (x+2)^3
// seconds, where x is the current attempt number, which ensures we
// sleep at least 8 seconds on the first retry.
func cubicWait(attempt int) time.Duration {
	x := attempt + 2
	delay := time.Duration(x*x*x) * time.Second
	if delay > maxAllowedWaitTime {
		return maxAllowedWaitTime
	}
	return delay
}
