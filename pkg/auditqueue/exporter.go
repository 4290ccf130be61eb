package auditqueue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/cellwarden/cellwarden/pkg/audit"
)

// Exporter delivers a batch of events to a downstream sink (a SIEM
// endpoint, typically) keyed by an idempotency key so repeated delivery
// of the same batch is safe.
type Exporter interface {
	Export(ctx context.Context, idempotencyKey string, events []audit.Event) error
}

// ExporterFunc adapts a plain function to Exporter.
type ExporterFunc func(ctx context.Context, idempotencyKey string, events []audit.Event) error

func (f ExporterFunc) Export(ctx context.Context, idempotencyKey string, events []audit.Event) error {
	return f(ctx, idempotencyKey, events)
}

// ExportError reports an Exporter failure annotated with whether it is
// worth retrying. Transports that can distinguish permanent failures
// (a 4xx rejection) from transient ones (5xx, timeouts, rate limiting)
// should return one so withRetry can stop immediately instead of
// burning through MaxAttempts on a request that will never succeed.
type ExportError struct {
	Status    int
	Retriable bool
	Err       error
}

func (e *ExportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("status %d: %v", e.Status, e.Err)
	}
	return e.Err.Error()
}

func (e *ExportError) Unwrap() error { return e.Err }

// RetriableStatus reports whether an HTTP status code is worth
// retrying: server errors, request timeouts, and rate limiting are:
// everything else is a permanent rejection of the request as sent.
func RetriableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return status >= 500
	}
}

// RetryPolicy controls the exponential backoff withRetry applies around
// an Exporter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy backs off from 500ms up to 30s over 5 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
}

// withRetry wraps an Exporter so transient failures are retried with
// exponential backoff before the batch is left for the next Flush.
func withRetry(exp Exporter, policy RetryPolicy) Exporter {
	return ExporterFunc(func(ctx context.Context, key string, events []audit.Event) error {
		var lastErr error
		for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
			if attempt > 0 {
				delay := backoffDelay(policy, attempt)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
			err := exp.Export(ctx, key, events)
			if err == nil {
				return nil
			}
			lastErr = err
			var exportErr *ExportError
			if errors.As(err, &exportErr) && !exportErr.Retriable {
				return err
			}
		}
		return fmt.Errorf("auditqueue: export failed after %d attempts: %w", policy.MaxAttempts, lastErr)
	})
}

func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	raw := float64(policy.BaseDelay) * math.Pow(2, float64(attempt-1))
	jittered := raw * (0.5 + rand.Float64())
	if time.Duration(jittered) > policy.MaxDelay {
		return policy.MaxDelay
	}
	return time.Duration(jittered)
}
