package ledger

import (
	"context"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the exponential backoff used for transient failures.
type RetryConfig struct {
	MaxRetries uint64
	Initial    time.Duration
	Max        time.Duration
}

// DefaultRetryConfig returns five retries starting at 50ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 5, Initial: 50 * time.Millisecond, Max: 2 * time.Second}
}

// WithRetry runs fn and retries it while it fails with a transient error
// (lock timeout, serialization failure, stale version). Any other error
// stops immediately and is returned as is.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	if cfg.Initial > 0 {
		b.InitialInterval = cfg.Initial
	}
	if cfg.Max > 0 {
		b.MaxInterval = cfg.Max
	}
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
