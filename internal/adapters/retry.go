package adapters

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/marcusai/insights-backend/pkg/config"
	pkgerrors "github.com/marcusai/insights-backend/pkg/errors"
)

// RetryPolicy bounds the adapter-level retry loop for transient failures.
// AUTH_EXPIRED and MISSING_CREDENTIALS are never retried: they need a human.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// PolicyFromConfig derives a retry policy from the shared adapter settings.
func PolicyFromConfig(cfg config.AdapterConfig) RetryPolicy {
	p := RetryPolicy{
		MaxRetries: uint64(max(cfg.MaxRetries, 0)),
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// WithRetry runs fn, retrying with exponential backoff while the error's
// class is transient. Non-retryable classes stop the loop immediately; the
// last error is returned once attempts are exhausted or the context ends.
func WithRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if pkgerrors.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseDelay
	bo.MaxInterval = policy.MaxDelay

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, policy.MaxRetries), ctx))
}
