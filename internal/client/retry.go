package client

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/credseal/internal/sealerr"
	"github.com/wolfeidau/credseal/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
)

// RetryPolicy bounds retries of transport-level failures. Application errors
// (non-200 responses, validation, crypto) are never retried.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// NoRetry runs an operation exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxTries: 1}
}

// Retry runs fn until it succeeds, fails with a non-network error, or the policy
// is exhausted. The last error is returned unchanged.
func Retry[T any](ctx context.Context, policy RetryPolicy, op string, fn func() (T, error)) (T, error) {
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(policy.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			telemetry.GetMetrics().RemoteRetriesTotal.Add(ctx, 1,
				metric.WithAttributes(telemetry.AttrEndpoint.String(op)))
			zerolog.Ctx(ctx).Warn().
				Err(err).
				Str("op", op).
				Dur("next_retry", next).
				Msg("Transport failure, will retry")
		}),
	}
	if policy.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(policy.MaxElapsedTime))
	}

	result, err := backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !sealerr.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
	if err != nil && sealerr.KindOf(err) == sealerr.KindUnknown &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return result, sealerr.Network(op, err)
	}
	return result, err
}
