// Package retry wraps remote operations with bounded exponential backoff.
//
// Every call to S3, DynamoDB, Rekognition, Step Functions, RabbitMQ and the
// public media APIs goes through an Invoker. The sleep before attempt n+1 is
// base * 2^(n-1) plus a uniform jitter in [0, Jitter). After MaxAttempts the
// last error is returned unchanged so callers can still match it with
// errors.As.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/metrics"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
	"go.uber.org/zap"
)

// Policy configures an Invoker.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      time.Duration

	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable means IsTransient.
	Retryable func(error) bool
}

// DefaultPolicy returns 3 attempts with a 500ms base and 250ms jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		Jitter:      250 * time.Millisecond,
	}
}

// FromConfig builds a policy from the retry section of the configuration.
func FromConfig(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseBackoff > 0 {
		p.BaseBackoff = cfg.BaseBackoff
	}
	if cfg.Jitter >= 0 {
		p.Jitter = cfg.Jitter
	}
	return p
}

// Backoff returns the delay after the given failed attempt (1-based).
// frac is the jitter fraction in [0, 1).
func (p Policy) Backoff(attempt int, frac float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseBackoff << (attempt - 1)
	if p.Jitter > 0 {
		d += time.Duration(frac * float64(p.Jitter))
	}
	return d
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

// Option customises an Invoker.
type Option func(*Invoker)

// WithSleep replaces the context-aware sleep. Tests use it to record delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(i *Invoker) {
		i.sleep = sleep
	}
}

// WithRand replaces the jitter source. The function must return values in [0, 1).
func WithRand(r func() float64) Option {
	return func(i *Invoker) {
		i.rand = r
	}
}

// Invoker runs operations under a retry policy. It holds no per-call state
// and is safe for concurrent use.
type Invoker struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
	rand   func() float64
}

// NewInvoker creates an invoker for the policy.
func NewInvoker(policy Policy, opts ...Option) *Invoker {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	inv := &Invoker{
		policy: policy,
		sleep:  sleepContext,
		rand:   rand.Float64,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Policy returns the invoker's policy.
func (i *Invoker) Policy() Policy {
	return i.policy
}

// Run invokes fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent.
func (i *Invoker) Run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, i, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is Run for operations that return a value.
func Do[T any](ctx context.Context, inv *Invoker, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		start := time.Now()
		result, err := fn(ctx)
		if err == nil {
			metrics.RemoteCallDuration.WithLabelValues(operation, "success").Observe(time.Since(start).Seconds())
			if attempt > 1 {
				logger.Log.Info("Operation succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempt", attempt),
				)
			}
			return result, nil
		}
		metrics.RemoteCallDuration.WithLabelValues(operation, "error").Observe(time.Since(start).Seconds())

		if !inv.policy.retryable(err) {
			return zero, err
		}

		if attempt >= inv.policy.MaxAttempts {
			metrics.RetryExhaustedTotal.WithLabelValues(operation).Inc()
			logger.Log.Error("Exceeded max retries on remote operation",
				zap.String("operation", operation),
				zap.Int("max_attempts", inv.policy.MaxAttempts),
				zap.Error(err),
			)
			return zero, err
		}

		delay := inv.policy.Backoff(attempt, inv.rand())
		metrics.RetriesTotal.WithLabelValues(operation).Inc()
		logger.Log.Warn("Retrying remote operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", inv.policy.MaxAttempts),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)

		if sleepErr := inv.sleep(ctx, delay); sleepErr != nil {
			return zero, errors.Join(err, fmt.Errorf("%s: retry aborted: %w", operation, sleepErr))
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
