package batch

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// Default retry policy values.
const (
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultJitterFactor = 0.1
)

// RetryPolicy controls how failed attempts are retried.
// It is immutable once built and safe to share across concurrent runs.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first failure.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps every computed delay, jitter included.
	MaxDelay time.Duration

	// ExponentialBackoff doubles the delay on every attempt when true.
	ExponentialBackoff bool

	// JitterFactor is the fraction (0.0-1.0) of the computed delay added as random noise.
	JitterFactor float64
}

// DefaultRetryPolicy returns the policy used when nothing else is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         DefaultMaxRetries,
		BaseDelay:          DefaultBaseDelay,
		MaxDelay:           DefaultMaxDelay,
		ExponentialBackoff: true,
		JitterFactor:       DefaultJitterFactor,
	}
}

// AggressiveRetryPolicy retries more often, starting sooner, for flaky orgs.
func AggressiveRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         5,
		BaseDelay:          500 * time.Millisecond,
		MaxDelay:           60 * time.Second,
		ExponentialBackoff: true,
		JitterFactor:       0.2,
	}
}

// ConservativeRetryPolicy retries rarely with a constant delay.
func ConservativeRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:         2,
		BaseDelay:          2 * time.Second,
		MaxDelay:           15 * time.Second,
		ExponentialBackoff: false,
		JitterFactor:       0.05,
	}
}

// RetryPolicyByName resolves a named preset ("default", "aggressive", "conservative").
func RetryPolicyByName(name string) (RetryPolicy, error) {
	switch name {
	case "", "default":
		return DefaultRetryPolicy(), nil
	case "aggressive":
		return AggressiveRetryPolicy(), nil
	case "conservative":
		return ConservativeRetryPolicy(), nil
	default:
		return RetryPolicy{}, fmt.Errorf("%w: unknown retry profile %q", ErrInvalidConfig, name)
	}
}

// Validate checks the policy invariants.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must be >= 0, got %d", ErrInvalidConfig, p.MaxRetries)
	case p.BaseDelay <= 0:
		return fmt.Errorf("%w: base delay must be > 0, got %s", ErrInvalidConfig, p.BaseDelay)
	case p.MaxDelay < p.BaseDelay:
		return fmt.Errorf("%w: max delay %s is below base delay %s", ErrInvalidConfig, p.MaxDelay, p.BaseDelay)
	case p.JitterFactor < 0 || p.JitterFactor > 1:
		return fmt.Errorf("%w: jitter factor must be within [0, 1], got %g", ErrInvalidConfig, p.JitterFactor)
	}
	return nil
}

// Sleeper blocks for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper backed by a timer.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// Retrier executes attempts according to a RetryPolicy.
type Retrier struct {
	policy RetryPolicy
	sleep  Sleeper
	jitter func() float64
	logger zerolog.Logger
}

// NewRetrier creates a Retrier. A nil sleeper or jitter source selects the defaults.
func NewRetrier(policy RetryPolicy, logger zerolog.Logger, sleep Sleeper, jitter func() float64) *Retrier {
	if sleep == nil {
		sleep = SleepContext
	}
	if jitter == nil {
		jitter = rand.Float64
	}
	return &Retrier{policy: policy, sleep: sleep, jitter: jitter, logger: logger}
}

// Policy returns the retry policy in use.
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// ComputeDelay returns the backoff before retry number attempt (zero-based).
func (r *Retrier) ComputeDelay(attempt int) time.Duration {
	delay := float64(r.policy.BaseDelay)
	if r.policy.ExponentialBackoff {
		delay *= math.Pow(2, float64(attempt))
	}

	if r.policy.JitterFactor > 0 {
		delay += r.jitter() * r.policy.JitterFactor * delay
	}

	if maxDelay := float64(r.policy.MaxDelay); delay > maxDelay {
		delay = maxDelay
	}
	return time.Duration(delay)
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the retry
// budget is spent. At most MaxRetries+1 attempts are made.
//
// A failure on the final permitted attempt yields a *RetryExhaustedError even if
// the error itself is not retryable. A non-retryable failure before that is
// returned unchanged.
func (r *Retrier) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if attempt >= r.policy.MaxRetries {
			exhausted := &RetryExhaustedError{Retries: r.policy.MaxRetries, Err: err}
			r.logger.Error().
				Str("context", label).
				Int("attempts", attempt+1).
				Err(err).
				Msg(exhausted.Error())
			return exhausted
		}

		if ctx.Err() != nil {
			return err
		}

		if !ShouldRetry(err) {
			r.logger.Error().
				Str("context", label).
				Int("attempt", attempt+1).
				Err(err).
				Msg("non-retryable error")
			return err
		}

		delay := r.ComputeDelay(attempt)
		r.logger.Warn().
			Str("context", label).
			Int("attempt", attempt+1).
			Int("max_attempts", r.policy.MaxRetries+1).
			Dur("delay", delay).
			Err(err).
			Msgf("%s failed (attempt %d/%d), retrying in %s", label, attempt+1, r.policy.MaxRetries+1, delay)

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%s: retry interrupted: %w", label, sleepErr)
		}
	}
}
