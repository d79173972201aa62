// Package retry runs store operations with a bounded number of attempts and
// exponentially growing delays between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spigell/hr-interview-bot/internal/metrics"
)

const maxInterval = time.Hour

// Policy describes the retry schedule: at most Tries attempts, the k-th wait
// lasting Delay*Backoff^(k-1).
type Policy struct {
	Tries   int           `mapstructure:"tries" json:"tries" validate:"gte=1"`
	Delay   time.Duration `mapstructure:"delay" json:"delay" validate:"gte=0"`
	Backoff float64       `mapstructure:"backoff" json:"backoff" validate:"gte=1"`
}

// DefaultPolicy returns three attempts with 2s and 4s waits.
func DefaultPolicy() Policy {
	return Policy{Tries: 3, Delay: 2 * time.Second, Backoff: 2}
}

// Delays returns the waits the policy produces between attempts.
func (p Policy) Delays() []time.Duration {
	if p.Tries <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, p.Tries-1)
	current := float64(p.Delay)
	for i := 0; i < p.Tries-1; i++ {
		delays = append(delays, time.Duration(current))
		current *= p.Backoff
	}
	return delays
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Always treats every error as transient.
func Always(error) bool { return true }

type Retrier struct {
	policy    Policy
	transient Classifier
	logger    *zap.Logger
	timer     backoff.Timer
}

type Option func(*Retrier)

// WithClassifier sets the function deciding which errors are retried.
func WithClassifier(c Classifier) Option {
	return func(r *Retrier) {
		if c != nil {
			r.transient = c
		}
	}
}

// WithLogger sets the logger used to report retried attempts.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retrier) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTimer replaces the timer used to wait between attempts.
func WithTimer(t backoff.Timer) Option {
	return func(r *Retrier) {
		r.timer = t
	}
}

func New(policy Policy, opts ...Option) *Retrier {
	if policy.Tries < 1 {
		policy.Tries = 1
	}
	if policy.Backoff < 1 {
		policy.Backoff = 1
	}

	r := &Retrier{
		policy:    policy,
		transient: Always,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Policy returns the schedule the retrier runs with.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do runs op until it succeeds, fails with a non-transient error, the context
// is done, or the attempts are exhausted. The last error is returned.
func (r *Retrier) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !r.transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		metrics.StoreRetriesTotal.WithLabelValues(name).Inc()
		r.logger.Warn("store operation failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("tries", r.policy.Tries),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotifyWithTimer(operation, r.schedule(ctx), notify, r.timer)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}

	if attempt > 1 {
		return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (r *Retrier) schedule(ctx context.Context) backoff.BackOffContext {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.policy.Delay
	expo.Multiplier = r.policy.Backoff
	expo.RandomizationFactor = 0
	expo.MaxInterval = maxInterval
	expo.MaxElapsedTime = 0
	expo.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(r.policy.Tries-1)), ctx)
}
