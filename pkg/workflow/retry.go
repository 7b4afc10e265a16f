package workflow

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy decides when a run whose current action failed is attempted again.
// The zero value retries forever on the next poll.
type RetryPolicy struct {
	// MaxAttempts marks the run failed once the current action failed this many times. Zero is unlimited.
	MaxAttempts int

	// InitialInterval enables exponential backoff between attempts when positive.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Exhausted reports whether attempts reached MaxAttempts.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// NextAttemptAt returns when the run is due again after its attempts-th failure.
// Without backoff the due time is left unchanged so the next poll picks the run up.
func (p RetryPolicy) NextAttemptAt(dueAt, now time.Time, attempts int) time.Time {
	delay := p.Delay(attempts)
	if delay <= 0 {
		return dueAt
	}

	return now.Add(delay)
}

// Delay is the backoff after the attempts-th failure.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if p.InitialInterval <= 0 || attempts <= 0 {
		return 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}

	b.Reset()

	var delay time.Duration
	for range attempts {
		delay = b.NextBackOff()
	}

	return delay
}
