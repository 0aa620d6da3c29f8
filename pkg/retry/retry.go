// Package retry provides bounded retry with a fixed inter-attempt delay.
//
// The delay is deliberately constant rather than exponential: a human
// watching the logs should be able to predict when the next attempt fires.
package retry

import (
	"time"

	"planloop/pkg/logx"
)

// DefaultDelay is the pause between failed attempts.
const DefaultDelay = 2 * time.Second

// Op is a retryable operation. The final flag is true on the last allowed
// attempt so callers can switch behavior (e.g. drop non-interactive mode).
type Op func(final bool) error

// Policy controls how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts (not re-attempts).
	MaxAttempts int

	// Delay between failed attempts. Zero means DefaultDelay.
	Delay time.Duration

	// OnAttempt, if set, is called before every attempt with the 1-based
	// attempt number. Used by the orchestrator to keep invocation counters
	// in step with what actually ran.
	OnAttempt func(attempt int)

	// RetryIf, if set, decides whether a failure is worth another attempt.
	// Returning false stops immediately with that error.
	RetryIf func(err error) bool

	// Logger for attempt diagnostics. Nil disables logging.
	Logger *logx.Logger
}

// sleep is a seam for tests.
var sleep = time.Sleep

// Do runs op up to MaxAttempts times. It returns nil as soon as an attempt
// succeeds, otherwise the error from the last attempt made.
func (p Policy) Do(op Op) error {
	delay := p.Delay
	if delay == 0 {
		delay = DefaultDelay
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if p.OnAttempt != nil {
			p.OnAttempt(attempt)
		}

		final := attempt == p.MaxAttempts
		lastErr = op(final)
		if lastErr == nil {
			return nil
		}

		if p.RetryIf != nil && !p.RetryIf(lastErr) {
			return lastErr
		}

		if !final {
			if p.Logger != nil {
				p.Logger.Warn("Attempt %d/%d failed: %v. Retrying in %s...", attempt, p.MaxAttempts, lastErr, delay)
			}
			sleep(delay)
		} else if p.Logger != nil {
			p.Logger.Error("All %d attempts exhausted. Last error: %v", p.MaxAttempts, lastErr)
		}
	}
	return lastErr
}
