package resilience

import (
	"context"
	"fmt"
	"time"

	"foley/internal/logging"
)

// Result carries the value of a successful call. OK is false when the call
// was skipped; Reason then holds the error that caused it.
type Result[T any] struct {
	Value    T
	OK       bool
	Attempts int
	Reason   error
}

// Do runs op under policy p.
//
// Success returns the value. A Fatal classification returns the error
// unchanged. A Skip classification returns an empty Result and a nil error.
// A Retryable classification multiplies the delay by p.Base and, unless the
// new delay passes p.MaxDelay or the attempt budget is spent, waits and
// retries; otherwise it is demoted to Skip. The only other error Do returns
// is ctx's, when the caller aborts during a wait.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (Result[T], error) {
	if p.Classify == nil {
		p.Classify = ClassifyServiceError
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Base <= 1 {
		p.Base = DefaultBase
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	logger := logging.WithContext(ctx, p.Logger).With(logging.String("policy", p.Name))

	started := time.Now()
	delay := p.InitialDelay
	attempts := 0
	finish := func(outcome Outcome) {
		if p.Observer != nil {
			p.Observer.ObserveCall(p.Name, outcome, attempts, time.Since(started))
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			finish(OutcomeCanceled)
			return Result[T]{Attempts: attempts}, err
		}

		attempts++
		value, err := op(ctx)
		if err == nil {
			finish(OutcomeSuccess)
			return Result[T]{Value: value, OK: true, Attempts: attempts}, nil
		}

		switch p.Classify(err) {
		case ClassFatal:
			logging.ErrorWithContext(logger, "call failed; service unavailable", "call_fatal",
				logging.Int("attempt", attempts),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check service status and credentials"),
			)
			finish(OutcomeFatal)
			return Result[T]{Attempts: attempts}, err
		case ClassSkip:
			logging.WarnWithContext(logger, "call rejected; skipping item", "call_skipped",
				logging.Int("attempt", attempts),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the request payload"),
				logging.String(logging.FieldImpact, "item dropped from this run"),
			)
			finish(OutcomeSkipped)
			return Result[T]{Attempts: attempts, Reason: err}, nil
		}

		delay = time.Duration(float64(delay) * p.Base)
		if delay > p.MaxDelay || (p.MaxAttempts > 0 && attempts >= p.MaxAttempts) {
			reason := fmt.Errorf("retries exhausted after %d attempts: %w", attempts, err)
			logging.WarnWithContext(logger, "retries exhausted; skipping item", "call_exhausted",
				logging.Int("attempts", attempts),
				logging.Duration("max_delay", p.MaxDelay),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "service kept failing transiently"),
				logging.String(logging.FieldImpact, "item dropped from this run"),
			)
			finish(OutcomeExhausted)
			return Result[T]{Attempts: attempts, Reason: reason}, nil
		}

		logger.Info("call failed; backing off",
			logging.Int("attempt", attempts),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldEventType, "call_retry"),
		)
		if err := p.Sleep(ctx, delay); err != nil {
			finish(OutcomeCanceled)
			return Result[T]{Attempts: attempts}, err
		}
	}
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, p Policy, op func(context.Context) error) (Result[struct{}], error) {
	return Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
}
