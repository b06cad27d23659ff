package resilience

import (
	"context"
	"log/slog"
	"time"
)

const (
	DefaultInitialDelay = 2 * time.Second
	DefaultMaxDelay     = 600 * time.Second
	DefaultBase         = 2.0
)

// Outcome labels how a Do call ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeFatal     Outcome = "fatal"
	OutcomeCanceled  Outcome = "canceled"
)

// Observer receives one notification per Do call.
type Observer interface {
	ObserveCall(policy string, outcome Outcome, attempts int, elapsed time.Duration)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy configures Do. The zero value is not usable; build one with
// NewPolicy.
type Policy struct {
	Name         string
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Base         float64
	// MaxAttempts bounds the number of calls in addition to MaxDelay.
	// Zero means the delay ceiling alone ends retries.
	MaxAttempts int
	Classify    Classifier
	Sleep       Sleeper
	Logger      *slog.Logger
	Observer    Observer
}

// Option customizes a Policy.
type Option func(*Policy)

// WithBackoff overrides the initial delay, ceiling and growth factor.
// Non-positive values keep the defaults.
func WithBackoff(initial, max time.Duration, base float64) Option {
	return func(p *Policy) {
		if initial > 0 {
			p.InitialDelay = initial
		}
		if max > 0 {
			p.MaxDelay = max
		}
		if base > 1 {
			p.Base = base
		}
	}
}

// WithMaxAttempts caps the number of calls.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// WithSleeper replaces the wait between attempts; tests use it to avoid
// real sleeps.
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) {
		if s != nil {
			p.Sleep = s
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		if logger != nil {
			p.Logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(p *Policy) {
		p.Observer = o
	}
}

// NewPolicy builds a policy named after the service it guards. A nil
// classifier falls back to ClassifyServiceError.
func NewPolicy(name string, classify Classifier, opts ...Option) Policy {
	if classify == nil {
		classify = ClassifyServiceError
	}
	p := Policy{
		Name:         name,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Base:         DefaultBase,
		Classify:     classify,
		Sleep:        sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
