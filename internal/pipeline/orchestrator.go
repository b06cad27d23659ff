package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"foley/internal/compose"
	"foley/internal/logging"
	"foley/internal/resilience"
	"foley/internal/runstore"
	"foley/internal/services"
)

// Services bundles the collaborators the orchestrator drives.
type Services struct {
	Analyzer    Analyzer
	Relevance   RelevanceFilter
	Prompts     PromptWriter
	Synthesizer Synthesizer
	Prober      Prober
	Binder      Binder
	Mixer       *compose.Mixer
}

// Orchestrator runs and re-enters pipeline runs.
type Orchestrator struct {
	svc      Services
	settings Settings
	logger   *slog.Logger
	store    Store
	metrics  Metrics
	sleep    resilience.Sleeper
	newID    func() string

	analyzePolicy    resilience.Policy
	relevancePolicy  resilience.Policy
	promptPolicy     resilience.Policy
	synthesizePolicy resilience.Policy

	analyzeLimiter *rate.Limiter
	llmLimiter     *rate.Limiter
	synthLimiter   *rate.Limiter
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStore persists a snapshot after every stage.
func WithStore(store Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithMetrics records call outcomes and stage durations.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSleeper replaces backoff waits; tests use it to avoid real sleeps.
func WithSleeper(s resilience.Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New builds an orchestrator. Every service in svc must be non-nil.
func New(svc Services, settings Settings, opts ...Option) (*Orchestrator, error) {
	switch {
	case svc.Analyzer == nil, svc.Relevance == nil, svc.Prompts == nil,
		svc.Synthesizer == nil, svc.Prober == nil, svc.Binder == nil:
		return nil, errors.New("pipeline: all services are required")
	}
	o := &Orchestrator{
		svc:      svc,
		settings: settings.withDefaults(),
		logger:   logging.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "pipeline")
	if o.svc.Mixer == nil {
		o.svc.Mixer = compose.NewMixer(o.logger)
	}

	o.analyzePolicy = o.policy("analyze")
	o.relevancePolicy = o.policy("relevance")
	o.promptPolicy = o.policy("prompt")
	o.synthesizePolicy = o.policy("synthesize")

	o.analyzeLimiter = o.limiter()
	o.llmLimiter = o.limiter()
	o.synthLimiter = o.limiter()
	return o, nil
}

func (o *Orchestrator) policy(name string) resilience.Policy {
	opts := []resilience.Option{
		resilience.WithBackoff(o.settings.RetryInitialDelay, o.settings.RetryMaxDelay, o.settings.RetryBase),
		resilience.WithLogger(o.logger),
		resilience.WithSleeper(o.sleep),
	}
	if o.metrics != nil {
		opts = append(opts, resilience.WithObserver(o.metrics))
	}
	return resilience.NewPolicy(name, resilience.ClassifyServiceError, opts...)
}

func (o *Orchestrator) limiter() *rate.Limiter {
	limit := rate.Inf
	if o.settings.RequestsPerSecond > 0 {
		limit = rate.Limit(o.settings.RequestsPerSecond)
	}
	return rate.NewLimiter(limit, o.settings.Burst)
}

// Settings returns the effective settings.
func (o *Orchestrator) Settings() Settings {
	return o.settings
}

// callService runs op under policy. Each attempt waits for a limiter token
// on ctx, so an abort stops dispatch, then runs detached from ctx's
// cancellation so an in-flight request finishes or times out on its own.
func callService[T any](ctx context.Context, limiter *rate.Limiter, policy resilience.Policy, op func(context.Context) (T, error)) (resilience.Result[T], error) {
	return resilience.Do(ctx, policy, func(attemptCtx context.Context) (T, error) {
		if err := limiter.Wait(attemptCtx); err != nil {
			var zero T
			if ctxErr := attemptCtx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			return zero, services.Wrap(services.ErrConfiguration, policy.Name, "rate limit", "", err)
		}
		return op(context.WithoutCancel(attemptCtx))
	})
}

// Execute performs a full run over videoPath. An empty output binds to the
// default location. The returned run is non-nil whenever the run started,
// including on failure.
func (o *Orchestrator) Execute(ctx context.Context, videoPath, output string) (*Run, error) {
	run := NewRun(o.newID(), videoPath)
	ctx = services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("run started",
		logging.String("video", videoPath),
		logging.String(logging.FieldEventType, "run_start"),
	)
	o.save(ctx, run)

	stages := []struct {
		name string
		fn   func(context.Context, *Run) error
	}{
		{StageAnalyze, o.analyze},
		{StageAggregate, o.aggregate},
		{StageRelevance, o.filterRelevance},
		{StagePrompt, o.writePrompts},
		{StageSynthesize, o.synthesizeAll},
		{StageCompose, func(ctx context.Context, run *Run) error { return o.compose(ctx, run, 0) }},
		{StageBind, func(ctx context.Context, run *Run) error { return o.bind(ctx, run, output) }},
	}
	for _, stage := range stages {
		if err := o.runStage(ctx, run, stage.name, stage.fn); err != nil {
			o.observeRun(run)
			return run, err
		}
	}

	_, video, _ := run.Outputs()
	logger.Info("run completed",
		logging.String("output", video),
		logging.Int("labels", len(run.Labels())),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	o.observeRun(run)
	return run, nil
}

func (o *Orchestrator) runStage(ctx context.Context, run *Run, name string, fn func(context.Context, *Run) error) error {
	ctx = services.WithStage(services.WithRunID(ctx, run.ID), name)
	logger := logging.WithContext(ctx, o.logger)
	run.enterStage(name)
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))

	started := time.Now()
	err := fn(ctx, run)
	elapsed := time.Since(started)
	if o.metrics != nil {
		o.metrics.ObserveStage(name, elapsed)
	}

	if err != nil {
		status := runstore.StatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = runstore.StatusCanceled
		}
		run.setFailed(status, err)
		logging.ErrorWithContext(logger, "stage failed", "stage_failed",
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, stageHint(name, err)),
		)
		o.save(ctx, run)
		return &StageError{Stage: name, Err: err}
	}

	run.finishStage(name, elapsed)
	logger.Info("stage completed",
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "stage_complete"),
	)
	o.save(ctx, run)
	return nil
}

func stageHint(stage string, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "run was aborted"
	case services.IsContractViolation(err):
		return "malformed input reached the " + stage + " stage"
	case errors.Is(err, services.ErrConfiguration):
		return "check the configuration and API keys"
	case errors.Is(err, services.ErrUnavailable), errors.Is(err, services.ErrValidation):
		return "the " + stage + " service is unavailable or returned unusable output"
	case errors.Is(err, services.ErrExternalTool):
		return "check that ffmpeg and ffprobe are installed"
	default:
		return "see the run log for details"
	}
}

// save persists run without letting an aborted ctx lose the snapshot.
func (o *Orchestrator) save(ctx context.Context, run *Run) {
	if o.store == nil {
		return
	}
	rec, err := run.Record()
	if err == nil {
		err = o.store.Save(context.WithoutCancel(ctx), rec)
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "run snapshot not saved", "run_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state database path and permissions"),
			logging.String(logging.FieldImpact, "correction commands cannot see the latest state"),
		)
	}
}

func (o *Orchestrator) observeRun(run *Run) {
	if o.metrics == nil {
		return
	}
	status, _, _ := run.Status()
	o.metrics.ObserveRun(string(status))
	for _, l := range run.labelStates() {
		o.metrics.ObserveLabel(string(l.View().Status))
	}
}

// forEachLabel runs fn for every label on the bounded pool. The first error
// stops dispatch of the remaining labels.
func (o *Orchestrator) forEachLabel(ctx context.Context, labels []*LabelState, fn func(context.Context, *LabelState) error) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.settings.Concurrency)
	for _, l := range labels {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			return fn(services.WithLabel(groupCtx, l.Name()), l)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func describeSkip(reason error) string {
	if reason == nil {
		return "skipped"
	}
	return fmt.Sprintf("skipped: %v", reason)
}
