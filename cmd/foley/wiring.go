package main

import (
	"log/slog"
	"path/filepath"
	"time"

	"foley/internal/compose"
	"foley/internal/config"
	"foley/internal/logging"
	"foley/internal/media/ffprobe"
	"foley/internal/metrics"
	"foley/internal/pipeline"
	"foley/internal/resilience"
	"foley/internal/services/gemini"
	"foley/internal/services/llm"
	"foley/internal/services/stableaudio"
)

// bindBackoff bounds the wait between ffmpeg retries; bind failures are
// local I/O and either clear quickly or not at all.
const (
	bindInitialDelay = 500 * time.Millisecond
	bindMaxDelay     = 10 * time.Second
)

// wiring builds the concrete service clients from configuration.
type wiring struct {
	cfg       *config.Config
	logger    *slog.Logger
	collector *metrics.Collector

	analyzer *gemini.Client
	llm      *llm.Client
	synth    *stableaudio.Client
	prober   *ffprobe.Prober
	binder   *compose.Binder
}

func newWiring(cfg *config.Config, logger *slog.Logger) *wiring {
	w := &wiring{cfg: cfg, logger: logger}
	if cfg.Metrics.Enabled {
		w.collector = metrics.NewCollector(logger)
	}

	w.analyzer = gemini.NewClient(gemini.Config{
		APIKey:            cfg.Analyzer.APIKey,
		BaseURL:           cfg.Analyzer.BaseURL,
		Model:             cfg.Analyzer.Model,
		Instructions:      cfg.Analyzer.Instructions,
		Timeout:           cfg.AnalyzerTimeout(),
		ActivationTimeout: time.Duration(cfg.Analyzer.ActivationTimeoutSeconds) * time.Second,
		PollInterval:      time.Duration(cfg.Analyzer.PollIntervalSeconds) * time.Second,
	}, gemini.WithLogger(logger))
	w.llm = llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	w.synth = stableaudio.NewClient(stableaudio.Config{
		APIKey:         cfg.Synthesis.APIKey,
		BaseURL:        cfg.Synthesis.BaseURL,
		NegativePrompt: cfg.Synthesis.NegativePrompt,
		InferenceSteps: cfg.Synthesis.InferenceSteps,
		Seed:           int64(cfg.Synthesis.Seed),
		TimeoutSeconds: cfg.Synthesis.TimeoutSeconds,
	})
	w.prober = ffprobe.New(cfg.Composer.FFprobeBinary)

	bindOpts := []resilience.Option{
		resilience.WithBackoff(bindInitialDelay, bindMaxDelay, cfg.Retry.Base),
		resilience.WithMaxAttempts(cfg.Composer.BindAttempts),
		resilience.WithLogger(logger),
	}
	if w.collector != nil {
		bindOpts = append(bindOpts, resilience.WithObserver(w.collector))
	}
	w.binder = compose.NewBinder(cfg.Composer.FFmpegBinary,
		resilience.NewPolicy("bind", resilience.ClassifyServiceError, bindOpts...), logger)
	return w
}

func (w *wiring) orchestrator(store pipeline.Store, runID string) (*pipeline.Orchestrator, error) {
	opts := []pipeline.Option{
		pipeline.WithLogger(w.logger),
		pipeline.WithStore(store),
	}
	if runID != "" {
		opts = append(opts, pipeline.WithIDGenerator(func() string { return runID }))
	}
	if w.collector != nil {
		opts = append(opts, pipeline.WithMetrics(w.collector))
	}
	return pipeline.New(pipeline.Services{
		Analyzer:    w.analyzer,
		Relevance:   w.llm,
		Prompts:     w.llm,
		Synthesizer: w.synth,
		Prober:      w.prober,
		Binder:      w.binder,
		Mixer:       compose.NewMixer(w.logger),
	}, pipeline.SettingsFromConfig(w.cfg), opts...)
}

// flushMetrics writes the textfile export when metrics are enabled.
func (w *wiring) flushMetrics() {
	if w.collector == nil || w.cfg.Metrics.TextfilePath == "" {
		return
	}
	if err := w.collector.WriteTextfile(w.cfg.Metrics.TextfilePath); err != nil {
		logging.WarnWithContext(w.logger, "metrics export failed", "metrics_export_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metrics.textfile_path"),
			logging.String(logging.FieldImpact, "this run is missing from the metrics file"),
		)
	}
}

func runLogPath(cfg *config.Config, runID string) string {
	return filepath.Join(cfg.RunDir(runID), "run.log")
}
