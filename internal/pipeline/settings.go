package pipeline

import (
	"path/filepath"
	"time"

	"foley/internal/config"
	"foley/internal/timeline"
)

// Settings holds the tunables the orchestrator reads from configuration.
type Settings struct {
	WorkDir           string
	OutputDir         string
	AudioFilename     string
	VideoFilename     string
	SampleRate        int
	SamplesPerPrompt  int
	Timeline          timeline.Options
	Concurrency       int
	RequestsPerSecond float64
	Burst             int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryBase         float64
}

// SettingsFromConfig maps the loaded configuration onto Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		WorkDir:          cfg.Paths.WorkDir,
		OutputDir:        cfg.Paths.OutputDir,
		AudioFilename:    cfg.Composer.AudioFilename,
		VideoFilename:    cfg.Composer.VideoFilename,
		SampleRate:       cfg.Composer.SampleRate,
		SamplesPerPrompt: cfg.Synthesis.SamplesPerPrompt,
		Timeline: timeline.Options{
			MinGap:      cfg.Timeline.MinGapSeconds,
			MinDuration: cfg.Timeline.MinDurationSeconds,
		},
		Concurrency:       cfg.Workflow.Concurrency,
		RequestsPerSecond: cfg.Workflow.RequestsPerSecond,
		Burst:             cfg.Workflow.Burst,
		RetryInitialDelay: cfg.RetryInitialDelay(),
		RetryMaxDelay:     cfg.RetryMaxDelay(),
		RetryBase:         cfg.Retry.Base,
	}
}

func (s Settings) withDefaults() Settings {
	if s.AudioFilename == "" {
		s.AudioFilename = "final_output.wav"
	}
	if s.VideoFilename == "" {
		s.VideoFilename = "final_video_with_audio.mp4"
	}
	if s.SampleRate <= 0 {
		s.SampleRate = 44100
	}
	if s.SamplesPerPrompt <= 0 {
		s.SamplesPerPrompt = 1
	}
	if s.Concurrency <= 0 {
		s.Concurrency = 1
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}
	return s
}

// RunDir is the workspace of one run.
func (s Settings) RunDir(runID string) string {
	return filepath.Join(s.WorkDir, "runs", runID)
}

// DefaultOutput is where Bind writes when no output path is given.
func (s Settings) DefaultOutput(runID string) string {
	return filepath.Join(s.OutputDir, runID, s.VideoFilename)
}
