package pipeline

import (
	"context"
	"time"

	"foley/internal/resilience"
	"foley/internal/runstore"
	"foley/internal/services/gemini"
	"foley/internal/services/llm"
	"foley/internal/services/stableaudio"
)

// Analyzer detects objects in a video.
type Analyzer interface {
	Analyze(ctx context.Context, videoPath string) (gemini.Analysis, error)
}

// RelevanceFilter picks the labels that produce sound.
type RelevanceFilter interface {
	RelevantLabels(ctx context.Context, labels []string) ([]string, error)
}

// PromptWriter describes the sound a label makes.
type PromptWriter interface {
	AudioPrompt(ctx context.Context, req llm.PromptRequest) (string, error)
}

// Synthesizer renders a prompt into an audio file.
type Synthesizer interface {
	Generate(ctx context.Context, req stableaudio.Request) (stableaudio.Clip, error)
}

// Prober reads the playable duration of a video.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Binder attaches a composed track to a video.
type Binder interface {
	Bind(ctx context.Context, video, audio, output string, duration float64) error
}

// Store persists run snapshots.
type Store interface {
	Save(ctx context.Context, run runstore.Run) error
}

// Metrics receives call, stage and label observations.
type Metrics interface {
	resilience.Observer
	ObserveStage(stage string, elapsed time.Duration)
	ObserveLabel(status string)
	ObserveRun(result string)
}
