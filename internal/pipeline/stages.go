package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"foley/internal/compose"
	"foley/internal/logging"
	"foley/internal/services"
	"foley/internal/services/gemini"
	"foley/internal/services/llm"
	"foley/internal/services/stableaudio"
	"foley/internal/timeline"
)

// minClipSeconds is the shortest clip requested from the synthesizer.
const minClipSeconds = 0.1

func (o *Orchestrator) analyze(ctx context.Context, run *Run) error {
	duration, err := o.svc.Prober.Duration(ctx, run.VideoPath)
	if err != nil {
		return err
	}
	res, err := callService(ctx, o.analyzeLimiter, o.analyzePolicy, func(ctx context.Context) (gemini.Analysis, error) {
		return o.svc.Analyzer.Analyze(ctx, run.VideoPath)
	})
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("analysis produced no result: %w", res.Reason)
	}
	run.setAnalysis(duration, res.Value.Summary, res.Value.Detections)
	logging.WithContext(ctx, o.logger).Info("video analyzed",
		logging.Float64("duration_seconds", duration),
		logging.Int("detections", len(res.Value.Detections)),
	)
	return nil
}

func (o *Orchestrator) aggregate(ctx context.Context, run *Run) error {
	t, err := timeline.Aggregate(run.Detections(), o.settings.Timeline)
	if err != nil {
		return err
	}
	run.setTimeline(t)
	logging.WithContext(ctx, o.logger).Info("detections aggregated",
		logging.Strings("labels", t.Labels()),
	)
	return nil
}

func (o *Orchestrator) filterRelevance(ctx context.Context, run *Run) error {
	labels := run.Labels()
	if len(labels) == 0 {
		return nil
	}
	logger := logging.WithContext(ctx, o.logger)
	res, err := callService(ctx, o.llmLimiter, o.relevancePolicy, func(ctx context.Context) ([]string, error) {
		return o.svc.Relevance.RelevantLabels(ctx, labels)
	})
	if err != nil {
		return err
	}

	var relevant timeline.Timeline
	if res.OK {
		relevant = run.Timeline().Filter(res.Value)
	} else {
		logging.WarnWithContext(logger, "relevance filter skipped; treating all labels as silent", "relevance_skipped",
			logging.Error(res.Reason),
			logging.String(logging.FieldErrorHint, "re-run or use regenerate to add sound to a label"),
			logging.String(logging.FieldImpact, "composed track will be silent"),
		)
	}

	var kept []string
	for _, l := range run.labelStates() {
		_, keep := relevant[l.Name()]
		l.markRelevant(keep)
		if keep {
			kept = append(kept, l.Name())
		}
	}
	logger.Info("relevance filtered",
		logging.Int("labels", len(labels)),
		logging.Strings("relevant", kept),
	)
	return nil
}

func (o *Orchestrator) writePrompts(ctx context.Context, run *Run) error {
	summary := run.Summary()
	return o.forEachLabel(ctx, run.relevantStates(LabelPending), func(ctx context.Context, l *LabelState) error {
		view := l.View()
		req := llm.PromptRequest{
			Label:           view.Name,
			DurationSeconds: view.DurationSeconds(),
			Intervals:       len(view.Intervals),
			Summary:         summary,
		}
		res, err := callService(ctx, o.llmLimiter, o.promptPolicy, func(ctx context.Context) (string, error) {
			return o.svc.Prompts.AudioPrompt(ctx, req)
		})
		if err != nil {
			return err
		}
		if !res.OK {
			l.fail(LabelSkipped, res.Reason)
			logging.WithContext(ctx, o.logger).Info("label dropped", logging.String("reason", describeSkip(res.Reason)))
			return nil
		}
		l.setPrompt(res.Value)
		logging.WithContext(ctx, o.logger).Debug("prompt written", logging.String("prompt", res.Value))
		return nil
	})
}

func (o *Orchestrator) synthesizeAll(ctx context.Context, run *Run) error {
	return o.forEachLabel(ctx, run.relevantStates(LabelPrompted), func(ctx context.Context, l *LabelState) error {
		return o.synthesizeLabel(ctx, run, l)
	})
}

// synthesizeLabel requests one clip per interval for every sample index. A
// skipped clip leaves its sample incomplete; the label is dropped when no
// sample is complete.
func (o *Orchestrator) synthesizeLabel(ctx context.Context, run *Run, l *LabelState) error {
	view := l.View()
	dir := filepath.Join(o.settings.RunDir(run.ID), "assets")
	clips, err := o.synthesizeClips(ctx, view.Name, view.Prompt, view.Intervals, dir)
	if err != nil {
		return err
	}
	if status := l.setAssets(clips.assets, clips.lastSkip); status == LabelDropped {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "label dropped from mix", "label_dropped",
			logging.String(logging.FieldErrorHint, "edit the prompt and run regenerate"),
			logging.String(logging.FieldImpact, "label will be silent in the composed track"),
			logging.String("reason", describeSkip(clips.lastSkip)),
		)
	}
	return nil
}

// clipSet is one label's synthesized clips, indexed [sample][interval].
type clipSet struct {
	assets   [][]compose.Asset
	lastSkip error
}

func (c clipSet) anyComplete() bool {
	return slices.ContainsFunc(c.assets, complete)
}

// synthesizeClips writes the clips of one label under dir. Skipped clips
// leave gaps; only fatal errors are returned.
func (o *Orchestrator) synthesizeClips(ctx context.Context, label, prompt string, intervals []timeline.Interval, dir string) (clipSet, error) {
	logger := logging.WithContext(ctx, o.logger)
	samples := o.settings.SamplesPerPrompt
	assets := make([][]compose.Asset, samples)
	var lastSkip error

	for sample := range samples {
		assets[sample] = make([]compose.Asset, len(intervals))
		for position, iv := range intervals {
			duration := clipSeconds(iv)
			req := stableaudio.Request{
				Prompt:          prompt,
				DurationSeconds: duration,
				Sample:          sample,
				OutputPath:      assetPath(dir, label, position, sample, duration),
			}
			res, err := callService(ctx, o.synthLimiter, o.synthesizePolicy, func(ctx context.Context) (stableaudio.Clip, error) {
				return o.svc.Synthesizer.Generate(ctx, req)
			})
			if err != nil {
				return clipSet{}, err
			}
			if !res.OK {
				lastSkip = res.Reason
				logger.Info("sample incomplete",
					logging.Int("sample", sample),
					logging.Int("interval", position),
					logging.String("reason", describeSkip(res.Reason)),
				)
				break
			}
			assets[sample][position] = compose.Asset{
				Tag:             label,
				Path:            res.Value.Path,
				DurationSeconds: res.Value.DurationSeconds,
			}
		}
	}
	return clipSet{assets: assets, lastSkip: lastSkip}, nil
}

func clipSeconds(iv timeline.Interval) float64 {
	d := math.Round(iv.Duration()*100) / 100
	return math.Max(d, minClipSeconds)
}

func assetPath(dir, label string, position, sample int, duration float64) string {
	return filepath.Join(dir, fmt.Sprintf("%03d", position), compose.AssetName(label, sample, duration))
}

func (o *Orchestrator) compose(ctx context.Context, run *Run, sample int) error {
	if sample < 0 {
		return services.Wrap(services.ErrContractViolation, StageCompose, "select sample", fmt.Sprintf("negative sample %d", sample), nil)
	}
	logger := logging.WithContext(ctx, o.logger)
	assets := make(map[string][]compose.Asset)
	timings := make(map[string][]timeline.Interval)
	var mixed []string
	for _, l := range run.labelStates() {
		view := l.View()
		if view.Status != LabelReady {
			continue
		}
		set, ok := view.Sample(sample)
		if !ok {
			logger.Info("label has no complete clip set for sample; leaving it silent",
				logging.String(logging.FieldLabel, view.Name),
				logging.Int("sample", sample),
			)
			continue
		}
		assets[view.Name] = set
		timings[view.Name] = view.Intervals
		mixed = append(mixed, view.Name)
	}

	buf, err := o.svc.Mixer.Mix(assets, timings, run.VideoDuration(), o.settings.SampleRate)
	if err != nil {
		return err
	}
	path := filepath.Join(o.settings.RunDir(run.ID), o.settings.AudioFilename)
	if err := compose.WriteWAV(path, buf); err != nil {
		return services.Wrap(services.ErrExternalTool, StageCompose, "write track", path, err)
	}
	run.setAudio(path, sample)
	logger.Info("track composed",
		logging.String("path", path),
		logging.Strings("labels", mixed),
		logging.Float64("peak", float64(buf.Peak())),
	)
	return nil
}

func (o *Orchestrator) bind(ctx context.Context, run *Run, output string) error {
	audio, _, _ := run.Outputs()
	if strings.TrimSpace(audio) == "" {
		return ErrNotComposed
	}
	if strings.TrimSpace(output) == "" {
		output = o.settings.DefaultOutput(run.ID)
	}
	if err := o.svc.Binder.Bind(ctx, run.VideoPath, audio, output, run.VideoDuration()); err != nil {
		return err
	}
	run.setCompleted(output)
	return nil
}
