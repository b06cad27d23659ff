package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"foley/internal/logging"
	"foley/internal/services"
)

// Regenerate re-synthesizes one label with prompt and replaces its assets.
// An empty prompt reuses the label's current prompt. Analysis, relevance and
// prompt writing are not repeated; call Compose and Bind afterwards to
// refresh the outputs.
func (o *Orchestrator) Regenerate(ctx context.Context, run *Run, label, prompt string) error {
	l, ok := run.Label(label)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = l.View().Prompt
	}
	if prompt == "" {
		return fmt.Errorf("label %q has no prompt; pass one explicitly", l.Name())
	}

	ctx = services.WithLabel(ctx, l.Name())
	view := l.View()
	var (
		committed bool
		failed    error
	)
	err := o.runStage(ctx, run, StageSynthesize, func(ctx context.Context, run *Run) error {
		// Each attempt gets its own directory so a failed correction never
		// touches the clips it would have replaced.
		attempt := filepath.Join(o.settings.RunDir(run.ID), "assets", "regenerate-"+uuid.NewString()[:8])
		clips, err := o.synthesizeClips(ctx, view.Name, prompt, view.Intervals, attempt)
		if err != nil {
			o.discardClips(ctx, attempt)
			return err
		}
		if !clips.anyComplete() {
			failed = clips.lastSkip
			o.discardClips(ctx, attempt)
			return nil
		}
		committed = true
		for _, set := range l.commitRegenerate(prompt, clips.assets) {
			for _, asset := range set {
				if asset.Path != "" {
					_ = os.Remove(asset.Path)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !committed {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "regeneration failed; previous audio kept", "label_regenerate_failed",
			logging.String("prompt", prompt),
			logging.String(logging.FieldErrorHint, "try a different prompt"),
			logging.String(logging.FieldImpact, "label keeps its previous prompt and audio"),
			logging.String("reason", describeSkip(failed)),
		)
		return fmt.Errorf("%w: %s (%s)", ErrLabelDropped, view.Name, describeSkip(failed))
	}
	logging.WithContext(ctx, o.logger).Info("label regenerated",
		logging.String("prompt", prompt),
		logging.String(logging.FieldEventType, "label_regenerated"),
	)
	return nil
}

// discardClips removes a failed attempt's partial clips.
func (o *Orchestrator) discardClips(ctx context.Context, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logging.WithContext(ctx, o.logger).Debug("discard clips failed",
			logging.String("dir", dir),
			logging.Error(err),
		)
	}
}

// Compose re-mixes the run's ready labels using the given sample index.
func (o *Orchestrator) Compose(ctx context.Context, run *Run, sample int) error {
	return o.runStage(ctx, run, StageCompose, func(ctx context.Context, run *Run) error {
		return o.compose(ctx, run, sample)
	})
}

// Bind attaches the run's composed track to its video. An empty output
// binds to the default location.
func (o *Orchestrator) Bind(ctx context.Context, run *Run, output string) error {
	return o.runStage(ctx, run, StageBind, func(ctx context.Context, run *Run) error {
		return o.bind(ctx, run, output)
	})
}
