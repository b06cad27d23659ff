package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"foley/internal/logging"
	"foley/internal/resilience"
	"foley/internal/services"
)

// CommandRunner executes an external binary.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Binder attaches a mixed track to the source video with ffmpeg.
type Binder struct {
	ffmpeg string
	run    CommandRunner
	policy resilience.Policy
	logger *slog.Logger
}

// NewBinder builds a binder. policy bounds retries of failed ffmpeg runs; it
// should carry a MaxAttempts limit.
func NewBinder(ffmpegBinary string, policy resilience.Policy, logger *slog.Logger) *Binder {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Binder{
		ffmpeg: ffmpegBinary,
		run:    runCommand,
		policy: policy,
		logger: logging.NewComponentLogger(logger, "bind"),
	}
}

// SetCommandRunner overrides command execution (primarily for tests).
func (b *Binder) SetCommandRunner(runner CommandRunner) {
	if runner != nil {
		b.run = runner
	}
}

// Bind writes output: the video stream of video copied as-is, the audio
// replaced by audio, cut to duration seconds. Output is produced under a
// temporary name and renamed on success.
func (b *Binder) Bind(ctx context.Context, video, audio, output string, duration float64) error {
	for _, input := range []string{video, audio} {
		if _, err := os.Stat(input); err != nil {
			return services.Wrap(services.ErrContractViolation, "bind", "stat input", input, err)
		}
	}
	if duration <= 0 {
		return services.Wrap(services.ErrContractViolation, "bind", "duration", strconv.FormatFloat(duration, 'f', -1, 64), nil)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "bind", "ensure output dir", output, err)
	}

	partial := partialPath(output)
	args := BuildBindArgs(video, audio, partial, duration)

	res, err := resilience.Run(ctx, b.policy, func(ctx context.Context) error {
		if err := b.run(ctx, b.ffmpeg, args...); err != nil {
			_ = os.Remove(partial)
			return services.Wrap(services.ErrExternalTool, "bind", "ffmpeg", "", err)
		}
		if err := os.Rename(partial, output); err != nil {
			_ = os.Remove(partial)
			return services.Wrap(services.ErrExternalTool, "bind", "rename output", output, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !res.OK {
		reason := res.Reason
		if reason == nil {
			reason = errors.New("bind skipped")
		}
		return services.Wrap(services.ErrExternalTool, "bind", "ffmpeg", fmt.Sprintf("gave up after %d attempts", res.Attempts), reason)
	}
	b.logger.Info("video bound",
		logging.String("output", output),
		logging.Float64("duration", duration),
		logging.Int("attempts", res.Attempts),
		logging.String(logging.FieldEventType, "bind_complete"),
	)
	return nil
}

// BuildBindArgs returns the ffmpeg arguments for replacing a video's audio.
func BuildBindArgs(video, audio, output string, duration float64) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-t", strconv.FormatFloat(duration, 'f', 3, 64),
		output,
	}
}

func partialPath(output string) string {
	ext := filepath.Ext(output)
	base := strings.TrimSuffix(filepath.Base(output), ext)
	return filepath.Join(filepath.Dir(output), "."+base+".partial"+ext)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
