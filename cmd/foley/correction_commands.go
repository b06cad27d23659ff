package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"foley/internal/config"
	"foley/internal/pipeline"
)

// correction re-enters a stored run under its lock.
func (c *commandContext) correction(ctx context.Context, prefix string, fn func(*session, *pipeline.Run) error) error {
	id, err := c.resolveRunID(ctx, prefix)
	if err != nil {
		return err
	}
	s, err := c.openSession(id, false)
	if err != nil {
		return err
	}
	defer s.close()
	run, err := s.loadRun(ctx, id)
	if err != nil {
		return err
	}
	return fn(s, run)
}

func newRegenerateCommand(ctx *commandContext) *cobra.Command {
	var prompt string
	var sample int
	var output string
	var skipBind bool

	cmd := &cobra.Command{
		Use:   "regenerate <run> <label>",
		Short: "Re-synthesize one label, optionally with an edited prompt, and re-mix",
		Long: "Re-synthesize the clips of a single label and replace its assets. " +
			"Analysis, relevance filtering and prompt writing are not repeated. " +
			"Without --prompt the label's current prompt is reused.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := expandOptional(output)
			if err != nil {
				return err
			}
			return ctx.correction(cmd.Context(), args[0], func(s *session, run *pipeline.Run) error {
				out := cmd.OutOrStdout()
				if err := s.orch.Regenerate(cmd.Context(), run, args[1], prompt); err != nil {
					return err
				}
				if l, ok := run.Label(args[1]); ok {
					view := l.View()
					fmt.Fprintf(out, "Regenerated %q with prompt %q\n", view.Name, view.Prompt)
				}
				return recompose(cmd.Context(), out, s, run, sample, output, skipBind)
			})
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Replacement prompt for the label")
	cmd.Flags().IntVar(&sample, "sample", 0, "Sample index to mix")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output video path")
	cmd.Flags().BoolVar(&skipBind, "skip-bind", false, "Only re-mix the audio track")
	return cmd
}

func newComposeCommand(ctx *commandContext) *cobra.Command {
	var sample int
	var output string
	var skipBind bool

	cmd := &cobra.Command{
		Use:   "compose <run>",
		Short: "Re-mix a run's audio track from a chosen sample index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := expandOptional(output)
			if err != nil {
				return err
			}
			return ctx.correction(cmd.Context(), args[0], func(s *session, run *pipeline.Run) error {
				return recompose(cmd.Context(), cmd.OutOrStdout(), s, run, sample, output, skipBind)
			})
		},
	}

	cmd.Flags().IntVar(&sample, "sample", 0, "Sample index to mix")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output video path")
	cmd.Flags().BoolVar(&skipBind, "skip-bind", false, "Only re-mix the audio track")
	return cmd
}

func newBindCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "bind <run>",
		Short: "Attach a run's composed track to its video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := expandOptional(output)
			if err != nil {
				return err
			}
			return ctx.correction(cmd.Context(), args[0], func(s *session, run *pipeline.Run) error {
				if err := s.orch.Bind(cmd.Context(), run, output); err != nil {
					return err
				}
				_, video, _ := run.Outputs()
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", video)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output video path")
	return cmd
}

func recompose(ctx context.Context, out io.Writer, s *session, run *pipeline.Run, sample int, output string, skipBind bool) error {
	if err := s.orch.Compose(ctx, run, sample); err != nil {
		return err
	}
	audio, _, _ := run.Outputs()
	fmt.Fprintf(out, "Composed %s\n", audio)
	if skipBind {
		return nil
	}
	if err := s.orch.Bind(ctx, run, output); err != nil {
		return err
	}
	_, video, _ := run.Outputs()
	fmt.Fprintf(out, "Wrote %s\n", video)
	return nil
}

func expandOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return expanded, nil
}
