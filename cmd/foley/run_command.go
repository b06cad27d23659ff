package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"foley/internal/config"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "run <video>",
		Short: "Analyze a silent video and bind synthesized sound to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			video, err := resolveVideo(args[0])
			if err != nil {
				return err
			}
			if output != "" {
				if output, err = config.ExpandPath(output); err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
			}

			runID := uuid.NewString()
			s, err := ctx.openSession(runID, true)
			if err != nil {
				return err
			}
			defer s.close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s started for %s\n", runID, video)
			run, runErr := s.orch.Execute(cmd.Context(), video, output)
			if run != nil {
				if rec, err := run.Record(); err == nil {
					renderRunDetail(out, rec)
				}
			}
			if runErr != nil {
				return fmt.Errorf("run %s: %w", runID, runErr)
			}
			_, bound, _ := run.Outputs()
			fmt.Fprintf(out, "Wrote %s\n", bound)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output video path (default: <output_dir>/<run>/<video_filename>)")
	return cmd
}

func resolveVideo(arg string) (string, error) {
	path, err := config.ExpandPath(arg)
	if err != nil {
		return "", fmt.Errorf("resolve video path: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("inspect video %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("video %q is a directory", path)
	}
	return path, nil
}
