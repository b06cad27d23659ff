package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"foley/internal/logging"
	"foley/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var checkServices bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check tools, directories and service credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if checkServices {
				w := newWiring(cfg, logging.NewNop())
				results = append(results,
					preflight.CheckService(cmd.Context(), "LLM service", w.llm),
					preflight.CheckService(cmd.Context(), "Synthesis service", w.synth),
				)
			}

			out := cmd.OutOrStdout()
			style := styleFor(out)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				result := "fail"
				if r.Passed {
					result = "pass"
				}
				rows = append(rows, []string{r.Name, style.status(result), r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))

			failed := preflight.Failed(results)
			if len(failed) == 0 {
				fmt.Fprintln(out, "All checks passed")
				return nil
			}
			names := make([]string, 0, len(failed))
			for _, r := range failed {
				names = append(names, r.Name)
			}
			return fmt.Errorf("%d check(s) failed: %s", len(failed), strings.Join(names, ", "))
		},
	}

	cmd.Flags().BoolVar(&checkServices, "check-services", false, "Also contact the LLM and synthesis services")
	return cmd
}
