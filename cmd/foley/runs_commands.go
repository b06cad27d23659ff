package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"foley/internal/runstore"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			renderRunsTable(out, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list (0 for all)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run>",
		Short: "Show a run's labels, prompts and outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ctx.resolveRunID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			store, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(run)
			}
			renderRunDetail(out, run)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored run as JSON")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	var keepFiles bool

	cmd := &cobra.Command{
		Use:   "rm <run>",
		Short: "Forget a run and delete its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ctx.resolveRunID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			store, cfg, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			dir := cfg.RunDir(id)
			lock, err := runstore.AcquireLock(dir)
			if err != nil {
				if errors.Is(err, runstore.ErrLocked) {
					return fmt.Errorf("run %s is being modified by another foley process", id)
				}
				return err
			}
			defer lock.Release()

			if err := store.Delete(cmd.Context(), id); err != nil {
				return err
			}
			if !keepFiles {
				if err := os.RemoveAll(dir); err != nil {
					return fmt.Errorf("remove run dir: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed run %s\n", shortID(id))
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepFiles, "keep-files", false, "Keep generated assets and outputs on disk")
	return cmd
}
