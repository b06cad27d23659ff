package preflight

import (
	"context"

	"foley/internal/config"
	"foley/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minFreeBytes is the smallest free space accepted on the work volume.
const minFreeBytes = 512 << 20

// RunAll executes the local checks for cfg: directory access, free space on
// the work volume, media tools and credential presence.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckFreeSpace("Work volume", cfg.Paths.WorkDir, minFreeBytes),
	}
	for _, status := range deps.CheckBinaries(deps.MediaRequirements(cfg.Composer.FFmpegBinary, cfg.Composer.FFprobeBinary)) {
		results = append(results, fromStatus(status))
	}
	results = append(results,
		CheckCredential("Analyzer API key", cfg.Analyzer.APIKey),
		CheckCredential("LLM API key", cfg.LLM.APIKey),
		CheckCredential("Synthesis API key", cfg.Synthesis.APIKey),
	)
	if err := ctx.Err(); err != nil {
		results = append(results, Result{Name: "Preflight", Detail: err.Error()})
	}
	return results
}

// Failed returns the failing results.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromStatus(status deps.Status) Result {
	if status.Available {
		return Result{Name: status.Name, Passed: true, Detail: status.Command}
	}
	return Result{Name: status.Name, Passed: status.Optional, Detail: status.Detail}
}
