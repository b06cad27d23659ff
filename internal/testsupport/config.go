package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"foley/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Service keys are filled with placeholders so credential checks pass.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StatePath = filepath.Join(base, "state", "foley.db")
	cfgVal.Analyzer.APIKey = "test"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Synthesis.APIKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServiceURLs points the three HTTP clients at test servers.
func WithServiceURLs(analyzer, llm, synthesis string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Analyzer.BaseURL = analyzer
		b.cfg.LLM.BaseURL = llm
		b.cfg.Synthesis.BaseURL = synthesis
	}
}

// WithoutCredentials clears every service key.
func WithoutCredentials() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Analyzer.APIKey = ""
		b.cfg.LLM.APIKey = ""
		b.cfg.Synthesis.APIKey = ""
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
