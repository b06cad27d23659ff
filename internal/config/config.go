package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directories foley reads and writes.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	StatePath string `toml:"state_path"`
}

// Analyzer configures the video-understanding service that produces detections.
type Analyzer struct {
	APIKey                   string `toml:"api_key"`
	BaseURL                  string `toml:"base_url"`
	Model                    string `toml:"model"`
	Instructions             string `toml:"instructions"`
	TimeoutSeconds           int    `toml:"timeout_seconds"`
	ActivationTimeoutSeconds int    `toml:"activation_timeout_seconds"`
	PollIntervalSeconds      int    `toml:"poll_interval_seconds"`
}

// LLM contains the chat-completion settings used for relevance filtering and
// prompt writing.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Synthesis configures the text-to-audio service.
type Synthesis struct {
	APIKey           string `toml:"api_key"`
	BaseURL          string `toml:"base_url"`
	NegativePrompt   string `toml:"negative_prompt"`
	InferenceSteps   int    `toml:"inference_steps"`
	SamplesPerPrompt int    `toml:"samples_per_prompt"`
	Seed             int    `toml:"seed"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Composer configures mixing and binding.
type Composer struct {
	SampleRate    int    `toml:"sample_rate"`
	AudioFilename string `toml:"audio_filename"`
	VideoFilename string `toml:"video_filename"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	BindAttempts  int    `toml:"bind_attempts"`
}

// Timeline configures interval aggregation.
type Timeline struct {
	MinGapSeconds      float64 `toml:"min_gap_seconds"`
	MinDurationSeconds float64 `toml:"min_duration_seconds"`
}

// Retry configures the exponential backoff shared by every external call.
type Retry struct {
	InitialDelaySeconds float64 `toml:"initial_delay_seconds"`
	MaxDelaySeconds     float64 `toml:"max_delay_seconds"`
	Base                float64 `toml:"base"`
}

// Workflow configures pipeline concurrency.
type Workflow struct {
	Concurrency       int     `toml:"concurrency"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics configures the Prometheus textfile export written after each run.
type Metrics struct {
	Enabled      bool   `toml:"enabled"`
	TextfilePath string `toml:"textfile_path"`
}

// Config encapsulates all configuration values for foley.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Analyzer  Analyzer  `toml:"analyzer"`
	LLM       LLM       `toml:"llm"`
	Synthesis Synthesis `toml:"synthesis"`
	Composer  Composer  `toml:"composer"`
	Timeline  Timeline  `toml:"timeline"`
	Retry     Retry     `toml:"retry"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("foley.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the work, output and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir, filepath.Dir(c.Paths.StatePath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RunDir returns the workspace directory holding a run's assets and logs.
func (c *Config) RunDir(runID string) string {
	return filepath.Join(c.Paths.WorkDir, "runs", runID)
}

// AnalyzerTimeout returns the per-request timeout for the analyzer.
func (c *Config) AnalyzerTimeout() time.Duration {
	return seconds(float64(c.Analyzer.TimeoutSeconds))
}

// RetryInitialDelay returns the first backoff delay.
func (c *Config) RetryInitialDelay() time.Duration {
	return seconds(c.Retry.InitialDelaySeconds)
}

// RetryMaxDelay returns the backoff ceiling past which a call is skipped.
func (c *Config) RetryMaxDelay() time.Duration {
	return seconds(c.Retry.MaxDelaySeconds)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
