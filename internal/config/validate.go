package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Validate ensures the configuration is structurally usable. Credentials are
// checked separately by RequireCredentials so read-only commands work without
// them.
func (c *Config) Validate() error {
	if err := c.validateTimeline(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateComposer(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireCredentials reports every missing service key at once.
func (c *Config) RequireCredentials() error {
	var missing []string
	if strings.TrimSpace(c.Analyzer.APIKey) == "" {
		missing = append(missing, "analyzer.api_key (or GEMINI_API_KEY)")
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		missing = append(missing, "llm.api_key (or OPENAI_API_KEY / OPENROUTER_API_KEY)")
	}
	if strings.TrimSpace(c.Synthesis.APIKey) == "" {
		missing = append(missing, "synthesis.api_key (or AUDIO_API_KEY)")
	}
	if len(missing) == 0 {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("missing credentials: %s. Set them in %s (create with 'foley config init')",
		strings.Join(missing, ", "), defaultPath)
}

func (c *Config) validateTimeline() error {
	if !finiteNonNegative(c.Timeline.MinGapSeconds) {
		return errors.New("timeline.min_gap_seconds must be a non-negative number")
	}
	if !finiteNonNegative(c.Timeline.MinDurationSeconds) {
		return errors.New("timeline.min_duration_seconds must be a non-negative number")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.InitialDelaySeconds <= 0 || math.IsInf(c.Retry.InitialDelaySeconds, 0) {
		return errors.New("retry.initial_delay_seconds must be positive")
	}
	if c.Retry.MaxDelaySeconds < c.Retry.InitialDelaySeconds {
		return errors.New("retry.max_delay_seconds must be >= retry.initial_delay_seconds")
	}
	if c.Retry.Base <= 1 {
		return errors.New("retry.base must be greater than 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.RequestsPerSecond < 0 {
		return errors.New("workflow.requests_per_second must be >= 0 (0 disables rate limiting)")
	}
	return ensurePositiveMap(map[string]int{
		"workflow.concurrency":         c.Workflow.Concurrency,
		"workflow.burst":               c.Workflow.Burst,
		"synthesis.samples_per_prompt": c.Synthesis.SamplesPerPrompt,
		"synthesis.inference_steps":    c.Synthesis.InferenceSteps,
	})
}

func (c *Config) validateComposer() error {
	if c.Composer.SampleRate < 8000 || c.Composer.SampleRate > 192000 {
		return fmt.Errorf("composer.sample_rate %d outside 8000..192000", c.Composer.SampleRate)
	}
	for key, name := range map[string]string{
		"composer.audio_filename": c.Composer.AudioFilename,
		"composer.video_filename": c.Composer.VideoFilename,
	} {
		if strings.ContainsAny(name, `/\`) {
			return fmt.Errorf("%s must be a bare file name", key)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
