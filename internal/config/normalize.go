package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAnalyzer()
	c.normalizeLLM()
	c.normalizeSynthesis()
	c.normalizeComposer()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return c.normalizeMetrics()
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(defaultString(c.Paths.WorkDir, defaultWorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(defaultString(c.Paths.OutputDir, defaultOutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(defaultString(c.Paths.LogDir, defaultLogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StatePath, err = expandPath(defaultString(c.Paths.StatePath, defaultStatePath)); err != nil {
		return fmt.Errorf("paths.state_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeAnalyzer() {
	c.Analyzer.APIKey = strings.TrimSpace(c.Analyzer.APIKey)
	if c.Analyzer.APIKey == "" {
		c.Analyzer.APIKey = lookupEnv("GEMINI_API_KEY")
	}
	c.Analyzer.BaseURL = strings.TrimRight(defaultString(c.Analyzer.BaseURL, defaultAnalyzerBaseURL), "/")
	c.Analyzer.Model = defaultString(c.Analyzer.Model, defaultAnalyzerModel)
	c.Analyzer.Instructions = defaultString(c.Analyzer.Instructions, defaultAnalyzerInstructions)
	if c.Analyzer.TimeoutSeconds <= 0 {
		c.Analyzer.TimeoutSeconds = defaultAnalyzerTimeoutSeconds
	}
	if c.Analyzer.ActivationTimeoutSeconds <= 0 {
		c.Analyzer.ActivationTimeoutSeconds = defaultAnalyzerActivationSeconds
	}
	if c.Analyzer.PollIntervalSeconds <= 0 {
		c.Analyzer.PollIntervalSeconds = defaultAnalyzerPollSeconds
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = lookupEnv("OPENAI_API_KEY", "OPENROUTER_API_KEY")
	}
	c.LLM.BaseURL = defaultString(c.LLM.BaseURL, defaultLLMBaseURL)
	c.LLM.Model = defaultString(c.LLM.Model, defaultLLMModel)
	c.LLM.Referer = defaultString(c.LLM.Referer, defaultLLMReferer)
	c.LLM.Title = defaultString(c.LLM.Title, defaultLLMTitle)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeSynthesis() {
	c.Synthesis.APIKey = strings.TrimSpace(c.Synthesis.APIKey)
	if c.Synthesis.APIKey == "" {
		c.Synthesis.APIKey = lookupEnv("AUDIO_API_KEY")
	}
	c.Synthesis.BaseURL = strings.TrimRight(defaultString(c.Synthesis.BaseURL, defaultSynthesisBaseURL), "/")
	c.Synthesis.NegativePrompt = strings.TrimSpace(c.Synthesis.NegativePrompt)
	if c.Synthesis.InferenceSteps <= 0 {
		c.Synthesis.InferenceSteps = defaultSynthesisSteps
	}
	if c.Synthesis.SamplesPerPrompt <= 0 {
		c.Synthesis.SamplesPerPrompt = defaultSynthesisSamples
	}
	if c.Synthesis.TimeoutSeconds <= 0 {
		c.Synthesis.TimeoutSeconds = defaultSynthesisTimeoutSeconds
	}
}

func (c *Config) normalizeComposer() {
	if c.Composer.SampleRate <= 0 {
		c.Composer.SampleRate = defaultSampleRate
	}
	c.Composer.AudioFilename = defaultString(c.Composer.AudioFilename, defaultAudioFilename)
	c.Composer.VideoFilename = defaultString(c.Composer.VideoFilename, defaultVideoFilename)
	c.Composer.FFmpegBinary = defaultString(c.Composer.FFmpegBinary, defaultFFmpegBinary)
	c.Composer.FFprobeBinary = defaultString(c.Composer.FFprobeBinary, defaultFFprobeBinary)
	if c.Composer.BindAttempts <= 0 {
		c.Composer.BindAttempts = defaultBindAttempts
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Concurrency <= 0 {
		c.Workflow.Concurrency = defaultConcurrency
	}
	if c.Workflow.Burst <= 0 {
		c.Workflow.Burst = defaultBurst
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeMetrics() error {
	if !c.Metrics.Enabled {
		return nil
	}
	path := strings.TrimSpace(c.Metrics.TextfilePath)
	if path == "" {
		path = filepath.Join(c.Paths.LogDir, "foley.prom")
	}
	var err error
	if c.Metrics.TextfilePath, err = expandPath(path); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

func defaultString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func lookupEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
