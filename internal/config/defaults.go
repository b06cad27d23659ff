package config

const (
	defaultConfigPath = "~/.config/foley/config.toml"
	defaultWorkDir    = "~/.local/share/foley/work"
	defaultOutputDir  = "~/.local/share/foley/output"
	defaultLogDir     = "~/.local/share/foley/logs"
	defaultStatePath  = "~/.local/share/foley/foley.db"

	defaultAnalyzerBaseURL           = "https://generativelanguage.googleapis.com/v1beta"
	defaultAnalyzerModel             = "gemini-2.0-flash"
	defaultAnalyzerTimeoutSeconds    = 60
	defaultAnalyzerActivationSeconds = 60
	defaultAnalyzerPollSeconds       = 2
	defaultAnalyzerInstructions      = "List every object that produces or could produce sound in this video. " +
		"For each object give its label, the object it interacts with if any, its start_time and end_time in seconds " +
		"and a confidence between 0 and 1. Also give a short summary of the whole video."

	defaultLLMBaseURL        = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel          = "gpt-4o-mini"
	defaultLLMReferer        = "https://github.com/foley-audio/foley"
	defaultLLMTitle          = "foley"
	defaultLLMTimeoutSeconds = 60

	defaultSynthesisBaseURL        = "http://127.0.0.1:8000"
	defaultSynthesisNegativePrompt = "Bad quality sound, not recognizable."
	defaultSynthesisSteps          = 40
	defaultSynthesisSamples        = 1
	defaultSynthesisTimeoutSeconds = 300

	defaultSampleRate    = 44100
	defaultAudioFilename = "final_output.wav"
	defaultVideoFilename = "final_video_with_audio.mp4"
	defaultFFmpegBinary  = "ffmpeg"
	defaultFFprobeBinary = "ffprobe"
	defaultBindAttempts  = 3

	defaultMinGapSeconds      = 0.5
	defaultMinDurationSeconds = 0.2

	defaultRetryInitialSeconds = 2
	defaultRetryMaxSeconds     = 600
	defaultRetryBase           = 2

	defaultConcurrency       = 4
	defaultRequestsPerSecond = 2
	defaultBurst             = 2

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StatePath: defaultStatePath,
		},
		Analyzer: Analyzer{
			BaseURL:                  defaultAnalyzerBaseURL,
			Model:                    defaultAnalyzerModel,
			Instructions:             defaultAnalyzerInstructions,
			TimeoutSeconds:           defaultAnalyzerTimeoutSeconds,
			ActivationTimeoutSeconds: defaultAnalyzerActivationSeconds,
			PollIntervalSeconds:      defaultAnalyzerPollSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Synthesis: Synthesis{
			BaseURL:          defaultSynthesisBaseURL,
			NegativePrompt:   defaultSynthesisNegativePrompt,
			InferenceSteps:   defaultSynthesisSteps,
			SamplesPerPrompt: defaultSynthesisSamples,
			TimeoutSeconds:   defaultSynthesisTimeoutSeconds,
		},
		Composer: Composer{
			SampleRate:    defaultSampleRate,
			AudioFilename: defaultAudioFilename,
			VideoFilename: defaultVideoFilename,
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			BindAttempts:  defaultBindAttempts,
		},
		Timeline: Timeline{
			MinGapSeconds:      defaultMinGapSeconds,
			MinDurationSeconds: defaultMinDurationSeconds,
		},
		Retry: Retry{
			InitialDelaySeconds: defaultRetryInitialSeconds,
			MaxDelaySeconds:     defaultRetryMaxSeconds,
			Base:                defaultRetryBase,
		},
		Workflow: Workflow{
			Concurrency:       defaultConcurrency,
			RequestsPerSecond: defaultRequestsPerSecond,
			Burst:             defaultBurst,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
