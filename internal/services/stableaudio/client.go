package stableaudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"foley/internal/media/wavio"
	"foley/internal/services"
)

// Config captures the synthesis server settings.
type Config struct {
	APIKey         string
	BaseURL        string
	NegativePrompt string
	InferenceSteps int
	Seed           int64
	TimeoutSeconds int
}

// Request describes one clip to synthesize.
type Request struct {
	Prompt          string
	DurationSeconds float64
	// Sample is the index of this clip among the variants requested for the
	// same prompt. It offsets the seed so variants differ.
	Sample     int
	OutputPath string
}

// Clip describes a written asset.
type Clip struct {
	Path            string
	SampleRate      int
	DurationSeconds float64
}

// Client talks to the synthesis server. Each call issues one request.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a synthesis client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	timeout := 300 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.InferenceSteps <= 0 {
		cfg.InferenceSteps = 40
	}
	c := &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Duration       float64 `json:"duration"`
	NumWaveforms   int     `json:"num_waveforms"`
	Seed           int64   `json:"seed"`
	Steps          int     `json:"steps"`
}

type generateResponse struct {
	SampleRate int           `json:"sample_rate"`
	Audios     [][][]float32 `json:"audios"`
}

// Generate synthesizes one clip and writes it to req.OutputPath.
func (c *Client) Generate(ctx context.Context, req Request) (Clip, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Clip{}, services.Wrap(services.ErrInvalidRequest, "synthesize", "validate", "prompt required", nil)
	}
	if req.DurationSeconds <= 0 {
		return Clip{}, services.Wrap(services.ErrInvalidRequest, "synthesize", "validate",
			fmt.Sprintf("duration must be positive, got %g", req.DurationSeconds), nil)
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return Clip{}, services.Wrap(services.ErrContractViolation, "synthesize", "validate", "output path required", nil)
	}
	if c.cfg.BaseURL == "" {
		return Clip{}, services.Wrap(services.ErrConfiguration, "synthesize", "config", "base url required", nil)
	}

	payload, err := json.Marshal(generateRequest{
		Prompt:         strings.TrimSpace(req.Prompt),
		NegativePrompt: c.cfg.NegativePrompt,
		Duration:       req.DurationSeconds,
		NumWaveforms:   1,
		Seed:           c.cfg.Seed + int64(req.Sample),
		Steps:          c.cfg.InferenceSteps,
	})
	if err != nil {
		return Clip{}, services.Wrap(services.ErrInvalidRequest, "synthesize", "encode", "", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return Clip{}, services.Wrap(services.ErrConfiguration, "synthesize", "build request", "", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Clip{}, services.Wrap(services.TransportMarker(err), "synthesize", "request", "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Clip{}, services.Wrap(services.HTTPStatusMarker(resp.StatusCode), "synthesize", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Clip{}, services.Wrap(services.ErrTransient, "synthesize", "decode", "", err)
	}
	channels, err := firstWaveform(decoded)
	if err != nil {
		return Clip{}, err
	}
	if err := wavio.Write(req.OutputPath, decoded.SampleRate, channels...); err != nil {
		return Clip{}, services.Wrap(services.ErrTransient, "synthesize", "write asset", req.OutputPath, err)
	}
	return Clip{
		Path:            req.OutputPath,
		SampleRate:      decoded.SampleRate,
		DurationSeconds: float64(len(channels[0])) / float64(decoded.SampleRate),
	}, nil
}

func firstWaveform(resp generateResponse) ([][]float32, error) {
	if resp.SampleRate <= 0 {
		return nil, services.Wrap(services.ErrInvalidRequest, "synthesize", "decode",
			fmt.Sprintf("invalid sample rate %d", resp.SampleRate), nil)
	}
	if len(resp.Audios) == 0 || len(resp.Audios[0]) == 0 {
		return nil, services.Wrap(services.ErrInvalidRequest, "synthesize", "decode", "no audio returned", nil)
	}
	channels := resp.Audios[0]
	frames := len(channels[0])
	if frames == 0 {
		return nil, services.Wrap(services.ErrInvalidRequest, "synthesize", "decode", "empty waveform", nil)
	}
	for i, ch := range channels {
		if len(ch) != frames {
			return nil, services.Wrap(services.ErrInvalidRequest, "synthesize", "decode",
				fmt.Sprintf("channel %d has %d frames, want %d", i, len(ch), frames), nil)
		}
	}
	return channels, nil
}

// HealthCheck verifies the server answers on its base URL.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "synthesize", "health", "", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.TransportMarker(err), "synthesize", "health", "", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.HTTPStatusMarker(resp.StatusCode), "synthesize", "health",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return nil
}
