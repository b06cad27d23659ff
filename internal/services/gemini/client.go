package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"foley/internal/logging"
	"foley/internal/services"
	"foley/internal/timeline"
)

// Config captures the analyzer connection settings.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Instructions      string
	Timeout           time.Duration
	ActivationTimeout time.Duration
	PollInterval      time.Duration
}

// Analysis is the validated analyzer reply.
type Analysis struct {
	Summary    string
	Detections []timeline.Detection
}

// Client talks to the analyzer's file and generate endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	sleep      func(context.Context, time.Duration) error
	now        func() time.Time
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

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "analyzer")
	}
}

// WithPollSleeper replaces the wait between activation polls.
func WithPollSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient constructs an analyzer client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ActivationTimeout <= 0 {
		cfg.ActivationTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewComponentLogger(nil, "analyzer"),
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze runs upload, activation polling and generation for one video.
func (c *Client) Analyze(ctx context.Context, videoPath string) (Analysis, error) {
	if c.cfg.APIKey == "" {
		return Analysis{}, services.Wrap(services.ErrConfiguration, "analyze", "config", "api key required", nil)
	}
	fileID, err := c.upload(ctx, videoPath)
	if err != nil {
		return Analysis{}, err
	}
	logger := logging.WithContext(ctx, c.logger)
	logger.Debug("video uploaded", logging.String("file_id", fileID))

	if err := c.waitForActivation(ctx, fileID); err != nil {
		return Analysis{}, err
	}
	raw, err := c.generate(ctx, fileID)
	if err != nil {
		return Analysis{}, err
	}
	analysis, err := parseAnalysis(raw)
	if err != nil {
		return Analysis{}, err
	}
	logger.Info("video analyzed",
		logging.Int("detections", len(analysis.Detections)),
		logging.String(logging.FieldEventType, "analysis_complete"),
	)
	return analysis, nil
}

func (c *Client) upload(ctx context.Context, videoPath string) (string, error) {
	file, err := os.Open(videoPath)
	if err != nil {
		return "", services.Wrap(services.ErrContractViolation, "analyze", "open video", videoPath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(videoPath))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "analyze", "build upload", "", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", services.Wrap(services.ErrTransient, "analyze", "read video", videoPath, err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrTransient, "analyze", "build upload", "", err)
	}

	var resp struct {
		FileID string `json:"file_id"`
	}
	if err := c.do(ctx, "upload", http.MethodPost, c.cfg.BaseURL+"/files", writer.FormDataContentType(), &body, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.FileID) == "" {
		return "", services.Wrap(services.ErrValidation, "analyze", "upload", "no file_id in response", nil)
	}
	return resp.FileID, nil
}

func (c *Client) waitForActivation(ctx context.Context, fileID string) error {
	endpoint := c.cfg.BaseURL + "/files/" + url.PathEscape(fileID) + "/status"
	deadline := c.now().Add(c.cfg.ActivationTimeout)
	for {
		var status struct {
			State string `json:"state"`
		}
		if err := c.do(ctx, "poll", http.MethodGet, endpoint, "", nil, &status); err != nil {
			return err
		}
		if strings.EqualFold(strings.TrimSpace(status.State), "active") {
			return nil
		}
		if !c.now().Before(deadline) {
			return services.Wrap(services.ErrTimeout, "analyze", "poll",
				fmt.Sprintf("file %s not active after %s (state=%q)", fileID, c.cfg.ActivationTimeout, status.State), nil)
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}
}

type generateRequest struct {
	Model        string          `json:"model"`
	Instructions string          `json:"instructions"`
	Schema       json.RawMessage `json:"schema"`
	Content      struct {
		FileID string `json:"file_id"`
	} `json:"content"`
}

func (c *Client) generate(ctx context.Context, fileID string) (json.RawMessage, error) {
	payload := generateRequest{
		Model:        c.cfg.Model,
		Instructions: c.cfg.Instructions,
		Schema:       json.RawMessage(ResponseSchema),
	}
	payload.Content.FileID = fileID
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "analyze", "encode generate", "", err)
	}
	var raw json.RawMessage
	if err := c.do(ctx, "generate", http.MethodPost, c.cfg.BaseURL+"/models/generate", "application/json", bytes.NewReader(encoded), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint, contentType string, body io.Reader, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "analyze", op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.TransportMarker(err), "analyze", op, "", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "analyze", op, "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.HTTPStatusMarker(resp.StatusCode), "analyze", op,
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(data)), nil)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return services.Wrap(services.ErrValidation, "analyze", op, "decode response: "+snippet(data), err)
	}
	return nil
}

func snippet(data []byte) string {
	clean := strings.Join(strings.Fields(string(data)), " ")
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
