package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"notesmith/internal/services"
)

const defaultHTTPTimeout = 5 * time.Minute

// Config captures the runtime settings required to talk to the transcription
// service.
type Config struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// CredentialFunc resolves the bearer token for a request at call time, so
// runtime overrides take effect without a restart.
type CredentialFunc func(ctx context.Context) (string, error)

// Client wraps an OpenAI-compatible audio transcription endpoint.
type Client struct {
	cfg        Config
	credential CredentialFunc
	httpClient *http.Client
	retry      services.RetryPolicy
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

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy services.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// NewClient constructs a transcription client.
func NewClient(cfg Config, credential CredentialFunc, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
		retry:      services.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads an audio file and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "", "transcription base URL missing", nil)
	}
	data, err := os.ReadFile(audioPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", services.Wrap(services.ErrNotFound, "transcribe", "", fmt.Sprintf("audio file %s missing", audioPath), nil)
		}
		return "", services.Wrap(services.ErrTransient, "transcribe", "read audio", "", err)
	}

	var text string
	err = c.retry.Do(ctx, "transcribe", func(ctx context.Context) error {
		result, reqErr := c.requestOnce(ctx, filepath.Base(audioPath), data)
		if reqErr != nil {
			return reqErr
		}
		text = result
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) requestOnce(ctx context.Context, filename string, data []byte) (string, error) {
	token, err := c.credential(ctx)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "build request", "", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "build request", "", err)
	}
	if err := writer.WriteField("model", c.cfg.Model); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "build request", "", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "build request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "build request", "", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "http", "", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "read response", "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		return "", services.Wrap(marker, "transcribe", "http",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}

	var decoded transcriptionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "decode response", "", err)
	}
	return strings.TrimSpace(decoded.Text), nil
}
