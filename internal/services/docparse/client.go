package docparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"notesmith/internal/services"
)

const (
	defaultHTTPTimeout     = 10 * time.Minute
	defaultPollInterval    = 10 * time.Second
	defaultMaxPollAttempts = 60
	defaultMaxFileSizeMiB  = 200
)

// Config captures the runtime settings required to talk to the document
// parsing service.
type Config struct {
	BaseURL         string
	ModelMode       string
	PollInterval    time.Duration
	MaxPollAttempts int
	MaxFileSizeMiB  int
	TimeoutSeconds  int
}

// CredentialFunc resolves the API token for a request at call time, so
// runtime overrides take effect without a restart.
type CredentialFunc func(ctx context.Context) (string, error)

// Client drives the upload-then-poll document extraction protocol.
type Client struct {
	cfg        Config
	credential CredentialFunc
	httpClient *http.Client
	retry      services.RetryPolicy
	sleeper    func(context.Context, time.Duration) error
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

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// NewClient constructs a document parsing client.
func NewClient(cfg Config, credential CredentialFunc, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	if cfg.MaxFileSizeMiB <= 0 {
		cfg.MaxFileSizeMiB = defaultMaxFileSizeMiB
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	client := &Client{
		cfg:        cfg,
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
		retry:      services.DefaultRetryPolicy(),
		sleeper:    sleepContext,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Parse phases reported through the onPhase callback.
const (
	PhaseUploading  = "uploading"
	PhaseProcessing = "processing"
)

// Parse uploads a document and polls until extraction yields Markdown. The
// optional onPhase callback fires as the protocol moves from uploading to
// polling, so callers can surface progress.
func (c *Client) Parse(ctx context.Context, path string, onPhase func(phase string)) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "docparse", "", "docparse base URL missing", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", services.Wrap(services.ErrNotFound, "docparse", "", fmt.Sprintf("attachment %s missing", path), nil)
		}
		return "", services.Wrap(services.ErrTransient, "docparse", "stat attachment", "", err)
	}
	maxBytes := int64(c.cfg.MaxFileSizeMiB) << 20
	if info.Size() > maxBytes {
		return "", services.Wrap(services.ErrValidation, "docparse", "",
			fmt.Sprintf("attachment is %d MiB, limit is %d MiB", info.Size()>>20, c.cfg.MaxFileSizeMiB), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "docparse", "read attachment", "", err)
	}

	if onPhase != nil {
		onPhase(PhaseUploading)
	}
	var slot uploadSlot
	err = c.retry.Do(ctx, "docparse slot", func(ctx context.Context) error {
		requested, reqErr := c.requestUploadSlot(ctx, filepath.Base(path))
		if reqErr != nil {
			return reqErr
		}
		slot = requested
		return nil
	})
	if err != nil {
		return "", err
	}

	err = c.retry.Do(ctx, "docparse upload", func(ctx context.Context) error {
		return c.uploadFile(ctx, slot.UploadURL, data)
	})
	if err != nil {
		return "", err
	}

	if onPhase != nil {
		onPhase(PhaseProcessing)
	}
	return c.pollResult(ctx, slot.BatchID)
}

type uploadSlot struct {
	BatchID   string
	UploadURL string
}

func (c *Client) requestUploadSlot(ctx context.Context, filename string) (uploadSlot, error) {
	token, err := c.credential(ctx)
	if err != nil {
		return uploadSlot{}, err
	}

	payload := map[string]any{
		"enable_formula": true,
		"language":       "auto",
		"model_version":  c.cfg.ModelMode,
		"files": []map[string]any{
			{"name": filename, "is_ocr": true},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return uploadSlot{}, services.Wrap(services.ErrTransient, "docparse", "encode slot request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/file-urls/batch", bytes.NewReader(body))
	if err != nil {
		return uploadSlot{}, services.Wrap(services.ErrTransient, "docparse", "build slot request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return uploadSlot{}, services.Wrap(services.ErrTransient, "docparse", "slot http", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return uploadSlot{}, services.Wrap(services.ErrTransient, "docparse", "read slot response", "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		return uploadSlot{}, services.Wrap(marker, "docparse", "slot http",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	slot, err := decodeUploadSlot(raw)
	if err != nil {
		return uploadSlot{}, services.Wrap(services.ErrTransient, "docparse", "decode slot response", "", err)
	}
	return slot, nil
}

func (c *Client) uploadFile(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return services.Wrap(services.ErrTransient, "docparse", "build upload request", "", err)
	}
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "docparse", "upload http", "", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.Wrap(services.ErrTransient, "docparse", "upload http",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) pollResult(ctx context.Context, batchID string) (string, error) {
	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		result, err := c.fetchResult(ctx, batchID)
		if err != nil {
			if !services.Retryable(err) {
				return "", err
			}
			// Transient poll failures consume the attempt and keep waiting.
		} else {
			switch result.State {
			case stateDone:
				return c.collectMarkdown(ctx, result)
			case stateFailed:
				reason := result.ErrorMessage
				if reason == "" {
					reason = "extraction failed"
				}
				return "", services.Wrap(services.ErrExternalTool, "docparse", "extract", reason, nil)
			}
		}
		if err := c.sleeper(ctx, c.cfg.PollInterval); err != nil {
			return "", err
		}
	}
	return "", services.Wrap(services.ErrTimeout, "docparse", "poll",
		fmt.Sprintf("no terminal state after %d attempts", c.cfg.MaxPollAttempts), nil)
}

func (c *Client) fetchResult(ctx context.Context, batchID string) (extractResult, error) {
	token, err := c.credential(ctx)
	if err != nil {
		return extractResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/extract-results/batch/"+batchID, nil)
	if err != nil {
		return extractResult{}, services.Wrap(services.ErrTransient, "docparse", "build poll request", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return extractResult{}, services.Wrap(services.ErrTransient, "docparse", "poll http", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return extractResult{}, services.Wrap(services.ErrTransient, "docparse", "read poll response", "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		return extractResult{}, services.Wrap(marker, "docparse", "poll http",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	result, err := decodeExtractResult(raw)
	if err != nil {
		return extractResult{}, services.Wrap(services.ErrTransient, "docparse", "decode poll response", "", err)
	}
	return result, nil
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
