package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notesmith/internal/services"
)

const defaultHTTPTimeout = 4 * time.Minute

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// CredentialFunc resolves the bearer token for a request at call time, so
// runtime overrides take effect without a restart.
type CredentialFunc func(ctx context.Context) (string, error)

// Client wraps an OpenAI-compatible chat completion API.
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

// NewClient constructs an LLM client using the supplied configuration.
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

// PolishText turns a raw transcript into fluent written prose. Empty input
// short-circuits to empty output without a request.
func (c *Client) PolishText(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", nil
	}
	return c.complete(ctx, "polish", polishSystemPrompt, transcript)
}

// PolishDocument repairs OCR-extracted Markdown. Empty input short-circuits to
// empty output without a request.
func (c *Client) PolishDocument(ctx context.Context, markdown string) (string, error) {
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}
	return c.complete(ctx, "polish-document", polishDocumentSystemPrompt, markdown)
}

// FuseNotes merges document markdown with a polished transcript into a single
// note. When either side is empty the other is returned unchanged.
func (c *Client) FuseNotes(ctx context.Context, document, transcript string) (string, error) {
	document = strings.TrimSpace(document)
	transcript = strings.TrimSpace(transcript)
	if document == "" {
		return transcript, nil
	}
	if transcript == "" {
		return document, nil
	}
	return c.complete(ctx, "fusion", fusionSystemPrompt, fusionUserPrompt(document, transcript))
}

// GenerateNote renders material through a stored template prompt.
func (c *Client) GenerateNote(ctx context.Context, templatePrompt, material string) (string, error) {
	if strings.TrimSpace(material) == "" {
		return "", nil
	}
	if strings.TrimSpace(templatePrompt) == "" {
		return "", services.Wrap(services.ErrValidation, "note", "", "template prompt is empty", nil)
	}
	return c.complete(ctx, "note", "", noteUserPrompt(templatePrompt, material))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, op, systemPrompt, userPrompt string) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, op, "", "LLM base URL missing", nil)
	}

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	var content string
	err := c.retry.Do(ctx, op, func(ctx context.Context) error {
		result, reqErr := c.requestOnce(ctx, op, chatRequest{Model: c.cfg.Model, Messages: messages})
		if reqErr != nil {
			return reqErr
		}
		content = result
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) requestOnce(ctx context.Context, op string, payload chatRequest) (string, error) {
	token, err := c.credential(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, op, "encode request", "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, op, "build request", "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, op, "http", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, op, "read response", "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		return "", services.Wrap(marker, op, "http",
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", services.Wrap(services.ErrTransient, op, "decode response", "", err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", services.Wrap(services.ErrTransient, op, "api", decoded.Error.Message, nil)
	}
	if len(decoded.Choices) == 0 {
		return "", services.Wrap(services.ErrTransient, op, "api", "response contained no choices", nil)
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}
