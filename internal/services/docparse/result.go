package docparse

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"notesmith/internal/services"
)

// The extraction service has shipped several response shapes over time; the
// decoders below accept every variant seen in the wild rather than pinning one.

type slotEnvelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type slotData struct {
	BatchID  string          `json:"batch_id"`
	FileURLs json.RawMessage `json:"file_urls"`
	Files    json.RawMessage `json:"files"`
	Items    json.RawMessage `json:"items"`
}

func decodeUploadSlot(raw []byte) (uploadSlot, error) {
	var envelope slotEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return uploadSlot{}, fmt.Errorf("parse slot envelope: %w", err)
	}
	if envelope.Code != nil && *envelope.Code != 0 {
		return uploadSlot{}, fmt.Errorf("slot request rejected: code %d: %s", *envelope.Code, envelope.Msg)
	}

	payload := envelope.Data
	if len(payload) == 0 {
		payload = raw
	}
	var data slotData
	if err := json.Unmarshal(payload, &data); err != nil {
		return uploadSlot{}, fmt.Errorf("parse slot data: %w", err)
	}
	if data.BatchID == "" {
		return uploadSlot{}, errors.New("slot response missing batch_id")
	}

	for _, candidate := range [][]byte{data.FileURLs, data.Files, data.Items} {
		if url := firstURL(candidate); url != "" {
			return uploadSlot{BatchID: data.BatchID, UploadURL: url}, nil
		}
	}
	return uploadSlot{}, errors.New("slot response missing upload URL")
}

// firstURL extracts the first URL from a list of strings or a list of objects
// carrying a url/upload_url field.
func firstURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asStrings []string
	if err := json.Unmarshal(raw, &asStrings); err == nil {
		for _, s := range asStrings {
			if looksLikeURL(s) {
				return s
			}
		}
		return ""
	}
	var asObjects []map[string]any
	if err := json.Unmarshal(raw, &asObjects); err == nil {
		for _, obj := range asObjects {
			for _, key := range []string{"url", "upload_url", "file_url"} {
				if s, ok := obj[key].(string); ok && looksLikeURL(s) {
					return s
				}
			}
		}
	}
	return ""
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

type resultState int

const (
	statePending resultState = iota
	stateDone
	stateFailed
)

type extractResult struct {
	State        resultState
	Markdown     string
	ResultURLs   []string
	ErrorMessage string
}

type resultEnvelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decodeExtractResult(raw []byte) (extractResult, error) {
	var envelope resultEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return extractResult{}, fmt.Errorf("parse result envelope: %w", err)
	}
	if envelope.Code != nil && *envelope.Code != 0 {
		return extractResult{}, fmt.Errorf("poll rejected: code %d: %s", *envelope.Code, envelope.Msg)
	}

	payload := envelope.Data
	if len(payload) == 0 {
		payload = raw
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(payload, &data); err != nil {
		return extractResult{}, fmt.Errorf("parse result data: %w", err)
	}

	entries := data["extract_result"]
	if len(entries) == 0 {
		entries = data["results"]
	}
	if len(entries) == 0 {
		// Single-object shape.
		return decodeResultEntry(payload)
	}

	var list []json.RawMessage
	if err := json.Unmarshal(entries, &list); err != nil {
		// extract_result may itself be a single object.
		return decodeResultEntry(entries)
	}
	if len(list) == 0 {
		return extractResult{State: statePending}, nil
	}
	return decodeResultEntry(list[0])
}

func decodeResultEntry(raw []byte) (extractResult, error) {
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		return extractResult{}, fmt.Errorf("parse result entry: %w", err)
	}

	result := extractResult{State: statePending}

	var status string
	for _, key := range []string{"state", "status", "task_status"} {
		if s, ok := entry[key].(string); ok && s != "" {
			status = strings.ToLower(s)
			break
		}
	}
	switch status {
	case "done", "success", "succeeded", "finished", "completed":
		result.State = stateDone
	case "failed", "error", "failure":
		result.State = stateFailed
		for _, key := range []string{"err_msg", "error", "message", "reason"} {
			if s, ok := entry[key].(string); ok && s != "" {
				result.ErrorMessage = s
				break
			}
		}
	}

	for _, key := range []string{"md", "markdown", "content", "md_content"} {
		if s, ok := entry[key].(string); ok && strings.TrimSpace(s) != "" {
			result.Markdown = s
			break
		}
	}
	if result.Markdown == "" {
		result.ResultURLs = collectURLs(entry)
	}
	return result, nil
}

// collectURLs gathers every URL-like string value from a result entry.
func collectURLs(value any) []string {
	var urls []string
	switch v := value.(type) {
	case string:
		if looksLikeURL(v) {
			urls = append(urls, v)
		}
	case []any:
		for _, item := range v {
			urls = append(urls, collectURLs(item)...)
		}
	case map[string]any:
		for _, item := range v {
			urls = append(urls, collectURLs(item)...)
		}
	}
	return urls
}

// collectMarkdown resolves a done result into Markdown text, downloading and
// unpacking result artifacts when the content is not inline.
func (c *Client) collectMarkdown(ctx context.Context, result extractResult) (string, error) {
	if strings.TrimSpace(result.Markdown) != "" {
		return result.Markdown, nil
	}
	if len(result.ResultURLs) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "docparse", "collect", "extraction finished without content", nil)
	}

	var parts []string
	for _, url := range result.ResultURLs {
		data, err := c.download(ctx, url)
		if err != nil {
			return "", err
		}
		switch {
		case isZipPayload(url, data):
			markdown, err := markdownFromZip(data)
			if err != nil {
				return "", services.Wrap(services.ErrExternalTool, "docparse", "collect", "unpack result archive", err)
			}
			if markdown != "" {
				parts = append(parts, markdown)
			}
		case isMarkdownURL(url):
			parts = append(parts, string(data))
		}
	}
	if len(parts) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "docparse", "collect", "no markdown in extraction results", nil)
	}
	return strings.Join(parts, "\n\n"), nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "docparse", "build download", "", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "docparse", "download", "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrTransient, "docparse", "download",
			fmt.Sprintf("status %d for %s", resp.StatusCode, url), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 100<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "docparse", "download read", "", err)
	}
	return data, nil
}

func isMarkdownURL(url string) bool {
	trimmed := url
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	lower := strings.ToLower(trimmed)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}

func isZipPayload(url string, data []byte) bool {
	trimmed := url
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if strings.HasSuffix(strings.ToLower(trimmed), ".zip") {
		return true
	}
	return len(data) >= 4 && bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

func markdownFromZip(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var parts []string
	for _, file := range reader.File {
		if !isMarkdownURL(file.Name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		content, err := io.ReadAll(io.LimitReader(rc, 100<<20))
		rc.Close()
		if err != nil {
			return "", err
		}
		parts = append(parts, string(content))
	}
	return strings.Join(parts, "\n\n"), nil
}
