package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeLLM()
	c.normalizeDocParse()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return c.normalizeExport()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		c.Paths.UploadDir = defaultUploadDir
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	if c.Transcription.APIKey == "" {
		if value, ok := os.LookupEnv("NOTESMITH_TRANSCRIPTION_API_KEY"); ok {
			c.Transcription.APIKey = value
		}
	}
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	if strings.TrimSpace(c.Transcription.Model) == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeout
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("NOTESMITH_LLM_API_KEY"); ok {
			c.LLM.APIKey = value
		}
	}
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
}

func (c *Config) normalizeDocParse() {
	if c.DocParse.APIToken == "" {
		if value, ok := os.LookupEnv("NOTESMITH_DOCPARSE_TOKEN"); ok {
			c.DocParse.APIToken = value
		}
	}
	c.DocParse.BaseURL = strings.TrimRight(strings.TrimSpace(c.DocParse.BaseURL), "/")
	if c.DocParse.BaseURL == "" {
		c.DocParse.BaseURL = defaultDocParseBaseURL
	}
	if strings.TrimSpace(c.DocParse.ModelMode) == "" {
		c.DocParse.ModelMode = defaultDocParseModelMode
	}
	if c.DocParse.PollInterval <= 0 {
		c.DocParse.PollInterval = defaultDocParsePollInterval
	}
	if c.DocParse.MaxPollAttempts <= 0 {
		c.DocParse.MaxPollAttempts = defaultDocParseMaxAttempts
	}
	if c.DocParse.MaxFileSizeMiB <= 0 {
		c.DocParse.MaxFileSizeMiB = defaultDocParseMaxFileMiB
	}
	if c.DocParse.TimeoutSeconds <= 0 {
		c.DocParse.TimeoutSeconds = defaultDocParseTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxTranscodeWorkers <= 0 {
		c.Workflow.MaxTranscodeWorkers = defaultTranscodeWorkers
	}
	if c.Workflow.MaxAPIWorkers <= 0 {
		c.Workflow.MaxAPIWorkers = defaultAPIWorkers
	}
	if c.Workflow.RetryMaxAttempts <= 0 {
		c.Workflow.RetryMaxAttempts = defaultRetryMaxAttempts
	}
	if c.Workflow.RetryBaseDelayMS <= 0 {
		c.Workflow.RetryBaseDelayMS = defaultRetryBaseDelayMS
	}
	if c.Workflow.RetryMaxDelayMS <= 0 {
		c.Workflow.RetryMaxDelayMS = defaultRetryMaxDelayMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeExport() error {
	c.Export.VaultDir = strings.TrimSpace(c.Export.VaultDir)
	if c.Export.VaultDir == "" {
		return nil
	}
	expanded, err := expandPath(c.Export.VaultDir)
	if err != nil {
		return fmt.Errorf("export.vault_dir: %w", err)
	}
	c.Export.VaultDir = expanded
	return nil
}
