package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateDocParse(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.max_transcode_workers": c.Workflow.MaxTranscodeWorkers,
		"workflow.max_api_workers":       c.Workflow.MaxAPIWorkers,
		"workflow.retry_max_attempts":    c.Workflow.RetryMaxAttempts,
		"workflow.retry_base_delay_ms":   c.Workflow.RetryBaseDelayMS,
	}); err != nil {
		return err
	}
	if c.Workflow.RetryMaxDelayMS < c.Workflow.RetryBaseDelayMS {
		return errors.New("workflow.retry_max_delay_ms must be at least workflow.retry_base_delay_ms")
	}
	return nil
}

func (c *Config) validateDocParse() error {
	return ensurePositiveMap(map[string]int{
		"docparse.poll_interval":     c.DocParse.PollInterval,
		"docparse.max_poll_attempts": c.DocParse.MaxPollAttempts,
		"docparse.max_file_size_mib": c.DocParse.MaxFileSizeMiB,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
