package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.UploadDir == "" {
		return errors.New("paths.upload_dir must be set")
	}
	if c.TranscriptDir == "" {
		return errors.New("paths.transcript_dir must be set")
	}
	if c.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.APIBind == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if strings.TrimSpace(c.Pipeline.Binary) == "" {
		return errors.New("pipeline.binary must be set")
	}
	if c.Pipeline.TimeoutSeconds <= 0 {
		return errors.New("pipeline.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	intervals := map[string]int{
		"workflow.queue_poll_interval":    c.Workflow.QueuePollInterval,
		"workflow.sse_keepalive_interval": c.Workflow.SSEKeepAliveInterval,
		"workflow.idle_sweep_interval":    c.Workflow.IdleSweepInterval,
		"workflow.session_idle_timeout":   c.Workflow.SessionIdleTimeout,
		"workflow.recent_window_minutes":  c.Workflow.RecentWindowMinutes,
		"workflow.recent_limit":           c.Workflow.RecentLimit,
	}
	for name, value := range intervals {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Workflow.SessionIdleTimeout <= c.Workflow.IdleSweepInterval {
		return errors.New("workflow.session_idle_timeout must exceed workflow.idle_sweep_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
