package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	UploadDir       string `toml:"upload_dir"`
	TranscriptDir   string `toml:"transcript_dir"`
	LogDir          string `toml:"log_dir"`
	EntitiesPath    string `toml:"entities_path"`
	WeightModelPath string `toml:"weight_model_path"`
	APIBind         string `toml:"api_bind"`
}

// Pipeline contains configuration for the external transcription engine.
type Pipeline struct {
	Binary         string `toml:"binary"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains daemon timing configuration. All intervals are seconds.
type Workflow struct {
	QueuePollInterval    int `toml:"queue_poll_interval"`
	SSEKeepAliveInterval int `toml:"sse_keepalive_interval"`
	IdleSweepInterval    int `toml:"idle_sweep_interval"`
	SessionIdleTimeout   int `toml:"session_idle_timeout"`
	RecentWindowMinutes  int `toml:"recent_window_minutes"`
	RecentLimit          int `toml:"recent_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration document.
type Config struct {
	Paths    `toml:"paths"`
	Pipeline Pipeline `toml:"pipeline"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() string { return c.Logging.Level }

// LogFormat returns the configured log format.
func (c *Config) LogFormat() string { return c.Logging.Format }

// EnsureDirectories creates every directory the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.UploadDir, c.TranscriptDir, c.LogDir}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Load reads configuration from path (or the default locations when path is
// empty), applies defaults, normalizes paths, and validates the result. The
// returned string is the resolved config path and the bool reports whether a
// config file existed there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file %s already exists", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// DefaultConfigPath returns the expanded default config location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("scrivener.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	fields := []*string{
		&c.UploadDir,
		&c.TranscriptDir,
		&c.LogDir,
		&c.EntitiesPath,
		&c.WeightModelPath,
	}
	for _, field := range fields {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.APIBind = strings.TrimSpace(c.APIBind)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
