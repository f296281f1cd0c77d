package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultBinary is the engine invoked when configuration leaves it unset.
const DefaultBinary = "transcribe-engine"

// execEngine shells out to an external transcription binary that emits a
// single JSON document on stdout.
type execEngine struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// New constructs an engine from configuration.
func New(cfg Config) (Engine, error) {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("pipeline: timeout must be positive")
	}
	return &execEngine{cfg: cfg}, nil
}

// NewWithRunner constructs an engine with a custom command runner (tests).
func NewWithRunner(cfg Config, runner func(ctx context.Context, name string, args ...string) ([]byte, error)) (Engine, error) {
	engine, err := New(cfg)
	if err != nil {
		return nil, err
	}
	engine.(*execEngine).commandRunner = runner
	return engine, nil
}

type engineOutput struct {
	RawText      string   `json:"raw_text"`
	EnhancedText string   `json:"enhanced_text"`
	Routing      string   `json:"routing"`
	Confidence   float64  `json:"confidence"`
	Entities     []string `json:"entities"`
	ToolsUsed    []string `json:"tools_used"`
}

// Process runs the engine against one audio file.
func (e *execEngine) Process(ctx context.Context, audioPath string, createdAt time.Time, contentHash string, cb Callbacks) (*Result, error) {
	if strings.TrimSpace(audioPath) == "" {
		return nil, errors.New("pipeline: audio path required")
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	args := []string{
		"--quiet",
		"--output", "json",
		"--model", e.cfg.Model,
	}
	if e.cfg.Language != "" {
		args = append(args, "--language", e.cfg.Language)
	}
	if !createdAt.IsZero() {
		args = append(args, "--recorded-at", createdAt.UTC().Format(time.RFC3339))
	}
	if contentHash != "" {
		args = append(args, "--content-hash", contentHash)
	}
	args = append(args, audioPath)

	started := time.Now()
	cb.phase("transcribe")
	cb.toolStart(e.cfg.Binary)
	output, err := e.run(runCtx, e.cfg.Binary, args...)
	cb.toolDone(e.cfg.Binary, err)
	if err != nil {
		return nil, err
	}

	var parsed engineOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("pipeline: parse engine output: %w", err)
	}
	if strings.TrimSpace(parsed.RawText) == "" {
		return nil, errors.New("pipeline: engine returned empty transcript")
	}
	cb.phase("enhance")

	return &Result{
		RawText:        parsed.RawText,
		EnhancedText:   parsed.EnhancedText,
		Routing:        parsed.Routing,
		Confidence:     parsed.Confidence,
		Entities:       parsed.Entities,
		ToolsUsed:      parsed.ToolsUsed,
		ProcessingTime: time.Since(started),
	}, nil
}

func (e *execEngine) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if e.commandRunner != nil {
		return e.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if e.cfg.WorkDir != "" {
		cmd.Dir = e.cfg.WorkDir
	}
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}
