package pipeline

import (
	"context"
	"time"
)

// Config describes how to construct a transcription engine. The engine runs
// non-interactive and silent; all progress is reported through Callbacks.
type Config struct {
	Binary   string
	Model    string
	Language string
	Timeout  time.Duration
	WorkDir  string
}

// Result is the outcome of one processing run.
type Result struct {
	RawText        string        `json:"raw_text"`
	EnhancedText   string        `json:"enhanced_text"`
	Routing        string        `json:"routing"`
	Confidence     float64       `json:"confidence"`
	Entities       []string      `json:"entities"`
	ToolsUsed      []string      `json:"tools_used"`
	ProcessingTime time.Duration `json:"-"`
}

// Callbacks fire as the engine progresses. Any field may be nil.
type Callbacks struct {
	OnPhase     func(phase string)
	OnToolStart func(tool string)
	OnToolDone  func(tool string, err error)
}

func (c Callbacks) phase(name string) {
	if c.OnPhase != nil {
		c.OnPhase(name)
	}
}

func (c Callbacks) toolStart(name string) {
	if c.OnToolStart != nil {
		c.OnToolStart(name)
	}
}

func (c Callbacks) toolDone(name string, err error) {
	if c.OnToolDone != nil {
		c.OnToolDone(name, err)
	}
}

// Engine converts one uploaded audio file into transcript output.
type Engine interface {
	Process(ctx context.Context, audioPath string, createdAt time.Time, contentHash string, cb Callbacks) (*Result, error)
}
