package main

import (
	"time"

	"scrivener/internal/config"
	"scrivener/internal/pipeline"
)

func buildEngine(cfg *config.Config) (pipeline.Engine, error) {
	return pipeline.New(pipeline.Config{
		Binary:   cfg.Pipeline.Binary,
		Model:    cfg.Pipeline.Model,
		Language: cfg.Pipeline.Language,
		Timeout:  time.Duration(cfg.Pipeline.TimeoutSeconds) * time.Second,
		WorkDir:  cfg.UploadDir,
	})
}
