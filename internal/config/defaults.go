package config

const (
	defaultConfigPath = "~/.config/scrivener/config.toml"

	defaultUploadDir       = "~/.local/share/scrivener/uploads"
	defaultTranscriptDir   = "~/.local/share/scrivener/transcripts"
	defaultLogDir          = "~/.local/share/scrivener/logs"
	defaultEntitiesPath    = "~/.local/share/scrivener/entities.json"
	defaultWeightModelPath = "~/.local/share/scrivener/weights.json"
	defaultAPIBind         = "127.0.0.1:7519"

	defaultPipelineBinary  = "transcribe-engine"
	defaultPipelineModel   = "large-v3"
	defaultPipelineTimeout = 1800

	defaultQueuePollInterval    = 5
	defaultSSEKeepAliveInterval = 15
	defaultIdleSweepInterval    = 60
	defaultSessionIdleTimeout   = 1800
	defaultRecentWindowMinutes  = 60
	defaultRecentLimit          = 20

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir:      defaultUploadDir,
			TranscriptDir:  defaultTranscriptDir,
			LogDir:         defaultLogDir,
			EntitiesPath:   defaultEntitiesPath,
			WeightModelPath: defaultWeightModelPath,
			APIBind:        defaultAPIBind,
		},
		Pipeline: Pipeline{
			Binary:         defaultPipelineBinary,
			Model:          defaultPipelineModel,
			Language:       "en",
			TimeoutSeconds: defaultPipelineTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:    defaultQueuePollInterval,
			SSEKeepAliveInterval: defaultSSEKeepAliveInterval,
			IdleSweepInterval:    defaultIdleSweepInterval,
			SessionIdleTimeout:   defaultSessionIdleTimeout,
			RecentWindowMinutes:  defaultRecentWindowMinutes,
			RecentLimit:          defaultRecentLimit,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
