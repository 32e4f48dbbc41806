package config

const (
	defaultDataDir             = "~/.local/share/docflow"
	defaultLogDir              = "~/.local/share/docflow/logs"
	defaultStagingDir          = "~/.local/share/docflow/staging"
	defaultAPIBind             = "127.0.0.1:7488"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultCPUWorkers          = 2
	defaultGPUWorkers          = 1
	defaultAPIWorkers          = 4
	defaultPollInterval        = 2
	defaultErrorRetryInterval  = 10
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultMaintenanceInterval = 60
	defaultResultTTLHours      = 24 * 7
	defaultEventHistory        = 512
	defaultMaxFileBytes        = 64 << 20
	defaultMaxArchiveFiles     = 1000
	defaultEmbeddingDims       = 64
	envAPIToken                = "DOCFLOW_API_TOKEN"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			StagingDir: defaultStagingDir,
			APIBind:    defaultAPIBind,
		},
		Workers: Workers{
			CPU: defaultCPUWorkers,
			GPU: defaultGPUWorkers,
			API: defaultAPIWorkers,
		},
		Jobs: Jobs{
			PollInterval:          defaultPollInterval,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			HeartbeatInterval:     defaultHeartbeatInterval,
			HeartbeatTimeout:      defaultHeartbeatTimeout,
			MaintenanceInterval:   defaultMaintenanceInterval,
			DefaultResultTTLHours: defaultResultTTLHours,
			EventHistory:          defaultEventHistory,
		},
		Ingest: Ingest{
			MaxFileBytes:    defaultMaxFileBytes,
			MaxArchiveFiles: defaultMaxArchiveFiles,
			EmbeddingDims:   defaultEmbeddingDims,
		},
		Classification: Classification{
			Labels: map[string][]string{
				"invoice":  {"invoice", "amount due", "payment", "total"},
				"contract": {"agreement", "party", "parties", "hereby", "terms"},
				"report":   {"summary", "findings", "analysis", "results"},
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
