package config

const (
	defaultDataDir              = "~/.local/share/cvasr/common_voice"
	defaultOutputDir            = "~/.local/share/cvasr/output"
	defaultLogDir               = "~/.local/share/cvasr/logs"
	defaultManifestName         = "cv-valid-dev.csv"
	defaultGatewayBind          = "127.0.0.1:8001"
	defaultInferURL             = "http://127.0.0.1:8001/asr"
	defaultRequestTimeout       = 120
	defaultMaxBodyMB            = 64
	defaultModelID              = "facebook/wav2vec2-large-960h"
	defaultTargetSampleRate     = 16000
	defaultModelTimeoutSeconds  = 60
	defaultBatchConcurrency     = 4
	defaultSearchURL            = "http://localhost:9200"
	defaultSearchIndex          = "cv-transcriptions"
	defaultSearchShards         = 1
	defaultSearchReplicas       = 0
	defaultSearchTimeoutSeconds = 30
	defaultLedgerPath           = "~/.local/share/cvasr/runs.db"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			OutputDir:    defaultOutputDir,
			ManifestName: defaultManifestName,
			LogDir:       defaultLogDir,
		},
		Gateway: Gateway{
			Bind:                  defaultGatewayBind,
			InferURL:              defaultInferURL,
			RequestTimeoutSeconds: defaultRequestTimeout,
			MaxBodyMB:             defaultMaxBodyMB,
		},
		Model: Model{
			ID:               defaultModelID,
			TargetSampleRate: defaultTargetSampleRate,
			TimeoutSeconds:   defaultModelTimeoutSeconds,
		},
		Batch: Batch{
			Concurrency: defaultBatchConcurrency,
			DeleteAudio: true,
			Lock:        true,
		},
		Search: Search{
			URL:            defaultSearchURL,
			Index:          defaultSearchIndex,
			Shards:         defaultSearchShards,
			Replicas:       defaultSearchReplicas,
			TimeoutSeconds: defaultSearchTimeoutSeconds,
		},
		Ledger: Ledger{
			Enabled: true,
			Path:    defaultLedgerPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
