package config

const (
	defaultConfigPath             = "~/.config/binky/config.toml"
	defaultDataDir                = "~/.local/share/binky"
	defaultTempDir                = "~/.cache/binky/tmp"
	defaultModelsDir              = "~/.local/share/binky/models"
	defaultLogDir                 = "~/.local/share/binky/logs"
	defaultWindowSeconds          = 300
	defaultTranscriptionThreads   = 4
	defaultLanguage               = "de"
	defaultNumClusters            = 2
	defaultClusterThreshold       = 0.5
	defaultSoloThreshold          = 0.05
	defaultMinDurationOn          = 0.3
	defaultMinDurationOff         = 0.5
	defaultDiarizationThreads     = 2
	defaultAcquisitionTimeout     = 1800
	defaultChunkSize              = 64 * 1024
	defaultUserAgent              = "binky/dev"
	defaultMaxConcurrentInference = 1
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogMaxSizeMB           = 20
	defaultLogMaxBackups          = 5
	defaultLogMaxAgeDays          = 30
	defaultMetricsBind            = "127.0.0.1:9464"
	defaultNtfyTimeoutSeconds     = 10
	minWindowSeconds              = 30
	maxWindowSeconds              = 1800
	minChunkSize                  = 4 * 1024
	languageEnvVar                = "BINKY_LANGUAGE"
	modelsDirEnvVar               = "BINKY_MODELS_DIR"
	languageAuto                  = "auto"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			TempDir:   defaultTempDir,
			ModelsDir: defaultModelsDir,
			LogDir:    defaultLogDir,
		},
		Transcription: Transcription{
			WindowSeconds:   defaultWindowSeconds,
			Threads:         defaultTranscriptionThreads,
			DefaultLanguage: defaultLanguage,
			SegmentEvents:   true,
		},
		Diarization: Diarization{
			Enabled:          true,
			NumClusters:      defaultNumClusters,
			ClusterThreshold: defaultClusterThreshold,
			SoloThreshold:    defaultSoloThreshold,
			MinDurationOn:    defaultMinDurationOn,
			MinDurationOff:   defaultMinDurationOff,
			Threads:          defaultDiarizationThreads,
		},
		Acquisition: Acquisition{
			TimeoutSeconds: defaultAcquisitionTimeout,
			ChunkSize:      defaultChunkSize,
			UserAgent:      defaultUserAgent,
		},
		Pipeline: Pipeline{
			MaxConcurrentInference: defaultMaxConcurrentInference,
			AutoDiarize:            true,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
			NotifyTranscription:   true,
			NotifyDiarization:     true,
			NotifyErrors:          true,
		},
	}
}
