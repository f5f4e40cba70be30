package config

const (
	defaultDataDir              = "~/.local/share/notesmith"
	defaultUploadDir            = "~/.local/share/notesmith/uploads"
	defaultLogDir               = "~/.local/share/notesmith/logs"
	defaultAPIBind              = "127.0.0.1:1314"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultTranscriptionBaseURL = "https://api.siliconflow.cn/v1"
	defaultTranscriptionModel   = "FunAudioLLM/SenseVoiceSmall"
	defaultTranscriptionTimeout = 300
	defaultLLMBaseURL           = "https://api.deepseek.com/v1"
	defaultLLMModel             = "deepseek-chat"
	defaultLLMTimeout           = 240
	defaultDocParseBaseURL      = "https://mineru.net/api/v4"
	defaultDocParseModelMode    = "vlm"
	defaultDocParsePollInterval = 10
	defaultDocParseMaxAttempts  = 60
	defaultDocParseMaxFileMiB   = 200
	defaultDocParseTimeout      = 600
	defaultTranscodeWorkers     = 2
	defaultAPIWorkers           = 10
	defaultRetryMaxAttempts     = 3
	defaultRetryBaseDelayMS     = 2000
	defaultRetryMaxDelayMS      = 10000
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			UploadDir: defaultUploadDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscriptionBaseURL,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeout,
		},
		DocParse: DocParse{
			BaseURL:         defaultDocParseBaseURL,
			ModelMode:       defaultDocParseModelMode,
			PollInterval:    defaultDocParsePollInterval,
			MaxPollAttempts: defaultDocParseMaxAttempts,
			MaxFileSizeMiB:  defaultDocParseMaxFileMiB,
			TimeoutSeconds:  defaultDocParseTimeout,
		},
		Workflow: Workflow{
			MaxTranscodeWorkers: defaultTranscodeWorkers,
			MaxAPIWorkers:       defaultAPIWorkers,
			RetryMaxAttempts:    defaultRetryMaxAttempts,
			RetryBaseDelayMS:    defaultRetryBaseDelayMS,
			RetryMaxDelayMS:     defaultRetryMaxDelayMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
