// Package config resolves, parses, validates, and defaults viva configuration.
package config

// Config is the fully materialized runtime configuration used by viva.
type Config struct {
	Audio    AudioConfig
	VAD      VADConfig
	Intent   IntentConfig
	Exchange ExchangeConfig
	TTS      TTSConfig
	Archive  ArchiveConfig
	Observe  ObserveConfig
	Session  SessionConfig
	Debug    DebugConfig
}

// AudioConfig controls capture/playback device selection and calibration.
type AudioConfig struct {
	Input              string
	Fallback           string
	Output             string
	CalibrationSeconds float64
}

// VADConfig controls the silence-gated recorder thresholds and bounds.
type VADConfig struct {
	StartRatio    float64
	StopRatio     float64
	StartFrames   int
	StopFrames    int
	SilenceMS     int
	GraceMS       int
	MinDurationMS int
	MaxDurationMS int
	MaxWaitMS     int
}

// IntentConfig overrides the completion-intent score thresholds.
type IntentConfig struct {
	HighThreshold   float64
	MediumThreshold float64
	LowThreshold    float64
}

// ExchangeConfig selects and tunes the transcription+reply provider.
type ExchangeConfig struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKeyEnv  string
	TimeoutMS  int
	GRPCHealth string
}

// TTSConfig controls spoken-reply synthesis.
type TTSConfig struct {
	Enable    bool
	Voice     string
	Model     string
	Speed     float64
	TimeoutMS int
}

// ArchiveConfig points at the turn/session persistence service.
type ArchiveConfig struct {
	Enable    bool
	BaseURL   string
	TimeoutMS int
}

// ObserveConfig controls the local snapshot/feed endpoint.
type ObserveConfig struct {
	Enable bool
	Listen string
}

// SessionConfig bounds the conversation loop.
type SessionConfig struct {
	MaxTurns int
	Language string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	KeepAudio bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
