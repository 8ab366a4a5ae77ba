package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "zero calibration window", mutate: func(c *Config) { c.Audio.CalibrationSeconds = 0 }, wantErr: "calibration_seconds"},
		{name: "oversized calibration window", mutate: func(c *Config) { c.Audio.CalibrationSeconds = 45 }, wantErr: "calibration_seconds"},
		{name: "start ratio too low", mutate: func(c *Config) { c.VAD.StartRatio = 1.0 }, wantErr: "vad.start_ratio"},
		{name: "stop ratio below one", mutate: func(c *Config) { c.VAD.StopRatio = 0.5 }, wantErr: "vad.stop_ratio"},
		{name: "stop ratio above start ratio", mutate: func(c *Config) { c.VAD.StopRatio = 5.0 }, wantErr: "vad.stop_ratio"},
		{name: "zero start frames", mutate: func(c *Config) { c.VAD.StartFrames = 0 }, wantErr: "vad.start_frames"},
		{name: "zero stop frames", mutate: func(c *Config) { c.VAD.StopFrames = 0 }, wantErr: "vad.stop_frames"},
		{name: "zero silence window", mutate: func(c *Config) { c.VAD.SilenceMS = 0 }, wantErr: "vad.silence_ms"},
		{name: "negative grace window", mutate: func(c *Config) { c.VAD.GraceMS = -1 }, wantErr: "vad.grace_ms"},
		{name: "max duration below min", mutate: func(c *Config) { c.VAD.MaxDurationMS = c.VAD.MinDurationMS }, wantErr: "vad.max_duration_ms"},
		{name: "zero max wait", mutate: func(c *Config) { c.VAD.MaxWaitMS = 0 }, wantErr: "vad.max_wait_ms"},
		{name: "zero low threshold", mutate: func(c *Config) { c.Intent.LowThreshold = 0 }, wantErr: "intent.low_threshold"},
		{name: "medium below low", mutate: func(c *Config) { c.Intent.MediumThreshold = 1.0 }, wantErr: "intent.medium_threshold"},
		{name: "high below medium", mutate: func(c *Config) { c.Intent.HighThreshold = 2.0 }, wantErr: "intent.high_threshold"},
		{name: "unknown provider", mutate: func(c *Config) { c.Exchange.Provider = "parrot" }, wantErr: "exchange.provider"},
		{name: "empty api key env", mutate: func(c *Config) { c.Exchange.APIKeyEnv = " " }, wantErr: "api_key_env"},
		{name: "zero exchange timeout", mutate: func(c *Config) { c.Exchange.TimeoutMS = 0 }, wantErr: "exchange.timeout_ms"},
		{name: "empty voice with tts enabled", mutate: func(c *Config) { c.TTS.Voice = "" }, wantErr: "tts.voice"},
		{name: "speed out of range", mutate: func(c *Config) { c.TTS.Speed = 9 }, wantErr: "tts.speed"},
		{name: "empty archive url when enabled", mutate: func(c *Config) { c.Archive.BaseURL = "" }, wantErr: "archive.base_url"},
		{name: "archive url without scheme", mutate: func(c *Config) { c.Archive.BaseURL = "127.0.0.1:8787" }, wantErr: "archive.base_url"},
		{name: "empty observe listen when enabled", mutate: func(c *Config) { c.Observe.Listen = "" }, wantErr: "observe.listen"},
		{name: "negative turn cap", mutate: func(c *Config) { c.Session.MaxTurns = -1 }, wantErr: "session.max_turns"},
		{name: "empty language", mutate: func(c *Config) { c.Session.Language = "" }, wantErr: "session.language"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateSkipsDisabledSections(t *testing.T) {
	cfg := Default()
	cfg.TTS.Enable = false
	cfg.TTS.Voice = ""
	cfg.TTS.Speed = 99
	cfg.Archive.Enable = false
	cfg.Archive.BaseURL = ""
	cfg.Observe.Enable = false
	cfg.Observe.Listen = ""

	_, err := Validate(cfg)
	require.NoError(t, err)
}
