package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Audio.CalibrationSeconds <= 0 || cfg.Audio.CalibrationSeconds > 30 {
		return nil, fmt.Errorf("audio.calibration_seconds must be in (0, 30]")
	}

	if cfg.VAD.StartRatio <= 1 {
		return nil, fmt.Errorf("vad.start_ratio must be > 1")
	}
	if cfg.VAD.StopRatio < 1 {
		return nil, fmt.Errorf("vad.stop_ratio must be >= 1")
	}
	if cfg.VAD.StopRatio > cfg.VAD.StartRatio {
		return nil, fmt.Errorf("vad.stop_ratio must not exceed vad.start_ratio")
	}
	if cfg.VAD.StartFrames < 1 {
		return nil, fmt.Errorf("vad.start_frames must be >= 1")
	}
	if cfg.VAD.StopFrames < 1 {
		return nil, fmt.Errorf("vad.stop_frames must be >= 1")
	}
	if cfg.VAD.SilenceMS <= 0 {
		return nil, fmt.Errorf("vad.silence_ms must be > 0")
	}
	if cfg.VAD.GraceMS < 0 {
		return nil, fmt.Errorf("vad.grace_ms must be >= 0")
	}
	if cfg.VAD.MinDurationMS < 0 {
		return nil, fmt.Errorf("vad.min_duration_ms must be >= 0")
	}
	if cfg.VAD.MaxDurationMS <= cfg.VAD.MinDurationMS {
		return nil, fmt.Errorf("vad.max_duration_ms must exceed vad.min_duration_ms")
	}
	if cfg.VAD.MaxWaitMS <= 0 {
		return nil, fmt.Errorf("vad.max_wait_ms must be > 0")
	}

	if cfg.Intent.LowThreshold <= 0 {
		return nil, fmt.Errorf("intent.low_threshold must be > 0")
	}
	if cfg.Intent.MediumThreshold < cfg.Intent.LowThreshold {
		return nil, fmt.Errorf("intent.medium_threshold must be >= intent.low_threshold")
	}
	if cfg.Intent.HighThreshold < cfg.Intent.MediumThreshold {
		return nil, fmt.Errorf("intent.high_threshold must be >= intent.medium_threshold")
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Exchange.Provider))
	if provider != "openai" && provider != "gemini" {
		return nil, fmt.Errorf("exchange.provider must be one of: openai, gemini")
	}
	if strings.TrimSpace(cfg.Exchange.APIKeyEnv) == "" {
		return nil, fmt.Errorf("exchange.api_key_env must not be empty")
	}
	if cfg.Exchange.TimeoutMS <= 0 {
		return nil, fmt.Errorf("exchange.timeout_ms must be > 0")
	}

	if cfg.TTS.Enable {
		if strings.TrimSpace(cfg.TTS.Voice) == "" {
			return nil, fmt.Errorf("tts.voice must not be empty when tts.enable=true")
		}
		if cfg.TTS.Speed < 0.25 || cfg.TTS.Speed > 4.0 {
			return nil, fmt.Errorf("tts.speed must be in [0.25, 4.0]")
		}
		if cfg.TTS.TimeoutMS <= 0 {
			return nil, fmt.Errorf("tts.timeout_ms must be > 0")
		}
	}

	if cfg.Archive.Enable {
		base := strings.TrimSpace(cfg.Archive.BaseURL)
		if base == "" {
			return nil, fmt.Errorf("archive.base_url must not be empty when archive.enable=true")
		}
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			return nil, fmt.Errorf("archive.base_url must start with http:// or https://")
		}
		if cfg.Archive.TimeoutMS <= 0 {
			return nil, fmt.Errorf("archive.timeout_ms must be > 0")
		}
	}

	if cfg.Observe.Enable && strings.TrimSpace(cfg.Observe.Listen) == "" {
		return nil, fmt.Errorf("observe.listen must not be empty when observe.enable=true")
	}

	if cfg.Session.MaxTurns < 0 {
		return nil, fmt.Errorf("session.max_turns must be >= 0")
	}
	if strings.TrimSpace(cfg.Session.Language) == "" {
		return nil, fmt.Errorf("session.language must not be empty")
	}

	return warnings, nil
}
