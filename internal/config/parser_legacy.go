package config

import (
	"fmt"
	"strconv"
	"strings"
)

func parseLegacy(content string, base Config) (Config, []Warning, error) {
	cfg := base

	for idx, raw := range strings.Split(content, "\n") {
		lineNo := idx + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, rawValue, found := strings.Cut(line, "=")
		if !found {
			return Config{}, nil, fmt.Errorf("line %d: expected key=value, got %q", lineNo, line)
		}

		value, err := unquoteLegacyValue(strings.TrimSpace(rawValue))
		if err != nil {
			return Config{}, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if err := applyLegacyKey(&cfg, strings.TrimSpace(key), value); err != nil {
			return Config{}, nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func unquoteLegacyValue(value string) (string, error) {
	if len(value) >= 1 && value[0] == '"' {
		if len(value) < 2 || value[len(value)-1] != '"' {
			return "", fmt.Errorf("missing closing double quote in %q", value)
		}
		return value[1 : len(value)-1], nil
	}
	if len(value) >= 1 && value[0] == '\'' {
		if len(value) < 2 || value[len(value)-1] != '\'' {
			return "", fmt.Errorf("missing closing single quote in %q", value)
		}
		return value[1 : len(value)-1], nil
	}
	return value, nil
}

func applyLegacyKey(cfg *Config, key, value string) error {
	switch key {
	case "audio.input":
		cfg.Audio.Input = value
	case "audio.fallback":
		cfg.Audio.Fallback = value
	case "audio.output":
		cfg.Audio.Output = value
	case "audio.calibration_seconds":
		return legacyFloat(key, value, &cfg.Audio.CalibrationSeconds)
	case "vad.start_ratio":
		return legacyFloat(key, value, &cfg.VAD.StartRatio)
	case "vad.stop_ratio":
		return legacyFloat(key, value, &cfg.VAD.StopRatio)
	case "vad.start_frames":
		return legacyInt(key, value, &cfg.VAD.StartFrames)
	case "vad.stop_frames":
		return legacyInt(key, value, &cfg.VAD.StopFrames)
	case "vad.silence_ms":
		return legacyInt(key, value, &cfg.VAD.SilenceMS)
	case "vad.grace_ms":
		return legacyInt(key, value, &cfg.VAD.GraceMS)
	case "vad.min_duration_ms":
		return legacyInt(key, value, &cfg.VAD.MinDurationMS)
	case "vad.max_duration_ms":
		return legacyInt(key, value, &cfg.VAD.MaxDurationMS)
	case "vad.max_wait_ms":
		return legacyInt(key, value, &cfg.VAD.MaxWaitMS)
	case "intent.high_threshold":
		return legacyFloat(key, value, &cfg.Intent.HighThreshold)
	case "intent.medium_threshold":
		return legacyFloat(key, value, &cfg.Intent.MediumThreshold)
	case "intent.low_threshold":
		return legacyFloat(key, value, &cfg.Intent.LowThreshold)
	case "exchange.provider":
		cfg.Exchange.Provider = strings.ToLower(value)
	case "exchange.model":
		cfg.Exchange.Model = value
	case "exchange.base_url":
		cfg.Exchange.BaseURL = value
	case "exchange.api_key_env":
		cfg.Exchange.APIKeyEnv = value
	case "exchange.timeout_ms":
		return legacyInt(key, value, &cfg.Exchange.TimeoutMS)
	case "exchange.grpc_health":
		cfg.Exchange.GRPCHealth = value
	case "tts.enable":
		return legacyBool(key, value, &cfg.TTS.Enable)
	case "tts.voice":
		cfg.TTS.Voice = value
	case "tts.model":
		cfg.TTS.Model = value
	case "tts.speed":
		return legacyFloat(key, value, &cfg.TTS.Speed)
	case "tts.timeout_ms":
		return legacyInt(key, value, &cfg.TTS.TimeoutMS)
	case "archive.enable":
		return legacyBool(key, value, &cfg.Archive.Enable)
	case "archive.base_url":
		cfg.Archive.BaseURL = value
	case "archive.timeout_ms":
		return legacyInt(key, value, &cfg.Archive.TimeoutMS)
	case "observe.enable":
		return legacyBool(key, value, &cfg.Observe.Enable)
	case "observe.listen":
		cfg.Observe.Listen = value
	case "session.max_turns":
		return legacyInt(key, value, &cfg.Session.MaxTurns)
	case "session.language":
		cfg.Session.Language = value
	case "debug.keep_audio":
		return legacyBool(key, value, &cfg.Debug.KeepAudio)
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

func legacyBool(key, value string, dst *bool) error {
	parsed, err := strconv.ParseBool(strings.ToLower(value))
	if err != nil {
		return fmt.Errorf("%s expects a boolean, got %q", key, value)
	}
	*dst = parsed
	return nil
}

func legacyInt(key, value string, dst *int) error {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s expects an integer, got %q", key, value)
	}
	*dst = parsed
	return nil
}

func legacyFloat(key, value string, dst *float64) error {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%s expects a number, got %q", key, value)
	}
	*dst = parsed
	return nil
}
