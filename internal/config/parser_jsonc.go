package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Audio    *jsoncAudio    `json:"audio"`
	VAD      *jsoncVAD      `json:"vad"`
	Intent   *jsoncIntent   `json:"intent"`
	Exchange *jsoncExchange `json:"exchange"`
	TTS      *jsoncTTS      `json:"tts"`
	Archive  *jsoncArchive  `json:"archive"`
	Observe  *jsoncObserve  `json:"observe"`
	Session  *jsoncSession  `json:"session"`
	Debug    *jsoncDebug    `json:"debug"`
}

type jsoncAudio struct {
	Input              *string  `json:"input"`
	Fallback           *string  `json:"fallback"`
	Output             *string  `json:"output"`
	CalibrationSeconds *float64 `json:"calibration_seconds"`
}

type jsoncVAD struct {
	StartRatio    *float64 `json:"start_ratio"`
	StopRatio     *float64 `json:"stop_ratio"`
	StartFrames   *int     `json:"start_frames"`
	StopFrames    *int     `json:"stop_frames"`
	SilenceMS     *int     `json:"silence_ms"`
	GraceMS       *int     `json:"grace_ms"`
	MinDurationMS *int     `json:"min_duration_ms"`
	MaxDurationMS *int     `json:"max_duration_ms"`
	MaxWaitMS     *int     `json:"max_wait_ms"`
}

type jsoncIntent struct {
	HighThreshold   *float64 `json:"high_threshold"`
	MediumThreshold *float64 `json:"medium_threshold"`
	LowThreshold    *float64 `json:"low_threshold"`
}

type jsoncExchange struct {
	Provider   *string `json:"provider"`
	Model      *string `json:"model"`
	BaseURL    *string `json:"base_url"`
	APIKeyEnv  *string `json:"api_key_env"`
	TimeoutMS  *int    `json:"timeout_ms"`
	GRPCHealth *string `json:"grpc_health"`
}

type jsoncTTS struct {
	Enable    *bool    `json:"enable"`
	Voice     *string  `json:"voice"`
	Model     *string  `json:"model"`
	Speed     *float64 `json:"speed"`
	TimeoutMS *int     `json:"timeout_ms"`
}

type jsoncArchive struct {
	Enable    *bool   `json:"enable"`
	BaseURL   *string `json:"base_url"`
	TimeoutMS *int    `json:"timeout_ms"`
}

type jsoncObserve struct {
	Enable *bool   `json:"enable"`
	Listen *string `json:"listen"`
}

type jsoncSession struct {
	MaxTurns *int    `json:"max_turns"`
	Language *string `json:"language"`
}

type jsoncDebug struct {
	KeepAudio *bool `json:"keep_audio"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	payload.applyTo(&cfg)

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, validatedWarnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) {
	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = strings.TrimSpace(*payload.Audio.Input)
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = strings.TrimSpace(*payload.Audio.Fallback)
		}
		if payload.Audio.Output != nil {
			cfg.Audio.Output = strings.TrimSpace(*payload.Audio.Output)
		}
		if payload.Audio.CalibrationSeconds != nil {
			cfg.Audio.CalibrationSeconds = *payload.Audio.CalibrationSeconds
		}
	}

	if payload.VAD != nil {
		if payload.VAD.StartRatio != nil {
			cfg.VAD.StartRatio = *payload.VAD.StartRatio
		}
		if payload.VAD.StopRatio != nil {
			cfg.VAD.StopRatio = *payload.VAD.StopRatio
		}
		if payload.VAD.StartFrames != nil {
			cfg.VAD.StartFrames = *payload.VAD.StartFrames
		}
		if payload.VAD.StopFrames != nil {
			cfg.VAD.StopFrames = *payload.VAD.StopFrames
		}
		if payload.VAD.SilenceMS != nil {
			cfg.VAD.SilenceMS = *payload.VAD.SilenceMS
		}
		if payload.VAD.GraceMS != nil {
			cfg.VAD.GraceMS = *payload.VAD.GraceMS
		}
		if payload.VAD.MinDurationMS != nil {
			cfg.VAD.MinDurationMS = *payload.VAD.MinDurationMS
		}
		if payload.VAD.MaxDurationMS != nil {
			cfg.VAD.MaxDurationMS = *payload.VAD.MaxDurationMS
		}
		if payload.VAD.MaxWaitMS != nil {
			cfg.VAD.MaxWaitMS = *payload.VAD.MaxWaitMS
		}
	}

	if payload.Intent != nil {
		if payload.Intent.HighThreshold != nil {
			cfg.Intent.HighThreshold = *payload.Intent.HighThreshold
		}
		if payload.Intent.MediumThreshold != nil {
			cfg.Intent.MediumThreshold = *payload.Intent.MediumThreshold
		}
		if payload.Intent.LowThreshold != nil {
			cfg.Intent.LowThreshold = *payload.Intent.LowThreshold
		}
	}

	if payload.Exchange != nil {
		if payload.Exchange.Provider != nil {
			cfg.Exchange.Provider = strings.ToLower(strings.TrimSpace(*payload.Exchange.Provider))
		}
		if payload.Exchange.Model != nil {
			cfg.Exchange.Model = strings.TrimSpace(*payload.Exchange.Model)
		}
		if payload.Exchange.BaseURL != nil {
			cfg.Exchange.BaseURL = strings.TrimSpace(*payload.Exchange.BaseURL)
		}
		if payload.Exchange.APIKeyEnv != nil {
			cfg.Exchange.APIKeyEnv = strings.TrimSpace(*payload.Exchange.APIKeyEnv)
		}
		if payload.Exchange.TimeoutMS != nil {
			cfg.Exchange.TimeoutMS = *payload.Exchange.TimeoutMS
		}
		if payload.Exchange.GRPCHealth != nil {
			cfg.Exchange.GRPCHealth = strings.TrimSpace(*payload.Exchange.GRPCHealth)
		}
	}

	if payload.TTS != nil {
		if payload.TTS.Enable != nil {
			cfg.TTS.Enable = *payload.TTS.Enable
		}
		if payload.TTS.Voice != nil {
			cfg.TTS.Voice = strings.TrimSpace(*payload.TTS.Voice)
		}
		if payload.TTS.Model != nil {
			cfg.TTS.Model = strings.TrimSpace(*payload.TTS.Model)
		}
		if payload.TTS.Speed != nil {
			cfg.TTS.Speed = *payload.TTS.Speed
		}
		if payload.TTS.TimeoutMS != nil {
			cfg.TTS.TimeoutMS = *payload.TTS.TimeoutMS
		}
	}

	if payload.Archive != nil {
		if payload.Archive.Enable != nil {
			cfg.Archive.Enable = *payload.Archive.Enable
		}
		if payload.Archive.BaseURL != nil {
			cfg.Archive.BaseURL = strings.TrimSpace(*payload.Archive.BaseURL)
		}
		if payload.Archive.TimeoutMS != nil {
			cfg.Archive.TimeoutMS = *payload.Archive.TimeoutMS
		}
	}

	if payload.Observe != nil {
		if payload.Observe.Enable != nil {
			cfg.Observe.Enable = *payload.Observe.Enable
		}
		if payload.Observe.Listen != nil {
			cfg.Observe.Listen = strings.TrimSpace(*payload.Observe.Listen)
		}
	}

	if payload.Session != nil {
		if payload.Session.MaxTurns != nil {
			cfg.Session.MaxTurns = *payload.Session.MaxTurns
		}
		if payload.Session.Language != nil {
			cfg.Session.Language = strings.TrimSpace(*payload.Session.Language)
		}
	}

	if payload.Debug != nil && payload.Debug.KeepAudio != nil {
		cfg.Debug.KeepAudio = *payload.Debug.KeepAudio
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
