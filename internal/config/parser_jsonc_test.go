package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true,
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.NotContains(t, normalized, ",]")
	require.NotContains(t, normalized, ",}")
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, "// and /* comment-like */")
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestEnsureSingleJSONValueRejectsExtraPayload(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(`{"one":1}{"two":2}`))
	var payload map[string]any
	require.NoError(t, decoder.Decode(&payload))

	err := ensureSingleJSONValue(decoder)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8) // line2, col2
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestParseJSONCAppliesNestedSections(t *testing.T) {
	cfg, _, err := parseJSONC(`{
  // capture tuning for a noisy room
  "vad": {
    "start_ratio": 3.5,
    "silence_ms": 1200,
  },
  "exchange": {
    "provider": " Gemini ",
    "timeout_ms": 20000
  },
  "tts": {"voice": "  nova  "},
  "session": {"max_turns": 12}
}`, Default())
	require.NoError(t, err)
	require.Equal(t, 3.5, cfg.VAD.StartRatio)
	require.Equal(t, 1200, cfg.VAD.SilenceMS)
	require.Equal(t, "gemini", cfg.Exchange.Provider)
	require.Equal(t, 20000, cfg.Exchange.TimeoutMS)
	require.Equal(t, "nova", cfg.TTS.Voice)
	require.Equal(t, 12, cfg.Session.MaxTurns)

	// untouched sections keep their defaults
	require.Equal(t, Default().VAD.MaxDurationMS, cfg.VAD.MaxDurationMS)
	require.Equal(t, Default().Archive.BaseURL, cfg.Archive.BaseURL)
}

func TestParseJSONCRejectsUnknownFields(t *testing.T) {
	_, _, err := parseJSONC(`{"vad":{"start_ration": 3.0}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := parseJSONC(`{"tts":{"enable":false}}{"tts":{"enable":true}}`, Default())
	require.Error(t, err)
	require.True(
		t,
		strings.Contains(err.Error(), "multiple JSON values") || strings.Contains(err.Error(), "unknown field"),
		"unexpected error: %v",
		err,
	)
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := parseJSONC(`{
  "exchange": {"provider": 123}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line")
	require.Contains(t, err.Error(), "column")
}

func TestParseJSONCValidatesMergedResult(t *testing.T) {
	_, _, err := parseJSONC(`{"vad":{"start_ratio": 0.5}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "vad.start_ratio")
}
