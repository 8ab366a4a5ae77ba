package config

import (
	"strings"
	"testing"
)

func TestParseValidLegacyConfig(t *testing.T) {
	input := `
# capture tuning
audio.input = "Elgato"
vad.start_ratio = 3.5
vad.silence_ms = 1200
exchange.provider = gemini
tts.enable = false
session.max_turns = 8
`

	cfg, warnings, err := Parse(input, Default())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Audio.Input != "Elgato" {
		t.Fatalf("unexpected audio.input: %s", cfg.Audio.Input)
	}
	if cfg.VAD.StartRatio != 3.5 {
		t.Fatalf("unexpected vad.start_ratio: %v", cfg.VAD.StartRatio)
	}
	if cfg.VAD.SilenceMS != 1200 {
		t.Fatalf("unexpected vad.silence_ms: %d", cfg.VAD.SilenceMS)
	}
	if cfg.Exchange.Provider != "gemini" {
		t.Fatalf("unexpected exchange.provider: %s", cfg.Exchange.Provider)
	}
	if cfg.TTS.Enable {
		t.Fatal("expected tts.enable=false")
	}
	if cfg.Session.MaxTurns != 8 {
		t.Fatalf("unexpected session.max_turns: %d", cfg.Session.MaxTurns)
	}

	if len(warnings) == 0 || !strings.Contains(warnings[0].Message, "deprecated") {
		t.Fatalf("expected legacy format deprecation warning, got %#v", warnings)
	}
}

func TestParseEmptyContentReturnsDefaults(t *testing.T) {
	cfg, _, err := Parse("   \n\t", Default())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %#v", cfg)
	}
}

func TestParseUnknownKeyFails(t *testing.T) {
	_, _, err := Parse(`foo.bar = 1`, Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseLineNumberOnError(t *testing.T) {
	_, _, err := Parse("\n\nthis is bad", Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected line number in error, got %v", err)
	}
}

func TestParseSingleQuotedStrings(t *testing.T) {
	cfg, _, err := Parse(`tts.voice = 'nova'`, Default())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.TTS.Voice != "nova" {
		t.Fatalf("unexpected tts.voice: %q", cfg.TTS.Voice)
	}
}

func TestParseRejectsUnterminatedSingleQuotedString(t *testing.T) {
	_, _, err := Parse(`tts.voice = 'nova`, Default())
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "closing single quote") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseTypedValueErrors(t *testing.T) {
	_, _, err := Parse(`vad.silence_ms = soon`, Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "expects an integer") {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err = Parse(`tts.enable = perhaps`, Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "expects a boolean") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseLegacyValidatesMergedResult(t *testing.T) {
	_, _, err := Parse(`vad.stop_ratio = 9.0`, Default())
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "stop_ratio") {
		t.Fatalf("unexpected error: %v", err)
	}
}
