// Package tts synthesizes spoken replies. Failure here is always non-fatal
// to a turn; the orchestrator just skips the audio.
package tts

import (
	"context"
	"time"
)

// Clip is one synthesized reply: raw s16le mono PCM plus its shape.
type Clip struct {
	PCM        []byte
	SampleRate int
	MIMEType   string
	Duration   time.Duration
}

// Synthesizer turns reply text into audio.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (Clip, error)
}
