package session

import (
	"context"
	"errors"

	"github.com/rbright/viva/internal/archive"
	"github.com/rbright/viva/internal/vad"
)

// ErrDeviceUnavailable reports a capture device that could not be acquired.
// Unlike every other collaborator failure this one is fatal to the loop.
var ErrDeviceUnavailable = errors.New("audio capture device unavailable")

// Microphone opens one capture stream per phase. The engine owns the stream
// for the duration of the phase and stops it before the next open.
type Microphone interface {
	Open(ctx context.Context) (vad.Stream, error)
}

// MicrophoneFunc adapts a function to the Microphone interface.
type MicrophoneFunc func(ctx context.Context) (vad.Stream, error)

func (f MicrophoneFunc) Open(ctx context.Context) (vad.Stream, error) {
	return f(ctx)
}

// Speaker plays one mono s16 clip and blocks until drained or canceled.
// audio.Player satisfies it.
type Speaker interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}

// noopSpeaker keeps the loop running when no playback channel is wired.
type noopSpeaker struct{}

func (noopSpeaker) Play(context.Context, []int16, int) error { return nil }

// Archiver is the session-facing subset of the archive client. All calls
// except Finalize are best-effort.
type Archiver interface {
	PutTurnAudio(ctx context.Context, sessionID string, turn int, wav []byte) error
	PutTurnTexts(ctx context.Context, sessionID string, turn int, texts archive.TurnTexts) error
	PutManifest(ctx context.Context, sessionID string, manifest archive.Manifest) error
	PutSessionAudio(ctx context.Context, sessionID string, wav []byte) error
	Finalize(ctx context.Context, sessionID string, req archive.FinalizeRequest) error
}

// noopArchiver preserves session flow when archiving is disabled.
type noopArchiver struct{}

func (noopArchiver) PutTurnAudio(context.Context, string, int, []byte) error { return nil }

func (noopArchiver) PutTurnTexts(context.Context, string, int, archive.TurnTexts) error {
	return nil
}

func (noopArchiver) PutManifest(context.Context, string, archive.Manifest) error { return nil }

func (noopArchiver) PutSessionAudio(context.Context, string, []byte) error { return nil }

func (noopArchiver) Finalize(context.Context, string, archive.FinalizeRequest) error { return nil }
