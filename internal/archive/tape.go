package archive

import (
	"errors"
	"sync"
	"time"

	"github.com/rbright/viva/internal/audio"
)

// ErrTapeSealed reports an append after the tape was sealed for finalization.
var ErrTapeSealed = errors.New("session tape already sealed")

// Tape accumulates the whole session's audio at the capture rate: every
// captured user turn plus every synthesized reply, in order. It is the only
// resource shared across turn boundaries and is sealed exactly once.
type Tape struct {
	mu     sync.Mutex
	pcm    []byte
	sealed bool
	framed []byte
}

// NewTape starts an empty session tape.
func NewTape() *Tape {
	return &Tape{}
}

// AppendUser adds captured 16kHz mono PCM.
func (t *Tape) AppendUser(pcm []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return ErrTapeSealed
	}
	t.pcm = append(t.pcm, pcm...)
	return nil
}

// AppendReply adds a synthesized clip, resampling it to the tape rate.
func (t *Tape) AppendReply(pcm []byte, sampleRate int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sealed {
		return ErrTapeSealed
	}
	if sampleRate == audio.CaptureSampleRate {
		t.pcm = append(t.pcm, pcm...)
		return nil
	}

	samples := audio.BytesToInt16(pcm)
	resampled := audio.Resample(samples, sampleRate, audio.CaptureSampleRate)
	t.pcm = append(t.pcm, audio.Int16ToBytes(resampled)...)
	return nil
}

// Duration is the tape length so far.
func (t *Tape) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return audio.PCMDuration(len(t.pcm), audio.CaptureSampleRate, 1)
}

// Empty reports whether anything was recorded.
func (t *Tape) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pcm) == 0
}

// Seal stops the tape and returns the WAV-framed artifact. Idempotent so a
// retried finalization reuses the same bytes.
func (t *Tape) Seal() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.sealed {
		t.sealed = true
		t.framed = audio.EncodeWAV(t.pcm, audio.CaptureSampleRate, 1)
	}
	return t.framed
}
