package vad

import (
	"context"
	"errors"
	"time"

	"github.com/rbright/viva/internal/audio"
)

// StopReason enumerates why one listening phase ended.
type StopReason string

const (
	StopSilence           StopReason = "silence"
	StopMaxDuration       StopReason = "max_duration"
	StopForcedBeforeStart StopReason = "forced_before_start"
	StopForcedAfterStart  StopReason = "forced_after_start"
)

// ErrStreamEnded reports a capture stream that closed before speech was
// detected; the caller should substitute a placeholder buffer.
var ErrStreamEnded = errors.New("capture stream ended before speech")

// Outcome is the captured audio of one listening phase.
type Outcome struct {
	PCM         []byte
	Duration    time.Duration
	Started     bool
	ForcedStart bool
	StopReason  StopReason
	SampleRate  int
	MIMEType    string
}

// Tuning collects the recorder thresholds. Ratios are relative to the
// calibrated baseline, which makes detection independent of mic gain.
type Tuning struct {
	StartRatio  float64
	StopRatio   float64
	StartFrames int
	StopFrames  int
	Silence     time.Duration
	Grace       time.Duration
	MinDuration time.Duration
	MaxDuration time.Duration
	MaxWait     time.Duration
}

// DefaultTuning mirrors the shipped config defaults.
func DefaultTuning() Tuning {
	return Tuning{
		StartRatio:  3.0,
		StopRatio:   1.6,
		StartFrames: 3,
		StopFrames:  8,
		Silence:     900 * time.Millisecond,
		Grace:       300 * time.Millisecond,
		MinDuration: 700 * time.Millisecond,
		MaxDuration: 90 * time.Second,
		MaxWait:     15 * time.Second,
	}
}

// Recorder runs one silence-gated listening phase over a chunk stream.
// States: waiting-for-speech -> recording -> stopped.
type Recorder struct {
	tuning   Tuning
	baseline float64
	measure  func([]byte) float64
}

// NewRecorder builds a recorder against a calibrated baseline. The baseline
// is floored at MinBaseline so the loudness ratio cannot blow up.
func NewRecorder(tuning Tuning, baseline float64) *Recorder {
	if baseline < MinBaseline {
		baseline = MinBaseline
	}
	meter := audio.NewLevelMeter(audio.CaptureSampleRate)
	return &Recorder{
		tuning:   tuning,
		baseline: baseline,
		measure:  meter.Measure,
	}
}

// Record consumes the stream until a stop condition holds and returns the
// captured audio. Cancellation stops immediately: before speech it yields an
// empty forced_before_start outcome, after speech it returns what was heard.
func (r *Recorder) Record(ctx context.Context, stream Stream) (Outcome, error) {
	chunkDur := time.Duration(audio.ChunkMS) * time.Millisecond

	var (
		buffer   []byte
		preRoll  [][]byte
		loud     int
		quiet    int
		waited   time.Duration
		recorded time.Duration
		started  bool
		forced   bool
	)

	begin := func() {
		started = true
		loud = 0
		quiet = 0
		// The trigger window belongs to the utterance; without it the first
		// syllables are clipped.
		for _, held := range preRoll {
			buffer = append(buffer, held...)
			recorded += chunkDur
		}
		preRoll = nil
	}

	outcome := func(reason StopReason) Outcome {
		return Outcome{
			PCM:         buffer,
			Duration:    audio.PCMDuration(len(buffer), audio.CaptureSampleRate, 1),
			Started:     started,
			ForcedStart: forced,
			StopReason:  reason,
			SampleRate:  audio.CaptureSampleRate,
			MIMEType:    "audio/wav",
		}
	}

	for {
		select {
		case <-ctx.Done():
			if started {
				return outcome(StopForcedAfterStart), nil
			}
			return outcome(StopForcedBeforeStart), nil
		case chunk, ok := <-stream.Chunks():
			if !ok {
				if !started {
					return outcome(StopForcedBeforeStart), ErrStreamEnded
				}
				return outcome(StopForcedAfterStart), nil
			}

			ratio := r.measure(chunk) / r.baseline

			if !started {
				waited += chunkDur

				preRoll = append(preRoll, chunk)
				if len(preRoll) > r.tuning.StartFrames {
					preRoll = preRoll[1:]
				}

				if ratio >= r.tuning.StartRatio {
					loud++
				} else {
					loud = 0
				}

				if loud >= r.tuning.StartFrames {
					begin()
				} else if waited >= r.tuning.MaxWait {
					// Force progress rather than stalling the turn forever.
					forced = true
					begin()
				}
				continue
			}

			buffer = append(buffer, chunk...)
			recorded += chunkDur

			if ratio < r.tuning.StopRatio {
				quiet++
			} else {
				quiet = 0
			}

			if recorded >= r.tuning.MaxDuration {
				return outcome(StopMaxDuration), nil
			}

			quietDur := time.Duration(quiet) * chunkDur
			if recorded >= r.tuning.MinDuration &&
				quiet >= r.tuning.StopFrames &&
				quietDur >= r.tuning.Silence+r.tuning.Grace {
				return outcome(StopSilence), nil
			}
		}
	}
}
