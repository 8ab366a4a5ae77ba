// Package vad implements ambient-noise calibration and the silence-gated
// recorder that decides when the speaker starts and stops talking.
package vad

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rbright/viva/internal/audio"
)

// Baseline bounds, in normalized RMS where full-scale PCM is 1.0. Rooms
// quieter than MinBaseline make ratio thresholds twitchy; louder than
// MaxBaseline means the mic is picking up something other than ambience.
const (
	MinBaseline      = 0.003
	MaxBaseline      = 0.04
	FallbackBaseline = 0.012

	// quietShare is the fraction of samples kept after trimming loud outliers.
	quietShare = 0.7
)

// ErrNoSamples reports a calibration window that produced no usable loudness
// samples; the caller should continue on the fallback baseline.
var ErrNoSamples = errors.New("calibration captured no samples")

// CalibrationResult is the ambient baseline measured ahead of one listening
// phase. Immutable once produced.
type CalibrationResult struct {
	Baseline float64
	Samples  int
	Fallback bool
}

// FallbackResult is the conservative stand-in used when measurement fails.
func FallbackResult() CalibrationResult {
	return CalibrationResult{Baseline: FallbackBaseline, Fallback: true}
}

// Stream is the chunked PCM source consumed by calibration and recording.
// audio.Capture satisfies it.
type Stream interface {
	Chunks() <-chan []byte
	Stop() error
}

// OpenStream acquires the capture device for one phase. The device is
// released when the phase ends, never shared across phases.
type OpenStream func(ctx context.Context) (Stream, error)

// Calibrate opens the device once, measures band-limited loudness for the
// window, and reduces the samples to a clamped baseline. The device is
// released on every exit path.
func Calibrate(ctx context.Context, open OpenStream, window time.Duration) (CalibrationResult, error) {
	stream, err := open(ctx)
	if err != nil {
		return FallbackResult(), err
	}
	defer func() { _ = stream.Stop() }()

	meter := audio.NewLevelMeter(audio.CaptureSampleRate)
	deadline := time.NewTimer(window)
	defer deadline.Stop()

	var samples []float64
	for {
		select {
		case <-ctx.Done():
			return BaselineFromSamples(samples), ctx.Err()
		case <-deadline.C:
			return BaselineFromSamples(samples), nil
		case chunk, ok := <-stream.Chunks():
			if !ok {
				result := BaselineFromSamples(samples)
				if result.Fallback {
					return result, ErrNoSamples
				}
				return result, nil
			}
			samples = append(samples, meter.Measure(chunk))
		}
	}
}

// BaselineFromSamples trims loud outliers, takes the median of the quietest
// samples, and clamps into [MinBaseline, MaxBaseline]. Zero usable samples
// yield the fallback.
func BaselineFromSamples(samples []float64) CalibrationResult {
	finite := make([]float64, 0, len(samples))
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		finite = append(finite, s)
	}
	if len(finite) == 0 {
		return FallbackResult()
	}

	sort.Float64s(finite)
	keep := int(float64(len(finite)) * quietShare)
	if keep < 1 {
		keep = 1
	}
	quietest := finite[:keep]

	var median float64
	mid := len(quietest) / 2
	if len(quietest)%2 == 1 {
		median = quietest[mid]
	} else {
		median = (quietest[mid-1] + quietest[mid]) / 2
	}

	baseline := median
	if baseline < MinBaseline {
		baseline = MinBaseline
	}
	if baseline > MaxBaseline {
		baseline = MaxBaseline
	}

	return CalibrationResult{Baseline: baseline, Samples: len(finite)}
}
