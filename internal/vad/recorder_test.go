package vad

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedMeasure returns the scripted level for each chunk in order,
// holding the last level once the script runs out.
func scriptedMeasure(levels []float64) func([]byte) float64 {
	i := 0
	return func([]byte) float64 {
		if i >= len(levels) {
			return levels[len(levels)-1]
		}
		v := levels[i]
		i++
		return v
	}
}

func preloadChunks(stream *scriptedStream, n int) {
	for i := 0; i < n; i++ {
		stream.chunks <- make([]byte, testChunkBytes)
	}
}

func TestNewRecorderFloorsBaseline(t *testing.T) {
	rec := NewRecorder(DefaultTuning(), 0)
	require.Equal(t, MinBaseline, rec.baseline)

	rec = NewRecorder(DefaultTuning(), 0.02)
	require.Equal(t, 0.02, rec.baseline)
}

func TestRecordIgnoresSingleLoudFrame(t *testing.T) {
	const base = 0.02
	rec := NewRecorder(DefaultTuning(), base)
	rec.measure = scriptedMeasure([]float64{3.5 * base, 0.5 * base, 0.5 * base})

	stream := newScriptedStream(3)
	preloadChunks(stream, 3)
	close(stream.chunks)

	out, err := rec.Record(context.Background(), stream)
	require.ErrorIs(t, err, ErrStreamEnded)

	require.False(t, out.Started)
	require.Equal(t, StopForcedBeforeStart, out.StopReason)
	require.Empty(t, out.PCM)
}

func TestRecordStartsAfterConsecutiveLoudFrames(t *testing.T) {
	const base = 0.02
	levels := make([]float64, 0, 13)
	for i := 0; i < 13; i++ {
		levels = append(levels, 3.5*base)
	}
	levels = append(levels, 0.5*base)

	rec := NewRecorder(DefaultTuning(), base)
	rec.measure = scriptedMeasure(levels)

	// 3 trigger chunks, 10 speech chunks, 24 quiet chunks to cover the
	// 900ms silence window plus 300ms grace.
	stream := newScriptedStream(37)
	preloadChunks(stream, 37)

	out, err := rec.Record(context.Background(), stream)
	require.NoError(t, err)

	require.True(t, out.Started)
	require.False(t, out.ForcedStart)
	require.Equal(t, StopSilence, out.StopReason)
	require.Equal(t, 37*testChunkBytes, len(out.PCM))
	require.Equal(t, 1850*time.Millisecond, out.Duration)
	require.Equal(t, 16000, out.SampleRate)
	require.Equal(t, "audio/wav", out.MIMEType)
}

func TestRecordIncludesTriggerWindowInBuffer(t *testing.T) {
	const base = 0.02
	rec := NewRecorder(DefaultTuning(), base)
	rec.measure = scriptedMeasure([]float64{3.5 * base})

	stream := newScriptedStream(5)
	preloadChunks(stream, 5)
	close(stream.chunks)

	out, err := rec.Record(context.Background(), stream)
	require.NoError(t, err)

	// All five chunks were loud; the three that triggered the start must
	// be in the buffer alongside the two recorded afterwards.
	require.True(t, out.Started)
	require.Equal(t, 5*testChunkBytes, len(out.PCM))
	require.Equal(t, StopForcedAfterStart, out.StopReason)
}

func TestRecordHonorsMinDuration(t *testing.T) {
	const base = 0.02
	tuning := DefaultTuning()
	tuning.MinDuration = 2 * time.Second

	rec := NewRecorder(tuning, base)
	rec.measure = scriptedMeasure([]float64{3.5 * base, 3.5 * base, 3.5 * base, 0.2 * base})

	stream := newScriptedStream(45)
	preloadChunks(stream, 45)

	out, err := rec.Record(context.Background(), stream)
	require.NoError(t, err)

	require.Equal(t, StopSilence, out.StopReason)
	require.Equal(t, tuning.MinDuration, out.Duration)
}

func TestRecordCapsAtMaxDuration(t *testing.T) {
	const base = 0.02
	tuning := DefaultTuning()
	tuning.MaxDuration = 500 * time.Millisecond

	rec := NewRecorder(tuning, base)
	rec.measure = scriptedMeasure([]float64{3.5 * base})

	stream := newScriptedStream(15)
	preloadChunks(stream, 15)

	out, err := rec.Record(context.Background(), stream)
	require.NoError(t, err)

	require.True(t, out.Started)
	require.Equal(t, StopMaxDuration, out.StopReason)
	require.Equal(t, tuning.MaxDuration, out.Duration)
}

func TestRecordForceStartsAfterMaxWait(t *testing.T) {
	const base = 0.02
	tuning := DefaultTuning()
	tuning.MaxWait = 500 * time.Millisecond

	rec := NewRecorder(tuning, base)
	rec.measure = scriptedMeasure([]float64{0.5 * base})

	stream := newScriptedStream(40)
	preloadChunks(stream, 40)

	out, err := rec.Record(context.Background(), stream)
	require.NoError(t, err)

	require.True(t, out.Started)
	require.True(t, out.ForcedStart)
	require.Equal(t, StopSilence, out.StopReason)
	require.Equal(t, 1350*time.Millisecond, out.Duration)
}

func TestRecordCancelBeforeStart(t *testing.T) {
	const base = 0.02
	ctx, cancel := context.WithCancel(context.Background())

	rec := NewRecorder(DefaultTuning(), base)
	rec.measure = scriptedMeasure([]float64{0.5 * base})

	stream := newScriptedStream(0)

	done := make(chan struct{})
	var out Outcome
	var err error
	go func() {
		out, err = rec.Record(ctx, stream)
		close(done)
	}()

	stream.chunks <- make([]byte, testChunkBytes)
	stream.chunks <- make([]byte, testChunkBytes)
	cancel()
	<-done

	require.NoError(t, err)
	require.False(t, out.Started)
	require.Equal(t, StopForcedBeforeStart, out.StopReason)
	require.Empty(t, out.PCM)
}

func TestRecordCancelAfterStart(t *testing.T) {
	const base = 0.02
	ctx, cancel := context.WithCancel(context.Background())

	rec := NewRecorder(DefaultTuning(), base)
	rec.measure = scriptedMeasure([]float64{3.5 * base})

	stream := newScriptedStream(0)

	done := make(chan struct{})
	var out Outcome
	var err error
	go func() {
		out, err = rec.Record(ctx, stream)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		stream.chunks <- make([]byte, testChunkBytes)
	}
	cancel()
	<-done

	require.NoError(t, err)
	require.True(t, out.Started)
	require.Equal(t, StopForcedAfterStart, out.StopReason)
	require.Equal(t, 5*testChunkBytes, len(out.PCM))
}
