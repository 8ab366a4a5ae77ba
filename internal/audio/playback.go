package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Sink describes one Pulse output surfaced to viva.
type Sink struct {
	ID          string
	Description string
	State       string
	Muted       bool
	Default     bool
}

// ListSinks returns available Pulse outputs with default metadata.
func ListSinks(_ context.Context) ([]Sink, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSink, err := client.DefaultSink()
	if err != nil {
		return nil, fmt.Errorf("read default sink: %w", err)
	}
	defaultID := defaultSink.ID()

	var sinkInfos pulseproto.GetSinkInfoListReply
	if err := client.RawRequest(&pulseproto.GetSinkInfoList{}, &sinkInfos); err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}

	sinks := make([]Sink, 0, len(sinkInfos))
	for _, info := range sinkInfos {
		if info == nil {
			continue
		}
		sinks = append(sinks, Sink{
			ID:          info.SinkName,
			Description: info.Device,
			State:       deviceStateString(info.State),
			Muted:       info.Mute,
			Default:     info.SinkName == defaultID,
		})
	}
	return sinks, nil
}

// SelectSink resolves an audio.output preference against a sink list.
func SelectSink(sinks []Sink, output string) (Sink, error) {
	if len(sinks) == 0 {
		return Sink{}, errors.New("no audio output sinks found")
	}

	output = strings.TrimSpace(strings.ToLower(output))
	if output == "" || output == "default" {
		for _, sink := range sinks {
			if sink.Default {
				return sink, nil
			}
		}
		return Sink{}, errors.New("default audio sink is unavailable")
	}

	for _, sink := range sinks {
		if strings.Contains(strings.ToLower(sink.ID), output) ||
			strings.Contains(strings.ToLower(sink.Description), output) {
			return sink, nil
		}
	}
	return Sink{}, fmt.Errorf("audio.output %q did not match any sink", output)
}

// Player owns the single playback channel used for spoken replies. One Player
// exists per session; each Play call opens and drains exactly one stream.
type Player struct {
	client *pulse.Client
	sink   *pulse.Sink
	info   Sink
}

// OpenPlayer connects to Pulse and resolves the configured output sink.
func OpenPlayer(ctx context.Context, output string) (*Player, error) {
	sinks, err := ListSinks(ctx)
	if err != nil {
		return nil, err
	}
	selected, err := SelectSink(sinks, output)
	if err != nil {
		return nil, err
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	sink, err := client.SinkByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve sink %q: %w", selected.ID, err)
	}

	return &Player{client: client, sink: sink, info: selected}, nil
}

// Sink returns playback metadata for logging and diagnostics.
func (p *Player) Sink() Sink {
	return p.info
}

// Play streams mono s16 samples to the sink and blocks until drained or the
// context is canceled. Cancellation ends the stream at the next read boundary.
func (p *Player) Play(ctx context.Context, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if ctx.Err() != nil {
			return 0, pulse.EndOfData
		}
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := p.client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.06),
		pulse.PlaybackMediaName("viva reply"),
		pulse.PlaybackSink(p.sink),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play reply stream: %w", err)
	}
	return ctx.Err()
}

// Close releases the Pulse connection.
func (p *Player) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
