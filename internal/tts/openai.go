package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rbright/viva/internal/audio"
)

// SynthesisSampleRate is what the speech API emits for raw PCM output.
const SynthesisSampleRate = 24000

// Options configures the OpenAI speech synthesizer.
type Options struct {
	APIKey  string
	Model   string
	Voice   string
	Speed   float64
	BaseURL string
	Timeout time.Duration
}

// OpenAISynthesizer calls the OpenAI speech API and returns raw PCM so the
// clip can be played and resampled without a decode step.
type OpenAISynthesizer struct {
	client  *openai.Client
	model   string
	voice   string
	speed   float64
	timeout time.Duration
}

// NewOpenAI builds the synthesizer. The API key is required.
func NewOpenAI(opts Options) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is empty")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = string(openai.TTSModel1)
	}
	voice := strings.TrimSpace(opts.Voice)
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	speed := opts.Speed
	if speed <= 0 {
		speed = 1.0
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAISynthesizer{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		voice:   voice,
		speed:   speed,
		timeout: timeout,
	}, nil
}

func (s *OpenAISynthesizer) Name() string { return "openai" }

// Synthesize renders text as a 24kHz mono PCM clip.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (Clip, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          s.speed,
	})
	if err != nil {
		return Clip{}, fmt.Errorf("create speech: %w", err)
	}
	defer func() { _ = resp.Close() }()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return Clip{}, fmt.Errorf("read speech audio: %w", err)
	}
	// s16le frames; drop a trailing half-sample if the stream was cut.
	if len(pcm)%2 == 1 {
		pcm = pcm[:len(pcm)-1]
	}

	return Clip{
		PCM:        pcm,
		SampleRate: SynthesisSampleRate,
		MIMEType:   "audio/pcm",
		Duration:   audio.PCMDuration(len(pcm), SynthesisSampleRate, 1),
	}, nil
}
