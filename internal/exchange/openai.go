package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// endMarker is the token the chat model is instructed to append when the
// speaker signals the interview should end. Stripped before the reply is
// spoken.
const endMarker = "[END_OF_INTERVIEW]"

const defaultOpenAIChatModel = "gpt-4o-mini"

const interviewerPrompt = `You are a warm, patient interviewer recording someone's spoken life stories.
Ask one short follow-up question at a time and react briefly to what you hear.
Keep replies under three sentences; they will be spoken aloud.
If the speaker clearly wants to end the session, say a short goodbye and append the token ` + endMarker + ` to the very end of your reply.`

// OpenAIOptions configures the OpenAI-backed provider.
type OpenAIOptions struct {
	APIKey   string
	Model    string
	BaseURL  string
	Language string
	Timeout  time.Duration
}

// OpenAIProvider transcribes with Whisper and replies with a chat model.
type OpenAIProvider struct {
	client   *openai.Client
	model    string
	language string
	timeout  time.Duration
}

// NewOpenAI builds the provider. The API key is required; everything else
// has a default.
func NewOpenAI(opts OpenAIOptions) (*OpenAIProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is empty")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenAIChatModel
	}
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "en"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
		timeout:  timeout,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Exchange transcribes the turn's audio and produces the interviewer reply.
func (p *OpenAIProvider) Exchange(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	transcript, err := p.transcribe(ctx, req)
	if err != nil {
		return Response{}, err
	}

	reply, endIntent, err := p.reply(ctx, req.TurnNumber, transcript)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Transcript: transcript,
		ReplyText:  reply,
		EndIntent:  endIntent,
		ProviderID: p.Name(),
	}, nil
}

func (p *OpenAIProvider) transcribe(ctx context.Context, req Request) (string, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Language: p.language,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(req.Audio),
		FilePath: "audio.wav",
	})
	if err != nil {
		return "", p.classify("transcription failed", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (p *OpenAIProvider) reply(ctx context.Context, turn int, transcript string) (string, bool, error) {
	spoken := transcript
	if spoken == "" {
		spoken = "(the speaker said nothing)"
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: interviewerPrompt},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Turn %d. The speaker said: %s", turn, spoken),
			},
		},
	})
	if err != nil {
		return "", false, p.classify("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", false, malformedError(p.Name(), "chat completion returned no choices", nil)
	}

	content := resp.Choices[0].Message.Content
	endIntent := strings.Contains(content, endMarker)
	reply := strings.TrimSpace(strings.ReplaceAll(content, endMarker, ""))
	return reply, endIntent, nil
}

// classify maps go-openai failures onto the closed error kinds.
func (p *OpenAIProvider) classify(message string, err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return remoteError(p.Name(), message, err)
	}
	return wrapTransport(p.Name(), message, err)
}
