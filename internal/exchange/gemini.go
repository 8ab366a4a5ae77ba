package exchange

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultGeminiBaseURL is the public Gemini API endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const defaultGeminiModel = "gemini-2.0-flash"

const geminiPrompt = `You are a warm, patient interviewer recording someone's spoken life stories.
The attached audio is the speaker's latest turn. Transcribe it, then reply with one short reaction and one follow-up question (under three sentences, spoken aloud).
Respond with a single JSON object: {"transcript": string, "reply": string, "end_intent": boolean}.
Set end_intent to true only when the speaker clearly wants to end the session.`

// GeminiOptions configures the Gemini-backed provider.
type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// GeminiProvider transcribes and replies with a single generateContent call
// carrying the turn audio inline.
type GeminiProvider struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// NewGemini builds the provider. The API key is required.
func NewGemini(opts GeminiOptions) (*GeminiProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &GeminiProvider{
		apiKey:     opts.APIKey,
		model:      model,
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: httpClient,
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// Gemini request/response shapes. The API uses camelCase field names.
type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// geminiTurn is the structured payload the model is asked to produce.
type geminiTurn struct {
	Transcript string `json:"transcript"`
	Reply      string `json:"reply"`
	EndIntent  bool   `json:"end_intent"`
}

// Exchange submits the turn audio and parses the structured reply.
func (p *GeminiProvider) Exchange(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	mime := req.MIMEType
	if mime == "" {
		mime = "audio/wav"
	}

	payload := geminiRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: geminiPrompt}},
		},
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: fmt.Sprintf("Turn %d of the interview.", req.TurnNumber)},
				{InlineData: &geminiBlob{
					MIMEType: mime,
					Data:     base64.StdEncoding.EncodeToString(req.Audio),
				}},
			},
		}},
		GenerationConfig: &geminiGenConfig{ResponseMIMEType: "application/json"},
	}

	body, err := p.doRequest(ctx, payload)
	if err != nil {
		return Response{}, err
	}

	turn, err := p.parseTurn(body)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Transcript: strings.TrimSpace(turn.Transcript),
		ReplyText:  strings.TrimSpace(turn.Reply),
		EndIntent:  turn.EndIntent,
		ProviderID: p.Name(),
	}, nil
}

func (p *GeminiProvider) doRequest(ctx context.Context, payload geminiRequest) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, malformedError(p.Name(), "encode request", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, wrapTransport(p.Name(), "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransport(p.Name(), "post generateContent", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransport(p.Name(), "read response", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, p.parseError(resp.StatusCode, body)
	}
	return body, nil
}

func (p *GeminiProvider) parseError(status int, body []byte) *Error {
	var remote geminiErrorBody
	if err := json.Unmarshal(body, &remote); err != nil || remote.Error.Message == "" {
		return remoteError(p.Name(), fmt.Sprintf("http %d", status), nil)
	}
	return remoteError(
		p.Name(),
		fmt.Sprintf("http %d: %s: %s", status, remote.Error.Status, remote.Error.Message),
		nil,
	)
}

func (p *GeminiProvider) parseTurn(body []byte) (geminiTurn, error) {
	var decoded geminiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return geminiTurn{}, malformedError(p.Name(), "decode generateContent response", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return geminiTurn{}, malformedError(p.Name(), "response has no candidates", nil)
	}

	text := decoded.Candidates[0].Content.Parts[0].Text
	var turn geminiTurn
	if err := json.Unmarshal([]byte(text), &turn); err != nil {
		return geminiTurn{}, malformedError(p.Name(), "candidate is not the expected JSON shape", err)
	}
	return turn, nil
}
