package exchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func geminiCandidateBody(t *testing.T, turn geminiTurn) []byte {
	t.Helper()

	inner, err := json.Marshal(turn)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": string(inner)}},
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func newGeminiForTest(t *testing.T, server *httptest.Server) *GeminiProvider {
	t.Helper()

	provider, err := NewGemini(GeminiOptions{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return provider
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(GeminiOptions{})
	require.Error(t, err)
}

func TestGeminiExchange(t *testing.T) {
	audio := []byte{9, 8, 7, 6, 5}

	var gotPath, gotKey string
	var gotReq geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(geminiCandidateBody(t, geminiTurn{
			Transcript: "no more questions",
			Reply:      "Thank you for everything you shared today.",
			EndIntent:  true,
		}))
	}))
	t.Cleanup(server.Close)

	provider := newGeminiForTest(t, server)

	resp, err := provider.Exchange(context.Background(), Request{
		SessionID:  "s1",
		TurnNumber: 3,
		Audio:      audio,
		MIMEType:   "audio/wav",
	})
	require.NoError(t, err)

	require.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	require.Equal(t, "test-key", gotKey)

	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 2)
	blob := gotReq.Contents[0].Parts[1].InlineData
	require.NotNil(t, blob)
	require.Equal(t, "audio/wav", blob.MIMEType)
	require.Equal(t, base64.StdEncoding.EncodeToString(audio), blob.Data)
	require.NotNil(t, gotReq.GenerationConfig)
	require.Equal(t, "application/json", gotReq.GenerationConfig.ResponseMIMEType)

	require.Equal(t, "no more questions", resp.Transcript)
	require.Equal(t, "Thank you for everything you shared today.", resp.ReplyText)
	require.True(t, resp.EndIntent)
	require.Equal(t, "gemini", resp.ProviderID)
}

func TestGeminiExchangeRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	t.Cleanup(server.Close)

	provider := newGeminiForTest(t, server)

	_, err := provider.Exchange(context.Background(), Request{TurnNumber: 1, Audio: []byte{1}})
	require.Error(t, err)

	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	require.Equal(t, KindRemote, exchErr.Kind)
	require.Contains(t, exchErr.Message, "RESOURCE_EXHAUSTED")
}

func TestGeminiExchangeMalformedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not json"))
	}))
	t.Cleanup(server.Close)

	provider := newGeminiForTest(t, server)

	_, err := provider.Exchange(context.Background(), Request{TurnNumber: 1, Audio: []byte{1}})

	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	require.Equal(t, KindMalformed, exchErr.Kind)
}

func TestGeminiExchangeMalformedCandidatePayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"just plain prose"}]}}]}`))
	}))
	t.Cleanup(server.Close)

	provider := newGeminiForTest(t, server)

	_, err := provider.Exchange(context.Background(), Request{TurnNumber: 1, Audio: []byte{1}})

	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	require.Equal(t, KindMalformed, exchErr.Kind)
}

func TestGeminiExchangeNoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	t.Cleanup(server.Close)

	provider := newGeminiForTest(t, server)

	_, err := provider.Exchange(context.Background(), Request{TurnNumber: 1, Audio: []byte{1}})

	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	require.Equal(t, KindMalformed, exchErr.Kind)
}

func TestGeminiExchangeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(geminiCandidateBody(t, geminiTurn{Reply: "too late"}))
	}))
	t.Cleanup(server.Close)

	provider, err := NewGemini(GeminiOptions{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = provider.Exchange(context.Background(), Request{TurnNumber: 1, Audio: []byte{1}})
	require.Error(t, err)

	var exchErr *Error
	require.ErrorAs(t, err, &exchErr)
	require.Equal(t, KindTimeout, exchErr.Kind)
}
