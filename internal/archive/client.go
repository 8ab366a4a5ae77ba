// Package archive persists turn artifacts to the local archive service and
// accumulates the session-long audio tape. Every call except Finalize is
// best-effort; the orchestrator logs failures and moves on.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrSessionNotFound reports a finalize against a session the archive no
// longer knows. Treated as an already-finalized skip.
var ErrSessionNotFound = errors.New("archive session not found")

// TurnTexts is the per-turn text artifact.
type TurnTexts struct {
	Transcript string `json:"transcript"`
	Reply      string `json:"reply"`
	Provider   string `json:"provider"`
	EndIntent  bool   `json:"end_intent"`
}

// TurnEntry is one turn's row in the session manifest.
type TurnEntry struct {
	Number       int    `json:"number"`
	Transcript   string `json:"transcript"`
	Reply        string `json:"reply"`
	Provider     string `json:"provider"`
	EndIntent    bool   `json:"end_intent"`
	StopReason   string `json:"stop_reason"`
	UserAudioMS  int64  `json:"user_audio_ms"`
	ReplyAudioMS int64  `json:"reply_audio_ms"`
}

// Manifest is the whole-session summary, rewritten after every turn.
type Manifest struct {
	SessionID  string      `json:"session_id"`
	StartedAt  time.Time   `json:"started_at"`
	Turns      []TurnEntry `json:"turns"`
	Finished   bool        `json:"finished"`
	StopReason string      `json:"stop_reason,omitempty"`
}

// FinalizeRequest closes a session on the archive side.
type FinalizeRequest struct {
	Turns      int    `json:"turns"`
	StopReason string `json:"stop_reason"`
}

// Client talks to the archive service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PutTurnAudio stores one turn's WAV-framed user audio.
func (c *Client) PutTurnAudio(ctx context.Context, sessionID string, turn int, wav []byte) error {
	url := fmt.Sprintf("%s/sessions/%s/turns/%d/audio", c.baseURL, sessionID, turn)
	return c.put(ctx, url, "audio/wav", bytes.NewReader(wav))
}

// PutTurnTexts stores one turn's transcript and reply.
func (c *Client) PutTurnTexts(ctx context.Context, sessionID string, turn int, texts TurnTexts) error {
	url := fmt.Sprintf("%s/sessions/%s/turns/%d/texts", c.baseURL, sessionID, turn)
	return c.putJSON(ctx, url, texts)
}

// PutManifest rewrites the session manifest.
func (c *Client) PutManifest(ctx context.Context, sessionID string, manifest Manifest) error {
	url := fmt.Sprintf("%s/sessions/%s/manifest", c.baseURL, sessionID)
	return c.putJSON(ctx, url, manifest)
}

// PutSessionAudio stores the combined session tape.
func (c *Client) PutSessionAudio(ctx context.Context, sessionID string, wav []byte) error {
	url := fmt.Sprintf("%s/sessions/%s/audio", c.baseURL, sessionID)
	return c.put(ctx, url, "audio/wav", bytes.NewReader(wav))
}

// Finalize closes the session. A 404 from the archive means the session was
// already finalized (or never seen) and maps to ErrSessionNotFound.
func (c *Client) Finalize(ctx context.Context, sessionID string, req FinalizeRequest) error {
	encoded, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode finalize request: %w", err)
	}

	url := fmt.Sprintf("%s/sessions/%s/finalize", c.baseURL, sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build finalize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post finalize: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("finalize session: http %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) putJSON(ctx context.Context, url string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode archive payload: %w", err)
	}
	return c.put(ctx, url, "application/json", bytes.NewReader(encoded))
}

func (c *Client) put(ctx context.Context, url, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("build archive request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", url, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("put %s: http %d", url, resp.StatusCode)
	}
	return nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
