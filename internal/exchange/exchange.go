// Package exchange defines the transcription+reply collaborator: one request
// carries a turn of captured speech, one response carries the transcript, the
// interviewer's reply, and whether the remote side heard completion intent.
package exchange

import "context"

// Request is one turn of captured speech submitted for transcription and a
// reply. Audio is WAV-framed 16kHz mono s16le.
type Request struct {
	SessionID  string
	TurnNumber int
	Audio      []byte
	MIMEType   string
}

// Response is the provider's answer for one turn.
type Response struct {
	Transcript string
	ReplyText  string
	EndIntent  bool
	ProviderID string
}

// Provider is a transcription+reply backend. Implementations apply their own
// request timeout and return *Error for every failure.
type Provider interface {
	Name() string
	Exchange(ctx context.Context, req Request) (Response, error)
}

// FallbackReply keeps the conversation moving when a provider fails; the
// orchestrator speaks it in place of a real reply and records an empty
// transcript.
const FallbackReply = "I didn't quite catch that. Could you tell me a bit more?"

// Fallback is the degraded response substituted after a provider failure.
func Fallback(providerID string) Response {
	return Response{ReplyText: FallbackReply, ProviderID: providerID}
}
