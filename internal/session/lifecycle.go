package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/rbright/viva/internal/fsm"
	"github.com/rbright/viva/internal/vad"
)

// NewID mints a session identifier.
func NewID() string {
	return uuid.NewString()
}

// TurnRecord is one completed conversation turn. Mutated only by the engine
// while the turn is live, then appended to the lifecycle and left alone.
type TurnRecord struct {
	Number     int            `json:"number"`
	Transcript string         `json:"transcript"`
	Reply      string         `json:"reply"`
	Provider   string         `json:"provider"`
	EndIntent  bool           `json:"end_intent"`
	StopReason vad.StopReason `json:"stop_reason"`
	UserAudio  time.Duration  `json:"user_audio_ms"`
	ReplyAudio time.Duration  `json:"reply_audio_ms"`
	Degraded   bool           `json:"degraded,omitempty"`
}

// Lifecycle is the observable session state served by /snapshot.
type Lifecycle struct {
	SessionID       string       `json:"session_id"`
	State           fsm.State    `json:"state"`
	StartedAt       time.Time    `json:"started_at"`
	Turns           []TurnRecord `json:"turns"`
	FinishRequested bool         `json:"finish_requested"`
	StopCause       StopCause    `json:"stop_cause,omitempty"`
}
