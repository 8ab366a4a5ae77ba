package session

import (
	"context"
	"fmt"

	"github.com/rbright/viva/internal/fsm"
	"github.com/rbright/viva/internal/ipc"
)

// Finalize retries a failed finalization. Idempotent after success.
func (e *Engine) Finalize() error {
	return e.finalize()
}

// Handle serves IPC commands for the active session.
func (e *Engine) Handle(_ context.Context, req ipc.Request) ipc.Response {
	state := e.State()
	switch req.Command {
	case "status":
		return ipc.Response{
			OK:        true,
			State:     string(state),
			SessionID: e.id,
			Turn:      e.turnCount(),
			Message:   "status",
		}
	case "finish":
		if state == fsm.StateFinished {
			return ipc.Response{OK: false, State: string(state), SessionID: e.id, Error: "session already finished"}
		}
		if state == fsm.StateIdle && e.finish.Requested() {
			// The loop already stopped but finalization failed; retry it.
			if err := e.Finalize(); err != nil {
				return ipc.Response{OK: false, State: string(e.State()), SessionID: e.id, Error: err.Error()}
			}
			return ipc.Response{OK: true, State: string(e.State()), SessionID: e.id, Message: "finalized"}
		}
		if e.RequestFinish() {
			return ipc.Response{OK: true, State: string(state), SessionID: e.id, Message: "finish requested"}
		}
		return ipc.Response{OK: true, State: string(state), SessionID: e.id, Message: "finish already requested"}
	default:
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}
