package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/viva/internal/ipc"
)

// isolateDirs points every XDG surface at per-test temp dirs so Execute never
// touches the real user state.
func isolateDirs(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
}

func TestExecuteHelp(t *testing.T) {
	isolateDirs(t)

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"help"}, &stdout, &stderr)

	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "Usage:")
	require.Contains(t, stdout.String(), "start")
	require.Empty(t, stderr.String())
}

func TestExecuteNoArgsShowsHelp(t *testing.T) {
	isolateDirs(t)

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), nil, &stdout, &stderr)

	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "Usage:")
}

func TestExecuteVersion(t *testing.T) {
	isolateDirs(t)

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"version"}, &stdout, &stderr)

	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "viva")
}

func TestExecuteUnknownCommand(t *testing.T) {
	isolateDirs(t)

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"bogus"}, &stdout, &stderr)

	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestExecuteStatusIdleWithoutSession(t *testing.T) {
	isolateDirs(t)

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"status"}, &stdout, &stderr)

	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "idle")
}

func TestExecuteFinishWithoutSession(t *testing.T) {
	isolateDirs(t)

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"finish"}, &stdout, &stderr)

	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "no active viva session")
}

func TestExecuteWatchRequiresObserveEnabled(t *testing.T) {
	isolateDirs(t)

	cfgDir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "viva")
	require.NoError(t, os.MkdirAll(cfgDir, 0o700))
	cfgPath := filepath.Join(cfgDir, "config.jsonc")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"observe": {"enable": false}}`), 0o600))

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"watch"}, &stdout, &stderr)

	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "observe.enable")
}

func TestTryForwardRoundtrip(t *testing.T) {
	isolateDirs(t)

	socketPath, err := ipc.RuntimeSocketPath()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := ipc.Acquire(ctx, socketPath, 50*time.Millisecond, 1, nil)
	require.NoError(t, err)

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		_ = ipc.Serve(ctx, listener, ipc.HandlerFunc(func(_ context.Context, req ipc.Request) ipc.Response {
			return ipc.Response{OK: true, State: "listening", SessionID: "s-1", Turn: 2, Message: "status"}
		}))
	}()

	resp, handled, err := tryForward(ctx, socketPath, "status")
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, "listening", resp.State)
	require.Equal(t, "s-1", resp.SessionID)
	require.Equal(t, 2, resp.Turn)

	cancel()
	<-serveDone
}

func TestTryForwardMissingSocket(t *testing.T) {
	t.Parallel()

	_, handled, err := tryForward(context.Background(), filepath.Join(t.TempDir(), "gone.sock"), "status")
	require.NoError(t, err)
	require.False(t, handled)
}

func TestTryForwardSurfacesHandlerError(t *testing.T) {
	isolateDirs(t)

	socketPath, err := ipc.RuntimeSocketPath()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := ipc.Acquire(ctx, socketPath, 50*time.Millisecond, 1, nil)
	require.NoError(t, err)

	go func() {
		_ = ipc.Serve(ctx, listener, ipc.HandlerFunc(func(_ context.Context, _ ipc.Request) ipc.Response {
			return ipc.Response{OK: false, Error: "session already finished"}
		}))
	}()

	_, handled, err := tryForward(ctx, socketPath, "finish")
	require.True(t, handled)
	require.Error(t, err)
	require.Contains(t, err.Error(), "session already finished")
}

func TestSocketErrorClassifiers(t *testing.T) {
	t.Parallel()

	require.True(t, isSocketMissing(os.ErrNotExist))
	require.True(t, isSocketMissing(errors.New("dial unix /tmp/x.sock: connect: no such file or directory")))
	require.False(t, isSocketMissing(nil))
	require.False(t, isSocketMissing(errors.New("boom")))

	require.True(t, isConnectionRefused(syscall.ECONNREFUSED))
	require.False(t, isConnectionRefused(nil))
	require.False(t, isConnectionRefused(errors.New("boom")))
}
