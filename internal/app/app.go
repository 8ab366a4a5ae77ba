// Package app dispatches CLI commands to the session engine, the control
// socket, and the diagnostic surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/viva/internal/archive"
	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/cli"
	"github.com/rbright/viva/internal/config"
	"github.com/rbright/viva/internal/doctor"
	"github.com/rbright/viva/internal/exchange"
	"github.com/rbright/viva/internal/fsm"
	"github.com/rbright/viva/internal/intent"
	"github.com/rbright/viva/internal/ipc"
	"github.com/rbright/viva/internal/logging"
	"github.com/rbright/viva/internal/observe"
	"github.com/rbright/viva/internal/session"
	"github.com/rbright/viva/internal/tts"
	"github.com/rbright/viva/internal/vad"
	"github.com/rbright/viva/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("viva"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("viva"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandFinish:
		return r.forwardOrFail(ctx, "finish")
	case cli.CommandWatch:
		return r.commandWatch(ctx, cfgLoaded.Config)
	case cli.CommandStart:
		return r.commandStart(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio input devices found")
		return 1
	}

	fmt.Fprintln(r.Stdout, "sources:")
	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	sinks, err := audio.ListSinks(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, "sinks:")
	for _, sink := range sinks {
		defaultMark := " "
		if sink.Default {
			defaultMark = "*"
		}
		muted := "no"
		if sink.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | muted=%s\n",
			defaultMark,
			sink.ID,
			sink.Description,
			sink.State,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, "status")
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		if resp.SessionID != "" {
			fmt.Fprintf(r.Stdout, "%s session=%s turn=%d\n", resp.State, resp.SessionID, resp.Turn)
		} else {
			fmt.Fprintln(r.Stdout, resp.State)
		}
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active viva session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandWatch(ctx context.Context, cfg config.Config) int {
	if !cfg.Observe.Enable {
		fmt.Fprintln(r.Stderr, "error: observe.enable is false; nothing to watch")
		return 1
	}
	if err := observe.Watch(ctx, cfg.Observe.Listen, r.Stdout); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (r Runner) commandStart(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a viva session is already running (try `viva status`)")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	engine, cleanup, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("engine construction failed", "error", err.Error())
		return 1
	}
	defer cleanup()

	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, engine)
	}()

	// The first signal already canceled ctx and is finishing the session
	// gracefully; a second one aborts outright.
	abortCh := make(chan os.Signal, 1)
	signal.Notify(abortCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(abortCh)
	runDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		select {
		case <-abortCh:
		default:
		}
		select {
		case <-abortCh:
			fmt.Fprintln(r.Stderr, "aborted")
			os.Exit(130)
		case <-runDone:
		}
	}()

	fmt.Fprintf(r.Stdout, "session %s started; speak when ready (Ctrl-C or `viva finish` to wrap up)\n", engine.SessionID())
	result := engine.Run(ctx)

	// A failed finalization parks the session in idle. Keep the control
	// socket alive so `viva finish` can retry it; Ctrl-C gives up.
	if result.Err != nil && engine.State() == fsm.StateIdle && engine.Snapshot().FinishRequested {
		fmt.Fprintf(r.Stderr, "finalization failed: %v; `viva finish` retries it, Ctrl-C gives up\n", result.Err)
	wait:
		for {
			select {
			case <-abortCh:
				break wait
			case <-time.After(200 * time.Millisecond):
				if engine.State() == fsm.StateFinished {
					result.Err = nil
					result.State = fsm.StateFinished
					break wait
				}
			}
		}
	}
	close(runDone)

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result)

	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "session %s finished: %d turns (%s)\n", result.SessionID, result.Turns, result.StopCause)
	return 0
}

// buildEngine assembles the collaborators from config. The cleanup closes
// whatever playback/observe resources were opened.
func buildEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (*session.Engine, func(), error) {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return nil, nil, fmt.Errorf("select capture device: %w", err)
	}
	if selection.Warning != "" {
		logger.Warn("capture device fallback", "warning", selection.Warning)
	}
	mic := session.MicrophoneFunc(func(ctx context.Context) (vad.Stream, error) {
		return audio.StartCapture(ctx, selection.Device)
	})

	var closers []func()
	cleanup := func() {
		for _, close := range closers {
			close()
		}
	}

	var speaker session.Speaker
	player, err := audio.OpenPlayer(ctx, cfg.Audio.Output)
	if err != nil {
		logger.Warn("playback unavailable; replies will not be spoken", "error", err.Error())
	} else {
		speaker = player
		closers = append(closers, player.Close)
	}

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var synth tts.Synthesizer
	if cfg.TTS.Enable {
		synthesizer, synthErr := tts.NewOpenAI(tts.Options{
			APIKey:  os.Getenv(cfg.Exchange.APIKeyEnv),
			Model:   cfg.TTS.Model,
			Voice:   cfg.TTS.Voice,
			Speed:   cfg.TTS.Speed,
			Timeout: time.Duration(cfg.TTS.TimeoutMS) * time.Millisecond,
		})
		if synthErr != nil {
			logger.Warn("tts unavailable; replies will not be spoken", "error", synthErr.Error())
		} else {
			synth = synthesizer
		}
	}

	var archiver session.Archiver
	if cfg.Archive.Enable {
		archiver = archive.NewClient(cfg.Archive.BaseURL, time.Duration(cfg.Archive.TimeoutMS)*time.Millisecond)
	}

	intentTuning := intent.Tuning{
		High:   cfg.Intent.HighThreshold,
		Medium: cfg.Intent.MediumThreshold,
		Low:    cfg.Intent.LowThreshold,
	}
	classify := func(transcript string) intent.Result {
		return intent.ClassifyWith(intentTuning, transcript)
	}

	debugDir := ""
	if cfg.Debug.KeepAudio {
		if stateDir, stateErr := logging.StateDir(); stateErr == nil {
			debugDir = filepath.Join(stateDir, "turns")
		}
	}

	opts := session.Options{
		Logger:      logger,
		Microphone:  mic,
		Speaker:     speaker,
		Provider:    provider,
		Synthesizer: synth,
		Archiver:    archiver,
		Classify:    classify,
		VAD: vad.Tuning{
			StartRatio:  cfg.VAD.StartRatio,
			StopRatio:   cfg.VAD.StopRatio,
			StartFrames: cfg.VAD.StartFrames,
			StopFrames:  cfg.VAD.StopFrames,
			Silence:     time.Duration(cfg.VAD.SilenceMS) * time.Millisecond,
			Grace:       time.Duration(cfg.VAD.GraceMS) * time.Millisecond,
			MinDuration: time.Duration(cfg.VAD.MinDurationMS) * time.Millisecond,
			MaxDuration: time.Duration(cfg.VAD.MaxDurationMS) * time.Millisecond,
			MaxWait:     time.Duration(cfg.VAD.MaxWaitMS) * time.Millisecond,
		},
		Calibration:    time.Duration(cfg.Audio.CalibrationSeconds * float64(time.Second)),
		MaxTurns:       cfg.Session.MaxTurns,
		ArchiveTimeout: time.Duration(cfg.Archive.TimeoutMS) * time.Millisecond,
		DebugDir:       debugDir,
	}

	if !cfg.Observe.Enable {
		return session.NewEngine(opts), cleanup, nil
	}

	// The feed needs the engine's snapshot and the engine needs the feed's
	// publisher; SetSnapshot closes the loop after construction.
	feed := observe.NewServer(logger, nil)
	opts.Publish = feed.Publish
	engine := session.NewEngine(opts)
	feed.SetSnapshot(func() any { return engine.Snapshot() })

	if startErr := feed.Start(cfg.Observe.Listen); startErr != nil {
		logger.Warn("observe server unavailable", "error", startErr.Error())
	} else {
		logger.Info("observe feed listening", "addr", feed.Addr())
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = feed.Shutdown(shutdownCtx)
		})
	}
	return engine, cleanup, nil
}

// buildProvider constructs the configured exchange backend. An unknown
// provider name is a config error; a missing credential leaves the engine on
// canned fallback replies instead of refusing to start.
func buildProvider(cfg config.Config, logger *slog.Logger) (exchange.Provider, error) {
	apiKey := os.Getenv(cfg.Exchange.APIKeyEnv)
	timeout := time.Duration(cfg.Exchange.TimeoutMS) * time.Millisecond

	var provider exchange.Provider
	var err error
	switch strings.ToLower(strings.TrimSpace(cfg.Exchange.Provider)) {
	case "", "openai":
		provider, err = exchange.NewOpenAI(exchange.OpenAIOptions{
			APIKey:   apiKey,
			Model:    cfg.Exchange.Model,
			BaseURL:  cfg.Exchange.BaseURL,
			Language: cfg.Session.Language,
			Timeout:  timeout,
		})
	case "gemini":
		provider, err = exchange.NewGemini(exchange.GeminiOptions{
			APIKey:  apiKey,
			Model:   cfg.Exchange.Model,
			BaseURL: cfg.Exchange.BaseURL,
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("unknown exchange.provider %q", cfg.Exchange.Provider)
	}

	if err != nil {
		logger.Warn("exchange provider unavailable; replies will use fallbacks", "error", err.Error())
		return nil, nil
	}
	return provider, nil
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"state", result.State,
		"session_id", result.SessionID,
		"turns", result.Turns,
		"stop_cause", string(result.StopCause),
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
