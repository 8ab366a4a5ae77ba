// Package session drives the interview loop: calibrate, listen, exchange,
// speak, persist, decide whether to continue. One Engine value owns one
// session's devices, tape, and collaborators.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rbright/viva/internal/archive"
	"github.com/rbright/viva/internal/audio"
	"github.com/rbright/viva/internal/exchange"
	"github.com/rbright/viva/internal/fsm"
	"github.com/rbright/viva/internal/intent"
	"github.com/rbright/viva/internal/observe"
	"github.com/rbright/viva/internal/tts"
	"github.com/rbright/viva/internal/vad"
)

// placeholderLen is the silent stand-in substituted when capture fails
// mid-turn, long enough that providers accept the upload.
const placeholderLen = 500 * time.Millisecond

// Result is the complete outcome of one Run invocation.
type Result struct {
	State      fsm.State
	SessionID  string
	Turns      int
	StopCause  StopCause
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Options wires one engine. Zero-value collaborators fall back to safe
// no-ops; a missing microphone is the one fatal omission.
type Options struct {
	Logger      *slog.Logger
	SessionID   string
	Microphone  Microphone
	Speaker     Speaker
	Provider    exchange.Provider
	Synthesizer tts.Synthesizer
	Archiver    Archiver
	Classify    func(string) intent.Result
	Publish     func(observe.Event)

	VAD            vad.Tuning
	Calibration    time.Duration
	MaxTurns       int
	ArchiveTimeout time.Duration
	DebugDir       string
}

// Engine orchestrates one session. Construct with NewEngine; a zero Engine
// is not usable.
type Engine struct {
	logger      *slog.Logger
	id          string
	mic         Microphone
	speaker     Speaker
	provider    exchange.Provider
	synth       tts.Synthesizer
	archiver    Archiver
	classify    func(string) intent.Result
	publish     func(observe.Event)
	tuning      vad.Tuning
	calibration time.Duration
	maxTurns    int
	archiveTO   time.Duration
	debugDir    string

	tape   *archive.Tape
	finish *FinishSignal

	mu        sync.RWMutex
	state     fsm.State
	startedAt time.Time
	turns     []TurnRecord
	finalized bool
}

// NewEngine constructs a session engine with safe default fallbacks.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	id := opts.SessionID
	if id == "" {
		id = NewID()
	}
	speaker := opts.Speaker
	if speaker == nil {
		speaker = noopSpeaker{}
	}
	archiver := opts.Archiver
	if archiver == nil {
		archiver = noopArchiver{}
	}
	classify := opts.Classify
	if classify == nil {
		classify = intent.Classify
	}
	publish := opts.Publish
	if publish == nil {
		publish = func(observe.Event) {}
	}
	tuning := opts.VAD
	if tuning == (vad.Tuning{}) {
		tuning = vad.DefaultTuning()
	}
	calibration := opts.Calibration
	if calibration <= 0 {
		calibration = 1500 * time.Millisecond
	}
	archiveTO := opts.ArchiveTimeout
	if archiveTO <= 0 {
		archiveTO = 10 * time.Second
	}

	return &Engine{
		logger:      logger,
		id:          id,
		mic:         opts.Microphone,
		speaker:     speaker,
		provider:    opts.Provider,
		synth:       opts.Synthesizer,
		archiver:    archiver,
		classify:    classify,
		publish:     publish,
		tuning:      tuning,
		calibration: calibration,
		maxTurns:    opts.MaxTurns,
		archiveTO:   archiveTO,
		debugDir:    opts.DebugDir,
		tape:        archive.NewTape(),
		finish:      NewFinishSignal(),
		state:       fsm.StateInitializing,
	}
}

// SessionID returns the immutable session identifier.
func (e *Engine) SessionID() string {
	return e.id
}

// State returns the current lifecycle state snapshot.
func (e *Engine) State() fsm.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// RequestFinish asks the loop to stop at its next safe boundary. Monotonic;
// safe from any goroutine.
func (e *Engine) RequestFinish() bool {
	return e.requestFinish(CauseRequested, e.turnCount())
}

// Snapshot copies the observable lifecycle for /snapshot and tests.
func (e *Engine) Snapshot() Lifecycle {
	e.mu.RLock()
	defer e.mu.RUnlock()

	turns := make([]TurnRecord, len(e.turns))
	copy(turns, e.turns)
	return Lifecycle{
		SessionID:       e.id,
		State:           e.state,
		StartedAt:       e.startedAt,
		Turns:           turns,
		FinishRequested: e.finish.Requested(),
		StopCause:       e.finish.Cause(),
	}
}

// Run drives the session until a finish signal lands, then finalizes. It
// returns after exactly one finalization attempt; a failed finalization
// leaves the lifecycle in idle so the caller may retry.
func (e *Engine) Run(ctx context.Context) Result {
	result := Result{SessionID: e.id, StartedAt: time.Now()}
	e.mu.Lock()
	e.startedAt = result.StartedAt
	e.mu.Unlock()

	// Caller cancellation is just another finish request, observed at the
	// same boundaries as everything else.
	go func() {
		select {
		case <-ctx.Done():
			e.requestFinish(CauseRequested, e.turnCount())
		case <-e.finish.Done():
		}
	}()

	if err := e.transition(fsm.EventBegin); err != nil {
		result.State = e.State()
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	for turn := 1; ; turn++ {
		if e.finish.Requested() {
			break
		}
		if e.maxTurns > 0 && turn > e.maxTurns {
			e.requestFinish(CauseTurnCap, turn-1)
			break
		}

		rec, fatal, err := e.runTurn(ctx, turn)
		if fatal {
			e.fail()
			e.publish(observe.Degraded(e.id, turn, "session failed: "+err.Error()))
			e.logger.Error("session fatal", "turn", turn, "error", err.Error())
			result.State = e.State()
			result.Err = err
			result.Turns = e.turnCount()
			result.FinishedAt = time.Now()
			return result
		}
		if rec == nil {
			// The turn was abandoned before any speech was captured.
			break
		}
	}

	result.Err = e.finalize()
	result.State = e.State()
	result.StopCause = e.finish.Cause()
	result.Turns = e.turnCount()
	result.FinishedAt = time.Now()
	return result
}

// runTurn executes one calibrate-listen-think-speak-persist cycle. A nil
// record with fatal=false means the turn was interrupted before speech and
// the loop should move straight to finalization.
func (e *Engine) runTurn(ctx context.Context, turn int) (*TurnRecord, bool, error) {
	phaseCtx, cancelPhase := signalCtx(ctx, e.finish.Interrupt())
	defer cancelPhase()

	e.publish(observe.Phase(e.id, turn, string(fsm.StateCalibrating)))
	calibration, fatal, err := e.calibrate(phaseCtx, turn)
	if fatal {
		return nil, true, err
	}
	if phaseCtx.Err() != nil {
		return nil, false, nil
	}

	if err := e.transition(fsm.EventCalibrated); err != nil {
		return nil, true, err
	}
	e.publish(observe.Phase(e.id, turn, string(fsm.StateListening)))

	outcome, degraded, fatal, err := e.listen(phaseCtx, turn, calibration.Baseline)
	if fatal {
		return nil, true, err
	}
	if phaseCtx.Err() != nil && !outcome.Started {
		return nil, false, nil
	}

	if appendErr := e.tape.AppendUser(outcome.PCM); appendErr != nil {
		e.logger.Warn("tape append failed", "turn", turn, "error", appendErr.Error())
	}
	userWAV := audio.EncodeWAV(outcome.PCM, audio.CaptureSampleRate, 1)
	e.dumpDebugWAV(turn, userWAV)

	rec := &TurnRecord{
		Number:     turn,
		StopReason: outcome.StopReason,
		UserAudio:  outcome.Duration,
		Degraded:   degraded,
	}

	if err := e.transition(fsm.EventCaptured); err != nil {
		return nil, true, err
	}
	e.publish(observe.Phase(e.id, turn, string(fsm.StateThinking)))

	resp, interrupted := e.think(phaseCtx, turn, rec, userWAV)
	rec.Transcript = resp.Transcript
	rec.Reply = resp.ReplyText
	rec.Provider = resp.ProviderID
	rec.EndIntent = resp.EndIntent

	if !interrupted {
		e.decideContinuation(turn, resp)
	}

	if err := e.transition(fsm.EventReplied); err != nil {
		return nil, true, err
	}
	e.publish(observe.Phase(e.id, turn, string(fsm.StateSpeaking)))

	if !interrupted {
		e.speak(phaseCtx, turn, rec, resp.ReplyText)
	}

	// The record is frozen once persistence is issued.
	e.appendTurn(*rec)
	e.persistTurn(*rec, userWAV)

	if err := e.transition(fsm.EventSpoken); err != nil {
		return nil, true, err
	}
	return rec, false, nil
}

// calibrate measures the ambient baseline, degrading to the fallback on any
// non-fatal failure. Failing to acquire the device at all is fatal.
func (e *Engine) calibrate(ctx context.Context, turn int) (vad.CalibrationResult, bool, error) {
	if e.mic == nil {
		return vad.FallbackResult(), true, ErrDeviceUnavailable
	}

	var openErr error
	open := func(ctx context.Context) (vad.Stream, error) {
		stream, err := e.mic.Open(ctx)
		if err != nil {
			openErr = err
		}
		return stream, err
	}

	result, err := vad.Calibrate(ctx, open, e.calibration)
	if openErr != nil {
		if ctx.Err() != nil {
			return vad.FallbackResult(), false, nil
		}
		return result, true, fmt.Errorf("%w: %v", ErrDeviceUnavailable, openErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		e.publish(observe.Degraded(e.id, turn, "calibration failed; using fallback baseline"))
		e.logger.Warn("calibration failed", "turn", turn, "error", err.Error())
		return vad.FallbackResult(), false, nil
	}

	e.logger.Info("calibrated",
		"turn", turn,
		"baseline", result.Baseline,
		"samples", result.Samples,
		"fallback", result.Fallback,
	)
	return result, false, nil
}

// listen runs the silence-gated recorder, substituting a silent placeholder
// when capture dies mid-phase.
func (e *Engine) listen(ctx context.Context, turn int, baseline float64) (vad.Outcome, bool, bool, error) {
	stream, err := e.mic.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return vad.Outcome{StopReason: vad.StopForcedBeforeStart}, false, false, nil
		}
		return vad.Outcome{}, false, true, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	recorder := vad.NewRecorder(e.tuning, baseline)
	outcome, recErr := recorder.Record(ctx, stream)
	_ = stream.Stop()

	degraded := false
	if recErr != nil {
		degraded = true
		outcome.PCM = audio.SilentPCM(placeholderLen, audio.CaptureSampleRate)
		outcome.Duration = placeholderLen
		outcome.Started = true
		outcome.SampleRate = audio.CaptureSampleRate
		outcome.MIMEType = "audio/wav"
		e.publish(observe.Degraded(e.id, turn, "capture failed; substituted silent placeholder"))
		e.logger.Warn("capture failed", "turn", turn, "error", recErr.Error())
	}

	e.logger.Info("listening done",
		"turn", turn,
		"started", outcome.Started,
		"forced_start", outcome.ForcedStart,
		"stop_reason", string(outcome.StopReason),
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	return outcome, degraded, false, nil
}

// think submits the turn to the exchange provider, degrading to the fixed
// fallback reply on any recoverable failure. The second return is true when
// the call was cut short by cancellation.
func (e *Engine) think(ctx context.Context, turn int, rec *TurnRecord, userWAV []byte) (exchange.Response, bool) {
	providerName := "none"
	if e.provider != nil {
		providerName = e.provider.Name()
	}

	if e.provider == nil {
		rec.Degraded = true
		return exchange.Fallback(providerName), false
	}

	resp, err := e.provider.Exchange(ctx, exchange.Request{
		SessionID:  e.id,
		TurnNumber: turn,
		Audio:      userWAV,
		MIMEType:   "audio/wav",
	})
	if err == nil {
		return resp, false
	}

	var xerr *exchange.Error
	if errors.As(err, &xerr) && !xerr.Recoverable() {
		return exchange.Response{ProviderID: providerName}, true
	}
	if ctx.Err() != nil {
		return exchange.Response{ProviderID: providerName}, true
	}

	rec.Degraded = true
	e.publish(observe.Degraded(e.id, turn, "exchange failed; spoke fallback reply"))
	e.logger.Warn("exchange failed", "turn", turn, "provider", providerName, "error", err.Error())
	return exchange.Fallback(providerName), false
}

// decideContinuation applies the provider end-intent flag and the local
// classifier. The first finish signal wins.
func (e *Engine) decideContinuation(turn int, resp exchange.Response) {
	if resp.EndIntent {
		if e.requestFinish(CauseProviderEndIntent, turn) {
			e.publish(observe.Decision(e.id, turn, "finish requested: provider end intent"))
		}
		return
	}

	verdict := e.classify(resp.Transcript)
	if verdict.ShouldStop {
		if e.requestFinish(CauseClassifier, turn) {
			detail := fmt.Sprintf("finish requested: classifier confidence=%s score=%.1f", verdict.Confidence, verdict.Score)
			e.publish(observe.Decision(e.id, turn, detail))
			e.logger.Info("classifier stop",
				"turn", turn,
				"confidence", string(verdict.Confidence),
				"score", verdict.Score,
				"matched", verdict.Matched,
			)
		}
	}
}

// speak synthesizes and plays the reply. Every failure here is non-fatal.
func (e *Engine) speak(ctx context.Context, turn int, rec *TurnRecord, reply string) {
	if e.synth == nil || reply == "" {
		return
	}

	clip, err := e.synth.Synthesize(ctx, reply)
	if err != nil {
		if ctx.Err() == nil {
			rec.Degraded = true
			e.publish(observe.Degraded(e.id, turn, "tts failed; turn continues without audio"))
			e.logger.Warn("tts failed", "turn", turn, "error", err.Error())
		}
		return
	}

	rec.ReplyAudio = clip.Duration
	if appendErr := e.tape.AppendReply(clip.PCM, clip.SampleRate); appendErr != nil {
		e.logger.Warn("tape append failed", "turn", turn, "error", appendErr.Error())
	}

	if playErr := e.speaker.Play(ctx, audio.BytesToInt16(clip.PCM), clip.SampleRate); playErr != nil && ctx.Err() == nil {
		rec.Degraded = true
		e.publish(observe.Degraded(e.id, turn, "playback failed"))
		e.logger.Warn("playback failed", "turn", turn, "error", playErr.Error())
	}
}

// persistTurn issues the three end-of-turn archive calls concurrently and
// waits for all to settle. Failures are logged, never propagated.
func (e *Engine) persistTurn(rec TurnRecord, userWAV []byte) {
	manifest := e.buildManifest()

	var wg sync.WaitGroup
	run := func(name string, call func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Persistence owes nothing to the turn's cancellation; the last
			// turn must still land after a finish request.
			callCtx, cancel := context.WithTimeout(context.Background(), e.archiveTO)
			defer cancel()
			if err := call(callCtx); err != nil {
				e.logger.Warn("persist failed", "call", name, "turn", rec.Number, "error", err.Error())
			}
		}()
	}

	run("turn_audio", func(ctx context.Context) error {
		return e.archiver.PutTurnAudio(ctx, e.id, rec.Number, userWAV)
	})
	run("turn_texts", func(ctx context.Context) error {
		return e.archiver.PutTurnTexts(ctx, e.id, rec.Number, archive.TurnTexts{
			Transcript: rec.Transcript,
			Reply:      rec.Reply,
			Provider:   rec.Provider,
			EndIntent:  rec.EndIntent,
		})
	})
	run("manifest", func(ctx context.Context) error {
		return e.archiver.PutManifest(ctx, e.id, manifest)
	})

	wg.Wait()
}

// finalize seals the tape, uploads the session artifact, and closes the
// session on the archive side. A "not found" from the archive is an
// already-finalized skip; any other failure leaves the lifecycle in idle so
// the caller can retry.
func (e *Engine) finalize() error {
	e.mu.Lock()
	if e.finalized {
		e.mu.Unlock()
		return nil
	}
	e.finalized = true
	e.mu.Unlock()

	if err := e.transition(fsm.EventFinish); err != nil {
		return err
	}
	e.publish(observe.Phase(e.id, e.turnCount(), string(fsm.StateFinalizing)))

	sessionWAV := e.tape.Seal()
	if !e.tape.Empty() {
		uploadCtx, cancel := context.WithTimeout(context.Background(), e.archiveTO)
		if err := e.archiver.PutSessionAudio(uploadCtx, e.id, sessionWAV); err != nil {
			e.logger.Warn("session audio upload failed", "error", err.Error())
		}
		cancel()
	}

	finalizeCtx, cancel := context.WithTimeout(context.Background(), e.archiveTO)
	defer cancel()
	err := e.archiver.Finalize(finalizeCtx, e.id, archive.FinalizeRequest{
		Turns:      e.turnCount(),
		StopReason: string(e.finish.Cause()),
	})
	if errors.Is(err, archive.ErrSessionNotFound) {
		e.logger.Info("finalize skipped: session not found")
		err = nil
	}
	if err != nil {
		e.fail()
		e.publish(observe.Degraded(e.id, e.turnCount(), "finalize failed: "+err.Error()))
		e.logger.Error("finalize failed", "error", err.Error())
		// Allow a retry to invoke the collaborator again.
		e.mu.Lock()
		e.finalized = false
		e.mu.Unlock()
		return fmt.Errorf("finalize session: %w", err)
	}

	if err := e.transition(fsm.EventFinalized); err != nil {
		return err
	}
	e.publish(observe.Phase(e.id, e.turnCount(), string(fsm.StateFinished)))
	e.logger.Info("session finished",
		"turns", e.turnCount(),
		"stop_cause", string(e.finish.Cause()),
		"tape_ms", e.tape.Duration().Milliseconds(),
	)
	return nil
}

// requestFinish records a stop cause and logs the first one.
func (e *Engine) requestFinish(cause StopCause, turn int) bool {
	first := e.finish.Request(cause)
	if first {
		e.logger.Info("finish requested", "cause", string(cause), "turn", turn)
	}
	return first
}

func (e *Engine) appendTurn(rec TurnRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns, rec)
}

func (e *Engine) turnCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.turns)
}

func (e *Engine) buildManifest() archive.Manifest {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entries := make([]archive.TurnEntry, 0, len(e.turns))
	for _, rec := range e.turns {
		entries = append(entries, archive.TurnEntry{
			Number:       rec.Number,
			Transcript:   rec.Transcript,
			Reply:        rec.Reply,
			Provider:     rec.Provider,
			EndIntent:    rec.EndIntent,
			StopReason:   string(rec.StopReason),
			UserAudioMS:  rec.UserAudio.Milliseconds(),
			ReplyAudioMS: rec.ReplyAudio.Milliseconds(),
		})
	}
	return archive.Manifest{
		SessionID:  e.id,
		StartedAt:  e.startedAt,
		Turns:      entries,
		Finished:   e.finish.Requested(),
		StopReason: string(e.finish.Cause()),
	}
}

// transition applies one FSM event to the engine state.
func (e *Engine) transition(event fsm.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := fsm.Transition(e.state, event)
	if err != nil {
		return err
	}
	e.state = next
	return nil
}

// fail moves to the recoverable idle terminal best-effort.
func (e *Engine) fail() {
	_ = e.transition(fsm.EventFail)
}

// dumpDebugWAV writes one turn's capture to the debug directory when enabled.
func (e *Engine) dumpDebugWAV(turn int, wav []byte) {
	if e.debugDir == "" {
		return
	}
	if err := os.MkdirAll(e.debugDir, 0o700); err != nil {
		e.logger.Warn("debug dir create failed", "error", err.Error())
		return
	}
	path := filepath.Join(e.debugDir, fmt.Sprintf("%s-turn-%03d.wav", e.id, turn))
	if err := os.WriteFile(path, wav, 0o600); err != nil {
		e.logger.Warn("debug wav write failed", "path", path, "error", err.Error())
	}
}

// signalCtx derives a context canceled by the parent or the trigger channel.
func signalCtx(parent context.Context, trigger <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-trigger:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
