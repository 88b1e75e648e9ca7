package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/deepc0py/Jamie/internal/errs"
)

// State is the workflow state of one streaming run.
type State string

const (
	StateIdle            State = "idle"
	StateStartingSandbox State = "starting_sandbox"
	StateLoggingIn       State = "logging_in"
	StateJoiningVoice    State = "joining_voice"
	StateOpeningURL      State = "opening_url"
	StateStartingShare   State = "starting_share"
	StateStreaming       State = "streaming"
	StateStopping        State = "stopping"
	StateStopped         State = "stopped"
	StateError           State = "error"
)

// Context carries everything one streaming run needs.
type Context struct {
	SessionID   string
	URL         string
	GuildID     string
	ChannelID   string
	ChannelName string

	DiscordEmail    string
	DiscordPassword string

	MaxBudget     float64
	MaxIterations int
	StartTimeout  time.Duration
	PollInterval  time.Duration
}

// SandboxRunner manages the desktop sandbox a run executes in. StartSandbox
// returns the endpoint of the computer-use runtime inside the sandbox.
type SandboxRunner interface {
	StartSandbox(ctx context.Context, sessionID string) (string, error)
	StopSandbox(ctx context.Context, sessionID string) error
}

// Streamer executes the full workflow for one session: start sandbox, log
// in, join voice, open the URL, share the screen, then hold the stream until
// stopped.
type Streamer struct {
	run      Context
	sandbox  SandboxRunner
	engines  EngineFactory
	reporter *Reporter

	mu         sync.Mutex
	state      State
	errMsg     string
	cost       float64
	iterations int
	startedAt  time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStreamer builds a run. Nothing happens until Run is called.
func NewStreamer(run Context, sandbox SandboxRunner, engines EngineFactory, reporter *Reporter) *Streamer {
	return &Streamer{
		run:      run,
		sandbox:  sandbox,
		engines:  engines,
		reporter: reporter,
		state:    StateIdle,
		stopCh:   make(chan struct{}),
	}
}

// State returns the current workflow state.
func (s *Streamer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cost returns the accumulated model spend for this run.
func (s *Streamer) Cost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cost
}

// StartedAt returns when Run began, zero before the run starts.
func (s *Streamer) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// ErrorMessage returns the failure message, empty while healthy.
func (s *Streamer) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Stop requests a graceful shutdown. Safe to call from any goroutine, any
// number of times, at any point in the run.
func (s *Streamer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Streamer) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Streamer) setError(msg string) {
	s.mu.Lock()
	s.state = StateError
	s.errMsg = msg
	s.mu.Unlock()
}

// progress snapshots the counters carried in every status report.
func (s *Streamer) progress() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"iterations": s.iterations,
		"cost":       s.cost,
	}
}

func (s *Streamer) stopRequested() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// Run executes the workflow. It blocks until the stream ends, a setup step
// fails, or ctx is canceled. The sandbox is always torn down before Run
// returns.
func (s *Streamer) Run(ctx context.Context) error {
	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	// Setup has a wall-clock ceiling; an agent wandering in circles should
	// fail, not hold the session forever.
	setupCtx, cancelSetup := context.WithTimeout(ctx, s.run.StartTimeout)
	defer cancelSetup()

	s.setState(StateStartingSandbox)
	s.reporter.Report(ctx, s.run.SessionID, "starting", "Starting sandbox", "", s.progress())

	endpoint, err := s.sandbox.StartSandbox(setupCtx, s.run.SessionID)
	if err != nil {
		code := errs.CodeSandboxFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = errs.CodeSandboxTimeout
		}
		return s.fail(ctx, errs.Newf(code, "start sandbox: %v", err))
	}
	defer s.teardownSandbox()

	engine := s.engines(endpoint)

	steps := []struct {
		state       State
		status      string
		instruction string
		success     string
		fallback    errs.Code
	}{
		{StateLoggingIn, "logging_in",
			loginInstruction(s.run.DiscordEmail, s.run.DiscordPassword),
			"LOGIN_SUCCESS", errs.CodeDiscordLoginFailed},
		{StateJoiningVoice, "joining_voice",
			joinVoiceInstruction(s.run.GuildID, s.run.ChannelName),
			"JOINED_CHANNEL", errs.CodeVoiceJoinFailed},
		{StateOpeningURL, "opening_url",
			openURLInstruction(s.run.URL),
			"URL_LOADED", errs.CodeURLUnreachable},
		{StateStartingShare, "sharing_screen",
			startShareInstruction(s.run.URL),
			"SCREEN_SHARE_STARTED", errs.CodeScreenShareFailed},
	}

	for _, step := range steps {
		if s.stopRequested() {
			return s.shutdown(ctx, engine, false)
		}

		s.setState(step.state)
		s.reporter.Report(ctx, s.run.SessionID, step.status, "", "", s.progress())

		if stepErr := s.runStep(setupCtx, engine, step.instruction, step.success, step.fallback); stepErr != nil {
			return s.fail(ctx, stepErr)
		}
	}

	s.setState(StateStreaming)
	s.reporter.Report(ctx, s.run.SessionID, "streaming", "Stream is live", "", s.progress())
	slog.Info("stream is live", "session_id", s.run.SessionID, "url", s.run.URL)

	// Hold the stream until someone asks us to stop.
	ticker := time.NewTicker(s.run.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return s.shutdown(ctx, engine, true)
		case <-ctx.Done():
			return s.shutdown(context.Background(), engine, true)
		case <-ticker.C:
			// Streaming continues; nothing to verify between ticks.
		}
	}
}

// runStep executes one instruction and interprets its outcome. Budget and
// iteration limits are enforced here, after every model call.
func (s *Streamer) runStep(ctx context.Context, engine Engine, instruction, successMarker string, fallback errs.Code) *errs.Error {
	result, err := engine.RunTask(ctx, instruction)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errs.Newf(errs.CodeAgentTimeout, "step timed out: %v", err)
		}
		return errs.Newf(errs.CodeSandboxFailed, "run task: %v", err)
	}

	s.mu.Lock()
	s.cost += result.Cost
	s.iterations++
	cost, iterations := s.cost, s.iterations
	s.mu.Unlock()

	if cost > s.run.MaxBudget {
		return errs.Newf(errs.CodeBudgetExceeded, "spent %.2f of %.2f budget", cost, s.run.MaxBudget)
	}
	if iterations > s.run.MaxIterations {
		return errs.Newf(errs.CodeMaxIterations, "exceeded %d iterations", s.run.MaxIterations)
	}

	if !hasMarker(result.Output, successMarker) {
		code := classifyFailure(result.Output, fallback)
		return errs.Newf(code, "step did not report %s", successMarker)
	}
	return nil
}

// shutdown ends the stream gracefully: stop sharing and leave voice when the
// stream got that far, then report the terminal status. Best effort; the
// sandbox teardown in Run's defer is the real cleanup.
func (s *Streamer) shutdown(ctx context.Context, engine Engine, wasLive bool) error {
	s.setState(StateStopping)
	s.reporter.Report(ctx, s.run.SessionID, "stopping", "", "", s.progress())

	if wasLive && engine != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := engine.RunTask(stopCtx, stopSharePrompt); err != nil {
			slog.Warn("failed to stop screen share cleanly", "session_id", s.run.SessionID, "error", err)
		}
		if _, err := engine.RunTask(stopCtx, leaveVoicePrompt); err != nil {
			slog.Warn("failed to leave voice cleanly", "session_id", s.run.SessionID, "error", err)
		}
	}

	s.setState(StateStopped)
	s.reporter.Report(ctx, s.run.SessionID, "stopped", "Stream ended", "", s.progress())
	slog.Info("stream stopped", "session_id", s.run.SessionID)
	return nil
}

// fail records the error, reports it, and returns it.
func (s *Streamer) fail(ctx context.Context, failure *errs.Error) error {
	s.setError(failure.Message)
	details := s.progress()
	for k, v := range failure.Details {
		details[k] = v
	}
	s.reporter.Report(ctx, s.run.SessionID, "failed", failure.Message, string(failure.Code), details)
	slog.Error("stream failed",
		"session_id", s.run.SessionID,
		"error_code", failure.Code,
		"error", failure.Message)
	return failure
}

func (s *Streamer) teardownSandbox() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.sandbox.StopSandbox(ctx, s.run.SessionID); err != nil {
		slog.Error("failed to stop sandbox", "session_id", s.run.SessionID, "error", err)
	}
}
