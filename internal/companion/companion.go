// Package companion runs the conversation loop: onboarding, then listen, decide, reply, speak.
package companion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/olivia/internal/config"
	"github.com/rbright/olivia/internal/fsm"
	"github.com/rbright/olivia/internal/guard"
	"github.com/rbright/olivia/internal/ipc"
	"github.com/rbright/olivia/internal/llm"
	"github.com/rbright/olivia/internal/memory"
	"github.com/rbright/olivia/internal/metrics"
	"github.com/rbright/olivia/internal/persona"
	"github.com/rbright/olivia/internal/repair"
	"github.com/rbright/olivia/internal/sessionlog"
	"github.com/rbright/olivia/internal/turn"
)

// maxConsecutiveFailures ends the session after this many failed turns in a row.
const maxConsecutiveFailures = 3

// Listener captures one user turn.
type Listener interface {
	Listen(ctx context.Context, params turn.Params) (turn.Turn, error)
	RecordUntilSilence(ctx context.Context, params turn.Params) (turn.Turn, error)
}

// Transcriber is the one-shot recognizer used during onboarding.
type Transcriber interface {
	Recognize(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, req llm.Request) (llm.Response, error)
}

type Guard interface {
	ClassifyIntent(ctx context.Context, userText string) (guard.Intent, llm.Usage, error)
	CheckAndFix(ctx context.Context, userText string, botText string) (guard.Result, error)
}

type Speaker interface {
	Speak(ctx context.Context, text string, speakingRate float64) error
}

// Cuer plays the listening cue.
type Cuer interface {
	Cue(ctx context.Context) error
}

type SessionLog interface {
	Append(rec sessionlog.Record) error
}

// Nudger picks topic nudges. Release returns a nudge that was never spoken.
type Nudger interface {
	Next(questionBudget int, topicChange bool) string
	Release(nudge string)
}

// Deps are the collaborators of one session. Cue, Metrics and Logger may be nil.
type Deps struct {
	Listener   Listener
	Recognizer Transcriber
	Generator  Generator
	Guard      Guard
	Speaker    Speaker
	Cue        Cuer
	Log        SessionLog
	Nudges     Nudger
	Persona    persona.Persona
	Metrics    *metrics.Recorder
	Logger     *slog.Logger
}

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	SessionID  string
	State      fsm.State
	Turns      int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Companion owns one conversation session.
type Companion struct {
	cfg        config.Config
	deps       Deps
	classifier repair.Classifier
	sessionID  string
	now        func() time.Time

	mu    sync.RWMutex
	state fsm.State

	// mem and lastQuestion belong to the Run goroutine.
	mem          *memory.State
	lastQuestion string

	turnIndex     atomic.Int64
	stopRequested atomic.Bool
}

func New(cfg config.Config, deps Deps) *Companion {
	return &Companion{
		cfg:        cfg,
		deps:       deps,
		classifier: repair.NewClassifier(cfg.Repair.Params()),
		sessionID:  sessionlog.NewSessionID(),
		now:        time.Now,
		state:      fsm.StateIdle,
		mem:        memory.New(cfg.Memory.SummaryChars),
	}
}

func (c *Companion) SessionID() string {
	return c.sessionID
}

// State returns the current FSM state snapshot.
func (c *Companion) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Companion) transition(event fsm.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logWarn("state transition rejected", "error", err)
		return
	}
	c.state = next
}

// Run performs onboarding and then loops turns until EXIT, a stop request, ctx cancellation
// or too many consecutive turn failures.
func (c *Companion) Run(ctx context.Context) Result {
	result := Result{SessionID: c.sessionID, StartedAt: c.now()}
	done := func(err error) Result {
		result.State = c.State()
		result.Turns = int(c.turnIndex.Load())
		result.Err = err
		result.FinishedAt = c.now()
		return result
	}

	c.transition(fsm.EventStart)
	c.logInfo("session started")

	failures := 0
	if err := c.onboard(ctx); err != nil {
		if ctx.Err() != nil {
			c.transition(fsm.EventExit)
			return done(ctx.Err())
		}
		c.recordFailure(err)
		failures++
		c.transition(fsm.EventReset)
	} else {
		c.transition(fsm.EventOnboarded)
	}

	for {
		if c.stopRequested.Load() {
			c.transition(fsm.EventExit)
			c.logInfo("session stopped on request")
			return done(nil)
		}
		if ctx.Err() != nil {
			c.transition(fsm.EventExit)
			return done(ctx.Err())
		}

		exit, err := c.runTurn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.transition(fsm.EventExit)
				return done(ctx.Err())
			}
			c.recordFailure(err)
			failures++
			if failures >= maxConsecutiveFailures {
				return done(fmt.Errorf("%d consecutive turn failures: %w", failures, err))
			}
			c.transition(fsm.EventReset)
			continue
		}
		failures = 0
		if exit {
			c.logInfo("session ended by user")
			return done(nil)
		}
	}
}

// Handle serves IPC commands for the running session.
func (c *Companion) Handle(_ context.Context, req ipc.Request) ipc.Response {
	state := string(c.State())
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, State: state, Turn: int(c.turnIndex.Load()), Message: "status"}
	case ipc.CommandStop:
		if c.stopRequested.Swap(true) {
			return ipc.Response{OK: true, State: state, Message: "stop already requested"}
		}
		return ipc.Response{OK: true, State: state, Message: "stop requested"}
	default:
		return ipc.Response{OK: false, State: state, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// recordFailure moves the machine to error and reports the failed stage.
func (c *Companion) recordFailure(err error) {
	c.transition(fsm.EventFail)
	stage := StageOf(err)
	c.deps.Metrics.TurnFailure(string(stage))
	if c.deps.Logger != nil {
		c.deps.Logger.Error("turn failed", "session_id", c.sessionID, "turn", c.turnIndex.Load(), "stage", string(stage), "error", err)
	}
}

func (c *Companion) failure(stage Stage, err error) error {
	return &TurnError{Stage: stage, Err: err}
}

func (c *Companion) logInfo(msg string, args ...any) {
	if c.deps.Logger == nil {
		return
	}
	c.deps.Logger.Info(msg, append([]any{"session_id", c.sessionID}, args...)...)
}

func (c *Companion) logWarn(msg string, args ...any) {
	if c.deps.Logger == nil {
		return
	}
	c.deps.Logger.Warn(msg, append([]any{"session_id", c.sessionID}, args...)...)
}
