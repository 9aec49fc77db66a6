package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ltl/internal/arbiter"
	"ltl/internal/domain"
	"ltl/internal/metrics"
)

const (
	defaultMaxIterations = 20
	releaseTimeout       = 30 * time.Second
)

// State is a step of the per-turn state machine.
type State int

const (
	StateIdle State = iota
	StateClassifying
	StateResourceAcquire
	StateInvoking
	StateToolLoop
	StateResponding
)

func (s State) String() string {
	switch s {
	case StateClassifying:
		return "classifying"
	case StateResourceAcquire:
		return "resource_acquire"
	case StateInvoking:
		return "invoking"
	case StateToolLoop:
		return "tool_loop"
	case StateResponding:
		return "responding"
	default:
		return "idle"
	}
}

// ToolExecutor is the part of the tool registry a session needs.
type ToolExecutor interface {
	Definitions() []domain.ToolDefinition
	Execute(ctx context.Context, name string, args map[string]any) domain.ToolResult
}

// TurnLog persists finished turns outside the in-memory history.
type TurnLog interface {
	AppendTurn(ctx context.Context, sessionID string, turn domain.Turn, intent string) error
}

// ToolRun is one tool invocation made while answering a turn.
type ToolRun struct {
	Call   domain.ToolCall
	Result domain.ToolResult
}

// TurnResult is what HandleTurn produced. Degraded marks a fallback answer
// written because something failed; Truncated marks a tool loop stopped by
// the iteration ceiling.
type TurnResult struct {
	Text      string
	Intent    domain.Intent
	Degraded  bool
	Truncated bool
	Swapped   bool
	ToolCalls []ToolRun
	Duration  time.Duration
}

// Options wires a Session. Arbiter, Generator, Tools and Classifier are
// required; the rest are optional.
type Options struct {
	ID         string
	Arbiter    *arbiter.Arbiter
	Generator  domain.Generator
	Vision     domain.VisionAnalyzer
	Images     domain.ImageSource
	Tools      ToolExecutor
	Classifier *Classifier
	Prompt     *PromptBuilder
	TurnLog    TurnLog
	Throttle   *Throttle // optional, for hosted backends

	// Models names the model to load for each resource class.
	Models map[domain.ResourceClass]string
	// KeepLoaded lists the classes left resident after a turn. Classes not
	// present are released as soon as no turn holds them.
	KeepLoaded map[domain.ResourceClass]bool

	MaxToolIterations int
	HistorySize       int
	Temperature       float64
	VisionPrompt      string

	OnTransition func(from, to State)
	Logger       *slog.Logger
}

// Session is one conversation. Turns are handled one at a time; several
// sessions may share an Arbiter and a tool registry.
type Session struct {
	opts    Options
	id      string
	history *History
	logger  *slog.Logger

	mu    sync.Mutex // held for a whole turn
	state State
}

func NewSession(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = defaultMaxIterations
	}
	if opts.Prompt == nil {
		opts.Prompt = NewPromptBuilder(".", "", nil, opts.Logger)
	}
	if opts.VisionPrompt == "" {
		opts.VisionPrompt = "Describe what you see in this image."
	}
	return &Session{
		opts:    opts,
		id:      opts.ID,
		history: NewHistory(opts.HistorySize),
		logger:  opts.Logger.With("session", opts.ID),
	}
}

func (s *Session) ID() string { return s.id }

// History returns a copy of the conversation so far.
func (s *Session) History() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Turns()
}

// Reset clears the conversation history.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Clear()
}

// HandleTurn answers one user message. The only error it returns is the
// context's; every other failure becomes a degraded answer in the result.
func (s *Session) HandleTurn(ctx context.Context, text string) (*TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	metrics.TurnsTotal.Inc()
	res := &TurnResult{}

	err := s.handle(ctx, text, res)
	res.Duration = time.Since(start)
	if err != nil {
		s.setState(StateIdle)
		s.logger.Info("turn cancelled", "error", err, "duration", res.Duration)
		return nil, err
	}
	if res.Degraded {
		metrics.TurnsDegraded.Inc()
	}

	s.setState(StateResponding)
	if res.Intent.Kind != domain.IntentUnknown {
		s.record(ctx, text, res)
	}
	s.setState(StateIdle)

	s.logger.Info("turn complete",
		"intent", res.Intent.Kind,
		"degraded", res.Degraded,
		"truncated", res.Truncated,
		"tools", len(res.ToolCalls),
		"duration", res.Duration,
	)
	return res, nil
}

func (s *Session) handle(ctx context.Context, text string, res *TurnResult) error {
	s.setState(StateClassifying)
	res.Intent = s.opts.Classifier.Classify(text)

	switch res.Intent.Kind {
	case domain.IntentUnknown:
		res.Text = "I didn't catch that. Could you say it again?"
		return nil
	case domain.IntentToolDirect:
		s.setState(StateInvoking)
		return s.runDirective(ctx, text, res)
	}

	class := res.Intent.Kind.Resource()
	s.setState(StateResourceAcquire)
	hold, err := s.opts.Arbiter.Acquire(ctx, class, s.opts.Models[class])
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("resource unavailable", "class", class, "error", err)
		res.Degraded = true
		res.Text = unavailableReply(class)
		return nil
	}
	res.Swapped = hold.Swapped
	defer s.releaseHold(ctx, &hold, class)

	s.setState(StateInvoking)
	if class == domain.ResourceVision {
		err = s.runVision(ctx, text, res)
	} else {
		err = s.runChat(ctx, text, res)
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return err
}

// releaseHold drops the turn's hold and applies the keep-loaded policy. A
// cancelled turn always releases its class if nothing else holds it.
func (s *Session) releaseHold(ctx context.Context, hold *arbiter.AcquireResult, class domain.ResourceClass) {
	hold.Done()
	if ctx.Err() == nil && s.opts.KeepLoaded[class] {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	released, err := s.opts.Arbiter.ReleaseIdle(rctx, class)
	if err != nil {
		s.logger.Warn("release failed", "class", class, "error", err)
		return
	}
	if released {
		s.logger.Debug("released model", "class", class)
	}
}

func (s *Session) runVision(ctx context.Context, text string, res *TurnResult) error {
	if s.opts.Vision == nil || s.opts.Images == nil {
		res.Degraded = true
		res.Text = "I can't see anything right now: no camera or image source is set up."
		return nil
	}
	img, err := s.opts.Images.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("image capture failed", "error", err)
		res.Degraded = true
		res.Text = "I couldn't capture an image just now. Please check the camera and try again."
		return nil
	}

	prompt := s.opts.VisionPrompt + "\nThe user asked: " + text
	answer, err := s.opts.Vision.Analyze(ctx, domain.VisionRequest{
		Model:  s.opts.Models[domain.ResourceVision],
		Prompt: prompt,
		Image:  img,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("vision backend failed", "error", err)
		res.Degraded = true
		res.Text = backendFailureReply
		return nil
	}
	res.Text = strings.TrimSpace(answer)
	return nil
}

func (s *Session) runDirective(ctx context.Context, text string, res *TurnResult) error {
	d, err := ParseDirective(text)
	if err != nil {
		res.Text = err.Error()
		return nil
	}
	call := domain.ToolCall{ID: "call_" + uuid.NewString(), Name: d.Tool, Arguments: d.Args}
	result := s.opts.Tools.Execute(ctx, d.Tool, d.Args)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	res.ToolCalls = append(res.ToolCalls, ToolRun{Call: call, Result: result})
	if !result.Success {
		res.Text = fmt.Sprintf("%s failed: %s", d.Tool, result.Error)
		return nil
	}
	res.Text = FormatData(result.Data)
	return nil
}

// record appends the exchange to the history and, when configured, the
// persistent turn log.
func (s *Session) record(ctx context.Context, text string, res *TurnResult) {
	now := time.Now()
	user := domain.Turn{Role: domain.RoleUser, Text: text, Timestamp: now}
	reply := domain.Turn{Role: domain.RoleAssistant, Text: res.Text, Timestamp: now}
	s.history.AppendExchange(user, reply)

	if s.opts.TurnLog == nil {
		return
	}
	lctx := context.WithoutCancel(ctx)
	intent := res.Intent.Kind.String()
	for _, t := range []domain.Turn{user, reply} {
		if err := s.opts.TurnLog.AppendTurn(lctx, s.id, t, intent); err != nil {
			s.logger.Warn("failed to persist turn", "error", err)
			return
		}
	}
}

func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	if s.opts.OnTransition != nil {
		s.opts.OnTransition(from, to)
	}
}

const backendFailureReply = "Sorry, I couldn't reach the model just now. Please try again in a moment."

func unavailableReply(class domain.ResourceClass) string {
	if class == domain.ResourceVision {
		return "Sorry, the vision model couldn't be loaded, so I can't look at anything right now."
	}
	return "Sorry, the language model couldn't be loaded. Is the model server running?"
}

// IsCancelled reports whether err came from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
