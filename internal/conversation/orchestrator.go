// ABOUTME: Turn state machine: echo, compose, dispatch, broadcast reply or error
// ABOUTME: Dispatches run concurrently and finish in completion order

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/compose"
	"github.com/2389/coven-chat/internal/llm"
	"github.com/2389/coven-chat/internal/skills"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// FailureMessage is broadcast to the room when a dispatch fails.
const FailureMessage = "Failed to process message"

// recordTimeout bounds each persistence call.
const recordTimeout = 5 * time.Second

// State is a step in a turn's lifecycle.
type State int

const (
	StateReceived State = iota
	StateEchoed
	StateComposed
	StateDispatched
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "RECEIVED"
	case StateEchoed:
		return "ECHOED"
	case StateComposed:
		return "COMPOSED"
	case StateDispatched:
		return "DISPATCHED"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ValidationError rejects a request before any side effect.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Broadcaster fans events out to a room.
type Broadcaster interface {
	Broadcast(roomID string, turn chat.Turn) int
	BroadcastError(roomID, message string) int
}

// Invoker runs messages against the selected provider.
type Invoker interface {
	Invoke(ctx context.Context, sel llm.Selection, messages []llm.Message) (*llm.Response, error)
}

// Recorder persists turns. Failures are logged and never change the outcome
// of a turn.
type Recorder interface {
	SaveTurn(ctx context.Context, conversationID string, turn chat.Turn) error
}

// SkillResolver turns skill names into context text.
type SkillResolver interface {
	Context(names ...string) (string, error)
}

// Observer is told about every state a turn enters.
type Observer func(roomID, turnID string, state State)

// SendRequest is one incoming turn.
type SendRequest struct {
	RoomID        string   `json:"roomId"`
	Content       string   `json:"content"`
	Role          string   `json:"role"`
	SkillsContext string   `json:"skillsContext,omitempty"`
	Skills        []string `json:"skills,omitempty"`
	AudioPayload  string   `json:"audioPayload,omitempty"`
	Name          string   `json:"name,omitempty"`
	SubRole       string   `json:"subRole,omitempty"`
	Provider      string   `json:"provider,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder persists echoed and assistant turns.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithSkills enables the skills field of SendRequest.
func WithSkills(s SkillResolver) Option {
	return func(o *Orchestrator) { o.skills = s }
}

// WithObserver registers a state observer.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithTracer traces each dispatch as one span. The default tracer records
// nothing.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator processes turns for every room.
type Orchestrator struct {
	rooms    Broadcaster
	provider Invoker
	recorder Recorder
	skills   SkillResolver
	observer Observer
	tracer   trace.Tracer
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewOrchestrator wires an orchestrator to its room fan-out and provider.
func NewOrchestrator(rooms Broadcaster, provider Invoker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		rooms:    rooms,
		provider: provider,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("coven-chat/conversation")
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// Send accepts a turn, echoes it to the room and, for user turns, starts a
// dispatch in the background. It returns the echoed turn. Validation
// failures return *ValidationError and have no side effects.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) (chat.Turn, error) {
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		return chat.Turn{}, &ValidationError{Message: "roomId is required"}
	}
	if strings.TrimSpace(req.Content) == "" {
		return chat.Turn{}, &ValidationError{Message: "content is required"}
	}
	skillsContext, err := o.resolveSkills(req)
	if err != nil {
		return chat.Turn{}, err
	}

	turn := chat.NewTurn(chat.ParseRole(req.Role), req.Content)
	turn.AudioPayload = req.AudioPayload
	turn.Name = req.Name
	turn.SubRole = req.SubRole
	o.observe(roomID, turn.ID, StateReceived)

	o.rooms.Broadcast(roomID, turn)
	o.observe(roomID, turn.ID, StateEchoed)
	o.record(roomID, turn)

	if turn.Role != chat.RoleUser {
		return turn, nil
	}

	o.wg.Add(1)
	go o.dispatch(context.WithoutCancel(ctx), roomID, turn, skillsContext, llm.ParseSelection(req.Provider))
	return turn, nil
}

// Wait blocks until every in-flight dispatch has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (o *Orchestrator) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) resolveSkills(req SendRequest) (string, error) {
	if len(req.Skills) == 0 {
		return req.SkillsContext, nil
	}
	if o.skills == nil {
		return "", &ValidationError{Message: "skills are not available"}
	}
	resolved, err := o.skills.Context(req.Skills...)
	if err != nil {
		var unknown *skills.UnknownSkillError
		if errors.As(err, &unknown) {
			return "", &ValidationError{Message: unknown.Error()}
		}
		return "", fmt.Errorf("resolving skills: %w", err)
	}

	parts := make([]string, 0, 2)
	for _, p := range []string{req.SkillsContext, resolved} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (o *Orchestrator) dispatch(ctx context.Context, roomID string, turn chat.Turn, skillsContext string, sel llm.Selection) {
	defer o.wg.Done()

	ctx, span := o.tracer.Start(ctx, "conversation.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("chat.room_id", roomID),
			attribute.String("chat.turn_id", turn.ID),
			attribute.String("llm.selection", string(sel)),
		))
	defer span.End()

	start := time.Now()
	reply, err := o.complete(ctx, roomID, turn, skillsContext, sel)
	if err != nil {
		o.logger.Error("dispatch failed",
			"room_id", roomID,
			"turn_id", turn.ID,
			"provider", sel,
			"error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, FailureMessage)
		o.rooms.BroadcastError(roomID, FailureMessage)
		o.observe(roomID, turn.ID, StateFailed)
		return
	}

	span.SetAttributes(attribute.String("chat.reply_id", reply.ID))
	span.SetStatus(codes.Ok, "")
	o.rooms.Broadcast(roomID, reply)
	o.observe(roomID, turn.ID, StateCompleted)
	o.logger.Debug("dispatch completed",
		"room_id", roomID,
		"turn_id", turn.ID,
		"reply_id", reply.ID,
		"provider", sel,
		"duration", time.Since(start))
	o.record(roomID, reply)
}

// complete composes and invokes the provider. A panic in a backend is
// reported as an error so the turn still ends in FAILED.
func (o *Orchestrator) complete(ctx context.Context, roomID string, turn chat.Turn, skillsContext string, sel llm.Selection) (reply chat.Turn, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()

	messages := compose.Compose(turn.Content, skillsContext)
	o.observe(roomID, turn.ID, StateComposed)

	o.observe(roomID, turn.ID, StateDispatched)
	resp, err := o.provider.Invoke(ctx, sel, messages)
	if err != nil {
		return chat.Turn{}, err
	}
	text, err := resp.Text()
	if err != nil {
		return chat.Turn{}, err
	}
	return chat.NewTurn(chat.RoleAssistant, text), nil
}

// record saves a turn with its own timeout so persistence is not tied to
// the client connection.
func (o *Orchestrator) record(roomID string, turn chat.Turn) {
	if o.recorder == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := o.recorder.SaveTurn(saveCtx, roomID, turn); err != nil {
		o.logger.Error("failed to record turn",
			"room_id", roomID,
			"turn_id", turn.ID,
			"role", turn.Role,
			"error", err)
	}
}

func (o *Orchestrator) observe(roomID, turnID string, s State) {
	o.logger.Debug("turn state", "room_id", roomID, "turn_id", turnID, "state", s.String())
	if o.observer != nil {
		o.observer(roomID, turnID, s)
	}
}
