// ABOUTME: Controller orchestrates one agent turn at a time over the conversation store
// ABOUTME: Owns the single live session slot; stale sessions can never clear a newer one

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/agentchat/internal/conversation"
	"github.com/2389/agentchat/internal/frame"
	"github.com/2389/agentchat/internal/transport"
)

// ErrEmptyMessage is returned when the user sends only whitespace.
var ErrEmptyMessage = errors.New("message is empty")

// State is the lifecycle position of the most recent turn.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateStreaming
	StateCompleted
	StateFailed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// terminal reports whether the turn has ended.
func (s State) terminal() bool {
	return s >= StateCompleted
}

// Store is what the controller needs from the conversation model.
type Store interface {
	Active() string
	CreateConversation(firstUserText string) string
	AppendUserMessage(convID, text string) (string, error)
	BeginAssistantMessage(convID string) (string, error)
	ApplyFrame(convID, msgID string, f frame.Frame) bool
	FinalizeAssistantMessage(convID, msgID, serverConvID string, ok bool) (conversation.Outcome, bool)
	MarkAborted(convID, msgID string) bool
	ServerID(convID string) (string, error)
	Select(convID string) error
	ClearSelection()
	DeleteConversation(convID string) error
}

// Stream is an open exchange that can be cancelled.
type Stream interface {
	Abort()
}

// OpenFunc starts one exchange with the agent and returns immediately.
// Events for the exchange are delivered to h.
type OpenFunc func(ctx context.Context, task, conversationID string, h transport.Handler) Stream

// StreamOpener opens exchanges on the streaming endpoint.
func StreamOpener(c *transport.Client) OpenFunc {
	return func(ctx context.Context, task, conversationID string, h transport.Handler) Stream {
		return c.Open(ctx, task, conversationID, h)
	}
}

// ExecuteOpener opens exchanges on the legacy non-streaming endpoint.
func ExecuteOpener(c *transport.Client) OpenFunc {
	return func(ctx context.Context, task, conversationID string, h transport.Handler) Stream {
		return c.OpenExecute(ctx, task, conversationID, h)
	}
}

// Turn identifies the messages of one user turn.
type Turn struct {
	ConversationID string
	MessageID      string
}

// Controller turns user intents into store mutations and agent exchanges.
//
// Intents (SendMessage, StopGeneration, the conversation intents) are
// serialized by intentMu. Transport callbacks never take intentMu, so an
// intent may wait for an in-flight callback inside Abort without deadlock.
type Controller struct {
	store  Store
	open   OpenFunc
	logger *slog.Logger

	intentMu sync.Mutex

	mu     sync.Mutex
	live   *liveSession // nil when no exchange is in flight
	latest *liveSession // most recent turn, for State
	notify func(error)
}

// New creates a controller. Pass nil logger for default.
func New(store Store, open OpenFunc, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:  store,
		open:   open,
		logger: logger.With("component", "session"),
	}
}

// SetNotifier installs a callback for transport failures. It runs on the
// transport goroutine and must not block or call back into the controller.
func (c *Controller) SetNotifier(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

// SendMessage starts a turn in the active conversation, creating one when
// none is selected. A turn still in flight is stopped first.
func (c *Controller) SendMessage(ctx context.Context, text string) (Turn, error) {
	if strings.TrimSpace(text) == "" {
		return Turn{}, ErrEmptyMessage
	}

	c.intentMu.Lock()
	defer c.intentMu.Unlock()

	c.stopLive()

	convID := c.store.Active()
	if convID == "" {
		convID = c.store.CreateConversation(text)
	}

	if _, err := c.store.AppendUserMessage(convID, text); err != nil {
		return Turn{}, fmt.Errorf("appending user message: %w", err)
	}
	msgID, err := c.store.BeginAssistantMessage(convID)
	if err != nil {
		return Turn{}, fmt.Errorf("beginning assistant message: %w", err)
	}
	serverID, err := c.store.ServerID(convID)
	if err != nil {
		return Turn{}, fmt.Errorf("looking up server conversation: %w", err)
	}

	s := &liveSession{c: c, convID: convID, msgID: msgID, state: StateStarting}

	// Install before opening so a callback that fires before open returns
	// finds its own session in the slot.
	c.mu.Lock()
	c.live = s
	c.latest = s
	c.mu.Unlock()

	c.logger.Debug("opening exchange",
		"conversation_id", convID,
		"message_id", msgID,
		"server_id", serverID)

	stream := c.open(ctx, text, serverID, s)

	c.mu.Lock()
	s.stream = stream
	if s.state == StateStarting {
		s.state = StateStreaming
	}
	c.mu.Unlock()

	return Turn{ConversationID: convID, MessageID: msgID}, nil
}

// StopGeneration aborts the live exchange and marks its message stopped.
// It reports whether anything was stopped.
func (c *Controller) StopGeneration() bool {
	c.intentMu.Lock()
	defer c.intentMu.Unlock()
	return c.stopLive()
}

// stopLive detaches and aborts the live session. Caller holds intentMu.
func (c *Controller) stopLive() bool {
	c.mu.Lock()
	s := c.live
	c.live = nil
	var stream Stream
	if s != nil {
		s.state = StateAborted
		stream = s.stream
	}
	c.mu.Unlock()

	if s == nil {
		return false
	}

	// Abort waits for an in-flight callback; c.mu must not be held here.
	if stream != nil {
		stream.Abort()
	}
	c.store.MarkAborted(s.convID, s.msgID)

	c.logger.Debug("stopped exchange", "conversation_id", s.convID, "message_id", s.msgID)
	return true
}

// NewConversation clears the selection so the next message starts a new
// conversation.
func (c *Controller) NewConversation() {
	c.intentMu.Lock()
	defer c.intentMu.Unlock()
	c.store.ClearSelection()
}

// SelectConversation makes convID the target of the next message.
func (c *Controller) SelectConversation(convID string) error {
	c.intentMu.Lock()
	defer c.intentMu.Unlock()
	return c.store.Select(convID)
}

// DeleteConversation removes a conversation, stopping its exchange first if
// one is in flight.
func (c *Controller) DeleteConversation(convID string) error {
	c.intentMu.Lock()
	defer c.intentMu.Unlock()

	c.mu.Lock()
	owned := c.live != nil && c.live.convID == convID
	c.mu.Unlock()

	if owned {
		c.stopLive()
	}
	return c.store.DeleteConversation(convID)
}

// State returns the lifecycle state of the most recent turn.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.latest == nil {
		return StateIdle
	}
	return c.latest.state
}

// Live returns the turn currently in flight.
func (c *Controller) Live() (Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live == nil {
		return Turn{}, false
	}
	return Turn{ConversationID: c.live.convID, MessageID: c.live.msgID}, true
}

// finish records a terminal state and clears the slot if s still owns it.
func (c *Controller) finish(s *liveSession, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !s.state.terminal() {
		s.state = state
	}
	if c.live == s {
		c.live = nil
	}
}

func (c *Controller) notifier() func(error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notify
}

// liveSession binds one exchange to the message it fills. It is the
// transport.Handler for that exchange.
type liveSession struct {
	c      *Controller
	convID string
	msgID  string

	// Guarded by c.mu.
	stream Stream
	state  State
}

func (s *liveSession) OnMessage(f frame.Frame) {
	s.c.store.ApplyFrame(s.convID, s.msgID, f)
}

func (s *liveSession) OnComplete(serverConversationID string) {
	outcome, _ := s.c.store.FinalizeAssistantMessage(s.convID, s.msgID, serverConversationID, true)

	state := StateCompleted
	if outcome == conversation.OutcomeFailure {
		state = StateFailed
	}
	s.c.finish(s, state)

	s.c.logger.Debug("exchange completed",
		"conversation_id", s.convID,
		"message_id", s.msgID,
		"outcome", outcome)
}

func (s *liveSession) OnError(err error) {
	s.c.store.ApplyFrame(s.convID, s.msgID, frame.Error(err.Error()))
	s.c.store.FinalizeAssistantMessage(s.convID, s.msgID, "", false)
	s.c.finish(s, StateFailed)

	s.c.logger.Warn("exchange failed",
		"conversation_id", s.convID,
		"message_id", s.msgID,
		"error", err)

	if notify := s.c.notifier(); notify != nil {
		notify(err)
	}
}
