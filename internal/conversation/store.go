// ABOUTME: Store is the authoritative in-memory model of conversations and messages
// ABOUTME: Streamed frames are folded into assistant messages here and nowhere else

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agentchat/internal/frame"
)

var (
	// ErrConversationNotFound is returned for an unknown conversation ID.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound is returned for an unknown message ID.
	ErrMessageNotFound = errors.New("message not found")
)

const (
	titleLimit      = 30
	toolLogLimit    = 100
	toolStepLimit   = 200
	ellipsis        = "..."
	fallbackAnswer  = "Sorry, no response was received."
	stopAnnotation  = "\n\n_(stopped)_"
	errorAnnotation = "\n\n❌ Error: "
	toolCallPrefix  = "🔧 "
)

// Store holds every conversation of the process. All methods are safe for
// concurrent use; mutations are serialized behind one mutex.
type Store struct {
	mu     sync.Mutex
	convs  []*Conversation // most recent first
	byID   map[string]*Conversation
	active string

	events *Broadcaster
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates an empty store. Pass nil logger for default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		byID:   make(map[string]*Conversation),
		events: NewBroadcaster(logger),
		logger: logger.With("component", "conversation_store"),
		now:    time.Now,
	}
}

// Subscribe streams changes for one conversation, or for all of them when key
// is AllConversations.
func (s *Store) Subscribe(ctx context.Context, key string) (<-chan Change, string) {
	return s.events.Subscribe(ctx, key)
}

// Close releases every subscriber.
func (s *Store) Close() {
	s.events.Close()
}

// CreateConversation starts a conversation titled after its first message,
// places it at the top of the list and selects it.
func (s *Store) CreateConversation(firstUserText string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := &Conversation{
		ID:        uuid.New().String(),
		Title:     Title(firstUserText),
		CreatedAt: s.now(),
	}
	s.convs = append([]*Conversation{conv}, s.convs...)
	s.byID[conv.ID] = conv
	s.active = conv.ID

	s.logger.Debug("created conversation", "conversation_id", conv.ID)
	s.publish(ChangeConversationCreated, conv.ID, "")
	s.publish(ChangeSelection, conv.ID, "")
	return conv.ID
}

// AppendUserMessage adds an immutable user message.
func (s *Store) AppendUserMessage(convID, text string) (string, error) {
	return s.appendMessage(convID, Message{Role: RoleUser, Content: text})
}

// BeginAssistantMessage adds an empty streaming assistant message and returns
// its ID.
func (s *Store) BeginAssistantMessage(convID string) (string, error) {
	return s.appendMessage(convID, Message{Role: RoleAssistant, Streaming: true})
}

func (s *Store) appendMessage(convID string, msg Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[convID]
	if !ok {
		return "", fmt.Errorf("append %s message to %s: %w", msg.Role, convID, ErrConversationNotFound)
	}

	msg.ID = uuid.New().String()
	msg.CreatedAt = s.now()
	conv.Messages = append(conv.Messages, msg)

	s.publish(ChangeMessageAppended, convID, msg.ID)
	return msg.ID, nil
}

// ApplyFrame folds f into the assistant message. Frames addressed to a message
// that is no longer the last one of its conversation, or no longer streaming,
// are dropped and ApplyFrame reports false.
func (s *Store) ApplyFrame(convID, msgID string, f frame.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.liveMessage(convID, msgID)
	if msg == nil {
		s.logger.Debug("dropped stale frame",
			"conversation_id", convID,
			"message_id", msgID,
			"type", f.Type)
		return false
	}

	switch f.Type {
	case frame.TypeContent:
		msg.Content += f.Data
	case frame.TypeToolCall:
		msg.ToolLog = append(msg.ToolLog, toolCallPrefix+f.Data)
		msg.Steps = append(msg.Steps, ThoughtStep{Kind: StepAction, Content: f.Data})
	case frame.TypeToolResult:
		msg.ToolLog = append(msg.ToolLog, Truncate(f.Data, toolLogLimit))
		msg.Steps = append(msg.Steps, ThoughtStep{Kind: StepObservation, Content: Truncate(f.Data, toolStepLimit)})
	case frame.TypeError:
		msg.Content += errorAnnotation + f.Data
		msg.Outcome = OutcomeFailure
	case frame.TypeResult:
		if f.Result == nil {
			return false
		}
		applyResult(msg, f.Result)
	default:
		return false
	}

	s.publish(ChangeMessageUpdated, convID, msgID)
	return true
}

// applyResult replaces the message body with a legacy execute response. A
// response with no answer text is a failure whatever its success flag says.
func applyResult(msg *Message, r *frame.Result) {
	switch {
	case r.FinalAnswer != "":
		msg.Content = r.FinalAnswer
	case r.ErrorMessage != "":
		msg.Content = r.ErrorMessage
	default:
		msg.Content = fallbackAnswer
		msg.Outcome = OutcomeFailure
	}

	msg.Steps = make([]ThoughtStep, 0, len(r.ThoughtSteps))
	for _, step := range r.ThoughtSteps {
		msg.Steps = append(msg.Steps, ThoughtStep{Kind: ParseStepKind(step.StepType), Content: step.Content})
	}

	if r.TokenStats != nil {
		stats := *r.TokenStats
		msg.TokenStats = &stats
	}
	if !r.Success {
		msg.Outcome = OutcomeFailure
	}
}

// FinalizeAssistantMessage ends streaming for the message. An empty answer is
// a failure even when ok is true. The conversation's server ID is bound the
// first time a non-empty serverConvID is seen, even if the message itself was
// already finalized. Finalizing a message twice changes nothing; the second
// call reports false.
func (s *Store) FinalizeAssistantMessage(convID, msgID, serverConvID string, ok bool) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.byID[convID]
	if !exists {
		return OutcomeUnset, false
	}

	if serverConvID != "" && conv.ServerID == "" {
		conv.ServerID = serverConvID
		s.logger.Debug("bound server conversation",
			"conversation_id", convID,
			"server_id", serverConvID)
		s.publish(ChangeServerIDBound, convID, "")
	}

	msg := s.liveMessage(convID, msgID)
	if msg == nil {
		return OutcomeUnset, false
	}

	msg.Streaming = false
	switch {
	case msg.Content == "" && msg.Outcome != OutcomeFailure:
		msg.Content = fallbackAnswer
		msg.Outcome = OutcomeFailure
	case ok && msg.Outcome != OutcomeFailure:
		msg.Outcome = OutcomeSuccess
	case !ok:
		msg.Outcome = OutcomeFailure
	}

	s.publish(ChangeMessageFinalized, convID, msgID)
	return msg.Outcome, true
}

// MarkAborted freezes a streaming message after a user stop. The outcome is
// left as it was.
func (s *Store) MarkAborted(convID, msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findMessage(convID, msgID)
	if msg == nil || !msg.Streaming {
		return false
	}

	msg.Streaming = false
	msg.Content += stopAnnotation

	s.publish(ChangeMessageStopped, convID, msgID)
	return true
}

// DeleteConversation removes a conversation. Deleting the active conversation
// clears the selection.
func (s *Store) DeleteConversation(convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[convID]; !ok {
		return fmt.Errorf("delete %s: %w", convID, ErrConversationNotFound)
	}

	delete(s.byID, convID)
	for i, conv := range s.convs {
		if conv.ID == convID {
			s.convs = append(s.convs[:i], s.convs[i+1:]...)
			break
		}
	}

	s.publish(ChangeConversationDeleted, convID, "")
	if s.active == convID {
		s.active = ""
		s.publish(ChangeSelection, "", "")
	}
	return nil
}

// Select makes convID the active conversation.
func (s *Store) Select(convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[convID]; !ok {
		return fmt.Errorf("select %s: %w", convID, ErrConversationNotFound)
	}
	if s.active != convID {
		s.active = convID
		s.publish(ChangeSelection, convID, "")
	}
	return nil
}

// ClearSelection deselects the active conversation so the next message
// starts a new one.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" {
		s.active = ""
		s.publish(ChangeSelection, "", "")
	}
}

// Active returns the selected conversation ID, or "" when none is selected.
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ServerID returns the server-assigned ID bound to a conversation.
func (s *Store) ServerID(convID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[convID]
	if !ok {
		return "", fmt.Errorf("server id of %s: %w", convID, ErrConversationNotFound)
	}
	return conv.ServerID, nil
}

// Conversations returns snapshots of every conversation, most recent first.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, len(s.convs))
	for i, conv := range s.convs {
		out[i] = conv.clone()
	}
	return out
}

// Conversation returns a snapshot of one conversation.
func (s *Store) Conversation(convID string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byID[convID]
	if !ok {
		return Conversation{}, false
	}
	return conv.clone(), true
}

// Message returns a snapshot of one message.
func (s *Store) Message(convID, msgID string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[convID]; !ok {
		return Message{}, fmt.Errorf("message %s: %w", msgID, ErrConversationNotFound)
	}
	msg := s.findMessage(convID, msgID)
	if msg == nil {
		return Message{}, fmt.Errorf("message %s in %s: %w", msgID, convID, ErrMessageNotFound)
	}
	return msg.clone(), nil
}

// findMessage returns the stored message. Caller holds s.mu.
func (s *Store) findMessage(convID, msgID string) *Message {
	conv, ok := s.byID[convID]
	if !ok {
		return nil
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == msgID {
			return &conv.Messages[i]
		}
	}
	return nil
}

// liveMessage returns the message only if it is the last one of its
// conversation and still streaming. Caller holds s.mu.
func (s *Store) liveMessage(convID, msgID string) *Message {
	conv, ok := s.byID[convID]
	if !ok || len(conv.Messages) == 0 {
		return nil
	}
	last := &conv.Messages[len(conv.Messages)-1]
	if last.ID != msgID || !last.Streaming {
		return nil
	}
	return last
}

// publish notifies subscribers. Called with s.mu held so changes arrive in
// mutation order; Broadcaster.Publish never blocks.
func (s *Store) publish(kind ChangeKind, convID, msgID string) {
	s.events.Publish(Change{Kind: kind, ConversationID: convID, MessageID: msgID})
}

// Title derives a conversation title from its first message: the first 30
// characters, with an ellipsis when the message is longer.
func Title(text string) string {
	return Truncate(text, titleLimit)
}

// Truncate shortens s to at most limit characters and marks the cut with an
// ellipsis.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + ellipsis
}
