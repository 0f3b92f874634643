// ABOUTME: Conversation, message and thought-step types held by the store
// ABOUTME: Values returned to callers are deep copies; the store keeps the only mutable instances

package conversation

import (
	"strings"
	"time"

	"github.com/2389/agentchat/internal/frame"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Outcome is the terminal state of an assistant message. It is empty while the
// message streams and stays empty after a stop.
type Outcome string

const (
	OutcomeUnset   Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// StepKind labels a reasoning step.
type StepKind string

const (
	StepThought     StepKind = "THOUGHT"
	StepAction      StepKind = "ACTION"
	StepObservation StepKind = "OBSERVATION"
	StepGeneric     StepKind = "GENERIC"
)

// ParseStepKind normalizes a step label from the agent. Unknown labels map to
// StepGeneric.
func ParseStepKind(s string) StepKind {
	switch k := StepKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case StepThought, StepAction, StepObservation:
		return k
	default:
		return StepGeneric
	}
}

// ThoughtStep is one entry of an assistant message's reasoning trace.
type ThoughtStep struct {
	Kind    StepKind
	Content string
}

// Message is one turn half. User messages never change after creation.
type Message struct {
	ID         string
	Role       Role
	Content    string
	CreatedAt  time.Time
	Streaming  bool
	Outcome    Outcome
	Steps      []ThoughtStep
	ToolLog    []string
	TokenStats *frame.TokenStats
}

// Conversation is an ordered exchange of messages with the agent.
type Conversation struct {
	ID        string
	ServerID  string
	Title     string
	CreatedAt time.Time
	Messages  []Message
}

// LastMessage returns the newest message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

func (m *Message) clone() Message {
	out := *m
	out.Steps = append([]ThoughtStep(nil), m.Steps...)
	out.ToolLog = append([]string(nil), m.ToolLog...)
	if m.TokenStats != nil {
		stats := *m.TokenStats
		out.TokenStats = &stats
	}
	return out
}

func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i := range c.Messages {
		out.Messages[i] = c.Messages[i].clone()
	}
	return out
}

// ChangeKind describes what a store mutation did.
type ChangeKind string

const (
	ChangeConversationCreated ChangeKind = "conversation_created"
	ChangeConversationDeleted ChangeKind = "conversation_deleted"
	ChangeServerIDBound       ChangeKind = "server_id_bound"
	ChangeMessageAppended     ChangeKind = "message_appended"
	ChangeMessageUpdated      ChangeKind = "message_updated"
	ChangeMessageFinalized    ChangeKind = "message_finalized"
	ChangeMessageStopped      ChangeKind = "message_stopped"
	ChangeSelection           ChangeKind = "selection_changed"
)

// Change is published after every successful store mutation. Consumers read a
// fresh snapshot in response; the change itself carries no message data.
type Change struct {
	Kind           ChangeKind
	ConversationID string
	MessageID      string
}
