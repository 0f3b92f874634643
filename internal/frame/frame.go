// ABOUTME: Typed frames and request/response shapes for the agent execution protocol.
// ABOUTME: Shared by the client transport and the simulated agent server.

package frame

// Type discriminates a frame.
type Type string

const (
	TypeContent    Type = "content"
	TypeToolCall   Type = "tool_call"
	TypeToolResult Type = "tool_result"
	TypeError      Type = "error"
	TypeEnd        Type = "end"

	// TypeResult never appears on the wire. The transport builds it from a
	// legacy execute response.
	TypeResult Type = "result"
)

// wireTypes are the event names accepted from a stream.
var wireTypes = map[Type]bool{
	TypeContent:    true,
	TypeToolCall:   true,
	TypeToolResult: true,
	TypeError:      true,
	TypeEnd:        true,
}

// IsWireType reports whether t may appear as an SSE event name.
func IsWireType(t Type) bool {
	return wireTypes[t]
}

// Frame is one decoded protocol event.
type Frame struct {
	Type   Type
	Data   string
	Result *Result // Only for TypeResult
}

// Content builds a content frame.
func Content(text string) Frame {
	return Frame{Type: TypeContent, Data: text}
}

// Error builds an error frame.
func Error(msg string) Frame {
	return Frame{Type: TypeError, Data: msg}
}

// End builds an end frame carrying the server conversation ID.
func End(conversationID string) Frame {
	return Frame{Type: TypeEnd, Data: conversationID}
}

// TaskRequest is the JSON body sent to both the stream and execute endpoints.
// ConversationID is omitted on the first turn of a conversation.
type TaskRequest struct {
	Task           string `json:"task" validate:"required,max=10000"`
	ConversationID string `json:"conversationId,omitempty" validate:"omitempty,max=100"`
}

// Result is the legacy non-streaming execute response.
type Result struct {
	FinalAnswer    string      `json:"finalAnswer,omitempty"`
	ErrorMessage   string      `json:"errorMessage,omitempty"`
	Success        bool        `json:"success"`
	ThoughtSteps   []Step      `json:"thoughtSteps,omitempty"`
	TokenStats     *TokenStats `json:"tokenStats,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
}

// Step is one reasoning step in a legacy response.
type Step struct {
	StepType string `json:"stepType"`
	Content  string `json:"content"`
}

// TokenStats reports model token consumption for one turn.
type TokenStats struct {
	TotalTokens  int `json:"totalTokens"`
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}
