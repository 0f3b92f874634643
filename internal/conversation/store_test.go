// ABOUTME: Tests for the conversation store fold, finalize, abort, and read model
// ABOUTME: Includes the stale-write guard and server ID binding rules

package conversation

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentchat/internal/frame"
)

// newTurn creates a conversation with one user message and a streaming
// assistant message.
func newTurn(t *testing.T, s *Store, text string) (string, string) {
	t.Helper()
	convID := s.CreateConversation(text)
	_, err := s.AppendUserMessage(convID, text)
	require.NoError(t, err)
	msgID, err := s.BeginAssistantMessage(convID)
	require.NoError(t, err)
	return convID, msgID
}

func message(t *testing.T, s *Store, convID, msgID string) Message {
	t.Helper()
	msg, err := s.Message(convID, msgID)
	require.NoError(t, err)
	return msg
}

func TestCreateConversation_TitleAndOrdering(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	first := s.CreateConversation("hi")
	second := s.CreateConversation("hello world this is a very long first message exceeding thirty chars")

	convs := s.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, second, convs[0].ID, "newest conversation comes first")
	assert.Equal(t, first, convs[1].ID)

	assert.Equal(t, "hi", convs[1].Title)
	assert.Equal(t, "hello world this is a very lon...", convs[0].Title)
	assert.Equal(t, 30, utf8.RuneCountInString(strings.TrimSuffix(convs[0].Title, "...")))

	assert.Equal(t, second, s.Active(), "a new conversation becomes active")
}

func TestTitle_ExactlyThirtyHasNoEllipsis(t *testing.T) {
	text := strings.Repeat("a", 30)
	assert.Equal(t, text, Title(text))
	assert.Equal(t, strings.Repeat("é", 30)+"...", Title(strings.Repeat("é", 31)))
}

func TestAppendMessages(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "question")

	conv, ok := s.Conversation(convID)
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)

	user := conv.Messages[0]
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "question", user.Content)
	assert.False(t, user.Streaming)

	assistant := conv.Messages[1]
	assert.Equal(t, msgID, assistant.ID)
	assert.Equal(t, RoleAssistant, assistant.Role)
	assert.Empty(t, assistant.Content)
	assert.True(t, assistant.Streaming)
	assert.Equal(t, OutcomeUnset, assistant.Outcome)

	_, err := s.AppendUserMessage("missing", "x")
	require.ErrorIs(t, err, ErrConversationNotFound)
	_, err = s.BeginAssistantMessage("missing")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestApplyFrame_ContentConcatenatesInOrder(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	parts := []string{"The ", "answer ", "", "is ", "42", "\n", "ünïcode"}
	for _, p := range parts {
		require.True(t, s.ApplyFrame(convID, msgID, frame.Content(p)))
	}

	assert.Equal(t, strings.Join(parts, ""), message(t, s, convID, msgID).Content)
}

func TestApplyFrame_ToolCallAndResult(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	s.ApplyFrame(convID, msgID, frame.Frame{Type: frame.TypeToolCall, Data: "calculator(2+2)"})
	s.ApplyFrame(convID, msgID, frame.Frame{Type: frame.TypeToolResult, Data: "4"})

	msg := message(t, s, convID, msgID)
	assert.Equal(t, []string{"🔧 calculator(2+2)", "4"}, msg.ToolLog)
	assert.Equal(t, []ThoughtStep{
		{Kind: StepAction, Content: "calculator(2+2)"},
		{Kind: StepObservation, Content: "4"},
	}, msg.Steps)
	assert.Empty(t, msg.Content)
}

func TestApplyFrame_ToolResultTruncation(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	payload := strings.Repeat("x", 500)
	s.ApplyFrame(convID, msgID, frame.Frame{Type: frame.TypeToolResult, Data: payload})

	msg := message(t, s, convID, msgID)
	require.Len(t, msg.ToolLog, 1)
	require.Len(t, msg.Steps, 1)
	assert.Equal(t, strings.Repeat("x", 100)+"...", msg.ToolLog[0])
	assert.Equal(t, strings.Repeat("x", 200)+"...", msg.Steps[0].Content)
}

func TestApplyFrame_ErrorMarksFailure(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	s.ApplyFrame(convID, msgID, frame.Content("partial"))
	s.ApplyFrame(convID, msgID, frame.Error("model overloaded"))

	msg := message(t, s, convID, msgID)
	assert.Equal(t, "partial\n\n❌ Error: model overloaded", msg.Content)
	assert.Equal(t, OutcomeFailure, msg.Outcome)

	outcome, ok := s.FinalizeAssistantMessage(convID, msgID, "", true)
	require.True(t, ok)
	assert.Equal(t, OutcomeFailure, outcome, "a failure from an error frame is not overridden by completion")
}

func TestApplyFrame_UnknownTypesAreIgnored(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	assert.False(t, s.ApplyFrame(convID, msgID, frame.Frame{Type: "thinking", Data: "x"}))
	assert.False(t, s.ApplyFrame(convID, msgID, frame.End("srv")))
	assert.False(t, s.ApplyFrame(convID, msgID, frame.Frame{Type: frame.TypeResult}))
	assert.Empty(t, message(t, s, convID, msgID).Content)
}

func TestApplyFrame_LegacyResult(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	result := &frame.Result{
		FinalAnswer: "42",
		Success:     true,
		ThoughtSteps: []frame.Step{
			{StepType: "thought", Content: "think"},
			{StepType: "ACTION", Content: "calc"},
			{StepType: "REFLECTION", Content: "hmm"},
		},
		TokenStats:     &frame.TokenStats{TotalTokens: 10, InputTokens: 4, OutputTokens: 6},
		ConversationID: "srv-9",
	}
	require.True(t, s.ApplyFrame(convID, msgID, frame.Frame{Type: frame.TypeResult, Result: result}))

	outcome, ok := s.FinalizeAssistantMessage(convID, msgID, result.ConversationID, true)
	require.True(t, ok)
	assert.Equal(t, OutcomeSuccess, outcome)

	msg := message(t, s, convID, msgID)
	assert.Equal(t, "42", msg.Content)
	assert.Equal(t, []ThoughtStep{
		{Kind: StepThought, Content: "think"},
		{Kind: StepAction, Content: "calc"},
		{Kind: StepGeneric, Content: "hmm"},
	}, msg.Steps)
	require.NotNil(t, msg.TokenStats)
	assert.Equal(t, 10, msg.TokenStats.TotalTokens)

	serverID, err := s.ServerID(convID)
	require.NoError(t, err)
	assert.Equal(t, "srv-9", serverID)
}

func TestApplyFrame_LegacyFailureResult(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	s.ApplyFrame(convID, msgID, frame.Frame{Type: frame.TypeResult, Result: &frame.Result{ErrorMessage: "no tools"}})
	outcome, _ := s.FinalizeAssistantMessage(convID, msgID, "", true)

	assert.Equal(t, OutcomeFailure, outcome)
	assert.Equal(t, "no tools", message(t, s, convID, msgID).Content)
}

func TestApplyFrame_LegacyEmptySuccessIsSoftFailure(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	require.True(t, s.ApplyFrame(convID, msgID, frame.Frame{Type: frame.TypeResult, Result: &frame.Result{Success: true}}))
	outcome, ok := s.FinalizeAssistantMessage(convID, msgID, "srv-1", true)
	require.True(t, ok)

	msg := message(t, s, convID, msgID)
	assert.Equal(t, OutcomeFailure, outcome)
	assert.Equal(t, OutcomeFailure, msg.Outcome)
	assert.Equal(t, "Sorry, no response was received.", msg.Content)
	assert.False(t, msg.Streaming)
}

func TestApplyFrame_StaleMessageIsDropped(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, first := newTurn(t, s, "q")
	require.True(t, s.MarkAborted(convID, first))

	assert.False(t, s.ApplyFrame(convID, first, frame.Content("late")), "not streaming")

	_, err := s.AppendUserMessage(convID, "again")
	require.NoError(t, err)
	second, err := s.BeginAssistantMessage(convID)
	require.NoError(t, err)

	assert.False(t, s.ApplyFrame(convID, first, frame.Content("late")), "not last")
	assert.True(t, s.ApplyFrame(convID, second, frame.Content("fresh")))

	assert.Equal(t, "_(stopped)_", strings.TrimSpace(message(t, s, convID, first).Content))
	assert.Equal(t, "fresh", message(t, s, convID, second).Content)
}

func TestFinalize_SuccessIsIdempotent(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	s.ApplyFrame(convID, msgID, frame.Content("done"))

	outcome, ok := s.FinalizeAssistantMessage(convID, msgID, "", true)
	require.True(t, ok)
	assert.Equal(t, OutcomeSuccess, outcome)
	before := message(t, s, convID, msgID)

	_, ok = s.FinalizeAssistantMessage(convID, msgID, "", false)
	assert.False(t, ok)
	after := message(t, s, convID, msgID)

	assert.Equal(t, before, after)
	assert.False(t, after.Streaming)
}

func TestFinalize_EmptyContentIsSoftFailure(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	outcome, ok := s.FinalizeAssistantMessage(convID, msgID, "srv-1", true)
	require.True(t, ok)
	assert.Equal(t, OutcomeFailure, outcome)

	msg := message(t, s, convID, msgID)
	assert.Equal(t, "Sorry, no response was received.", msg.Content)

	s.FinalizeAssistantMessage(convID, msgID, "srv-1", true)
	assert.Equal(t, msg, message(t, s, convID, msgID), "fallback text is not appended twice")
}

func TestFinalize_NotOKMarksFailure(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	s.ApplyFrame(convID, msgID, frame.Content("half"))
	outcome, _ := s.FinalizeAssistantMessage(convID, msgID, "", false)
	assert.Equal(t, OutcomeFailure, outcome)
}

func TestFinalize_ServerIDBindsOnce(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, first := newTurn(t, s, "q")
	s.ApplyFrame(convID, first, frame.Content("a"))
	s.FinalizeAssistantMessage(convID, first, "srv-1", true)

	_, err := s.AppendUserMessage(convID, "q2")
	require.NoError(t, err)
	second, err := s.BeginAssistantMessage(convID)
	require.NoError(t, err)
	s.ApplyFrame(convID, second, frame.Content("b"))
	s.FinalizeAssistantMessage(convID, second, "srv-2", true)

	serverID, err := s.ServerID(convID)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", serverID)
}

func TestFinalize_BindsServerIDEvenWhenMessageIsStale(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	s.MarkAborted(convID, msgID)

	_, ok := s.FinalizeAssistantMessage(convID, msgID, "srv-1", true)
	assert.False(t, ok)

	serverID, err := s.ServerID(convID)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", serverID)
}

func TestFinalize_UnknownConversation(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	outcome, ok := s.FinalizeAssistantMessage("missing", "m", "srv", true)
	assert.False(t, ok)
	assert.Equal(t, OutcomeUnset, outcome)
}

func TestMarkAborted_FreezesText(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	s.ApplyFrame(convID, msgID, frame.Content("one "))
	s.ApplyFrame(convID, msgID, frame.Content("two"))

	require.True(t, s.MarkAborted(convID, msgID))
	assert.False(t, s.MarkAborted(convID, msgID), "second stop is a no-op")

	s.ApplyFrame(convID, msgID, frame.Content("three"))
	s.FinalizeAssistantMessage(convID, msgID, "", true)

	msg := message(t, s, convID, msgID)
	assert.Equal(t, "one two\n\n_(stopped)_", msg.Content)
	assert.False(t, msg.Streaming)
	assert.Equal(t, OutcomeUnset, msg.Outcome)
}

func TestMarkAborted_IgnoresUserMessages(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID := s.CreateConversation("q")
	userID, err := s.AppendUserMessage(convID, "q")
	require.NoError(t, err)

	assert.False(t, s.MarkAborted(convID, userID))
	assert.Equal(t, "q", message(t, s, convID, userID).Content)
}

func TestDeleteConversation(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	keep := s.CreateConversation("keep")
	drop := s.CreateConversation("drop")
	require.Equal(t, drop, s.Active())

	require.NoError(t, s.DeleteConversation(drop))
	assert.Empty(t, s.Active(), "deleting the active conversation clears the selection")

	convs := s.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, keep, convs[0].ID)

	require.NoError(t, s.Select(keep))
	other := s.CreateConversation("other")
	require.NoError(t, s.Select(keep))
	require.NoError(t, s.DeleteConversation(other))
	assert.Equal(t, keep, s.Active(), "deleting another conversation keeps the selection")

	require.ErrorIs(t, s.DeleteConversation(drop), ErrConversationNotFound)
}

func TestSelection(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	a := s.CreateConversation("a")
	s.CreateConversation("b")

	require.NoError(t, s.Select(a))
	assert.Equal(t, a, s.Active())

	s.ClearSelection()
	assert.Empty(t, s.Active())

	require.ErrorIs(t, s.Select("missing"), ErrConversationNotFound)
}

func TestMessage_NotFound(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID := s.CreateConversation("q")
	_, err := s.Message(convID, "nope")
	require.ErrorIs(t, err, ErrMessageNotFound)
	_, err = s.Message("nope", "nope")
	require.ErrorIs(t, err, ErrConversationNotFound)

	_, err = s.ServerID("nope")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")
	s.ApplyFrame(convID, msgID, frame.Frame{Type: frame.TypeToolCall, Data: "t"})

	conv, _ := s.Conversation(convID)
	conv.Messages[1].Content = "mutated"
	conv.Messages[1].Steps[0].Content = "mutated"
	conv.Messages[1].ToolLog[0] = "mutated"

	msg := message(t, s, convID, msgID)
	assert.Empty(t, msg.Content)
	assert.Equal(t, "t", msg.Steps[0].Content)
	assert.Equal(t, "🔧 t", msg.ToolLog[0])
}

func TestChangesArePublishedInOrder(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	changes, _ := s.Subscribe(t.Context(), AllConversations)

	convID, msgID := newTurn(t, s, "q")
	s.ApplyFrame(convID, msgID, frame.Content("x"))
	s.ApplyFrame("missing", msgID, frame.Content("x"))
	s.FinalizeAssistantMessage(convID, msgID, "srv", true)

	var kinds []ChangeKind
	for range 7 {
		kinds = append(kinds, receive(t, changes).Kind)
	}
	assert.Equal(t, []ChangeKind{
		ChangeConversationCreated,
		ChangeSelection,
		ChangeMessageAppended,
		ChangeMessageAppended,
		ChangeMessageUpdated,
		ChangeServerIDBound,
		ChangeMessageFinalized,
	}, kinds)
	assertSilent(t, changes)
}

func TestParseStepKind(t *testing.T) {
	tests := map[string]StepKind{
		"THOUGHT":      StepThought,
		"action":       StepAction,
		" Observation": StepObservation,
		"":             StepGeneric,
		"PLAN":         StepGeneric,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseStepKind(in), "input %q", in)
	}
}

func TestStore_ConcurrentFrames(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	convID, msgID := newTurn(t, s, "q")

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				s.ApplyFrame(convID, msgID, frame.Content("x"))
				s.Conversations()
			}
		})
	}
	wg.Wait()

	assert.Len(t, message(t, s, convID, msgID).Content, 400)
}
