// Package conversation holds the in-memory model of every conversation the
// client has with the agent.
//
// # Store
//
// The Store is the single owner of conversation and message data. Mutations
// are explicit operations addressed by (conversation ID, message ID):
//
//	convID := store.CreateConversation(text)
//	store.AppendUserMessage(convID, text)
//	msgID, _ := store.BeginAssistantMessage(convID)
//	store.ApplyFrame(convID, msgID, f)
//	store.FinalizeAssistantMessage(convID, msgID, serverID, true)
//
// ApplyFrame and FinalizeAssistantMessage only touch a message that is still
// the last message of its conversation and still streaming. Frames that
// arrive for a superseded or stopped message are dropped.
//
// A conversation's server ID is bound the first time the agent reports one
// and never changes afterwards.
//
// # Read model
//
// Conversations, Conversation and Message return deep copies. Presentation code
// subscribes to changes and re-reads a snapshot:
//
//	changes, _ := store.Subscribe(ctx, conversation.AllConversations)
//	for c := range changes {
//		conv, _ := store.Conversation(c.ConversationID)
//		render(conv)
//	}
//
// Publishing never blocks the store. A subscriber that falls behind loses
// changes, not data.
package conversation
