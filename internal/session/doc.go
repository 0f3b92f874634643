// Package session drives agent turns.
//
// A Controller accepts the user's intents and keeps at most one exchange with
// the agent in flight. Every turn follows
//
//	Idle -> Starting -> Streaming -> Completed | Failed | Aborted
//
// Sending a new message or calling StopGeneration aborts the live exchange
// and freezes its message with a stop annotation before anything else
// happens. Frames from the exchange are forwarded to the conversation store
// tagged with the (conversation ID, message ID) of the turn that opened it,
// so a late callback can only ever touch its own message.
//
// Failures stay local to the turn: the message is annotated, the notifier
// (if any) is told, and the conversation accepts the next message. There is
// no retry.
package session
