// Package transport opens one cancellable agent exchange per conversation turn.
//
// # Overview
//
// A Client issues a POST to the agent execution endpoint and delivers the
// decoded frames to a Handler on a background goroutine:
//
//	h := client.Open(ctx, "what is 25*36?", serverConversationID, handler)
//	...
//	h.Abort() // user pressed stop
//
// # Delivery Guarantees
//
//   - OnMessage is called zero or more times, in emission order.
//   - Exactly one terminal call follows: OnComplete or OnError, never both.
//   - After Abort returns no callback of any kind fires. Abort does not
//     synthesize a completion; the caller finalizes its own state.
//
// Callbacks run on the transport goroutine and are serialized per handle.
// A Handler must not call Abort on the handle that is invoking it.
//
// # Legacy Execute
//
// OpenExecute talks to the non-streaming endpoint. The single JSON response is
// delivered as one frame.TypeResult frame followed by OnComplete, so callers
// handle both endpoints through the same Handler.
package transport
