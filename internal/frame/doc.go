// Package frame implements the agent execution wire protocol.
//
// # Overview
//
// The agent streams its answer as Server-Sent Events. Each frame is a block of
// "event:" and "data:" lines terminated by a blank line:
//
//	event: content
//	data: The answer is
//
//	event: tool_call
//	data: calculator({"expression":"25*36"})
//
//	event: end
//	data: 7f0c2a1e-...
//
// # Frame Types
//
//   - content: text fragment appended to the answer
//   - tool_call: tool invocation description
//   - tool_result: tool output (consumers truncate it for display)
//   - error: error description
//   - end: stream finished, payload is the server conversation ID
//
// Frames without an event type, without data, or with an unknown type are
// dropped. The Parser buffers partial input until a frame boundary and never
// fails; the Decoder only reports hard read errors.
//
// # Legacy Shape
//
// The non-streaming execute endpoint returns a single Result object. It is
// carried through the same fold path as a TypeResult frame so that both
// shapes converge on identical message state.
package frame
