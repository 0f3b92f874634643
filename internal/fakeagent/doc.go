// Package fakeagent simulates the agent execution service.
//
// It serves the same endpoints the client talks to:
//
//   - POST /api/agent/stream: SSE frames followed by an end frame
//   - POST /api/agent/execute: one legacy JSON result
//   - GET /api/agent/health: liveness
//
// Behaviour is scripted per test:
//
//	srv := httptest.NewServer(fakeagent.New(fakeagent.Options{
//		Script:   fakeagent.Fixed(frame.Content("hi")),
//		HoldOpen: true,
//	}, nil))
//
// cmd/fake-agent serves the echo script for manual end-to-end runs.
package fakeagent
