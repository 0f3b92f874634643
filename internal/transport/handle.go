// ABOUTME: Handle for one in-flight agent exchange with idempotent abort.
// ABOUTME: Serializes callbacks so nothing is delivered after Abort or a terminal event.

package transport

import (
	"context"
	"sync"

	"github.com/2389/agentchat/internal/frame"
)

// Handler receives the events of one exchange.
type Handler interface {
	OnMessage(f frame.Frame)
	OnComplete(serverConversationID string)
	OnError(err error)
}

// Handle controls one exchange.
type Handle struct {
	id      string
	handler Handler
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	stopped bool // terminal delivered or aborted
	aborted bool
}

func newHandle(id string, h Handler, cancel context.CancelFunc) *Handle {
	return &Handle{
		id:      id,
		handler: h,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// ID identifies the exchange in logs.
func (h *Handle) ID() string {
	return h.id
}

// Abort stops delivery and cancels the underlying request. It waits for an
// in-flight callback to return. Safe to call repeatedly and after completion.
func (h *Handle) Abort() {
	h.mu.Lock()
	if !h.stopped {
		h.stopped = true
		h.aborted = true
	}
	h.mu.Unlock()

	h.cancel()
}

// Aborted reports whether Abort was called before a terminal event.
func (h *Handle) Aborted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aborted
}

// Done is closed once the exchange goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// message delivers a frame. Returns false once delivery has stopped.
func (h *Handle) message(f frame.Frame) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	h.handler.OnMessage(f)
	return true
}

// complete delivers the success terminal event at most once.
func (h *Handle) complete(serverConversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true
	h.handler.OnComplete(serverConversationID)
}

// fail delivers the error terminal event at most once.
func (h *Handle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}
	h.stopped = true
	h.handler.OnError(err)
}
