// ABOUTME: In-memory fan-out of store change notifications to presentation subscribers
// ABOUTME: Subscribers register for one conversation ID or for all of them

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllConversations subscribes to changes of every conversation.
	AllConversations = "*"
)

// Broadcaster provides in-memory pub/sub for store changes. Publishing never
// blocks: a subscriber that falls behind misses changes and re-reads a snapshot.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Change // key -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Change),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for changes on key (a conversation ID or
// AllConversations). The subscription is removed and its channel closed when
// ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, key string) (<-chan Change, string) {
	subID := uuid.New().String()
	ch := make(chan Change, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]chan Change)
	}
	b.subscribers[key][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "key", key, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(key, subID)
	}()

	return ch, subID
}

// Publish delivers c to subscribers of its conversation and to wildcard
// subscribers. Sends happen under the read lock so Unsubscribe cannot close a
// channel mid-send.
func (b *Broadcaster) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.publishLocked(b.subscribers[c.ConversationID], c)
	if c.ConversationID != AllConversations {
		b.publishLocked(b.subscribers[AllConversations], c)
	}
}

func (b *Broadcaster) publishLocked(subs map[string]chan Change, c Change) {
	for _, ch := range subs {
		select {
		case ch <- c:
		default:
			b.logger.Debug("dropped change for slow subscriber",
				"conversation_id", c.ConversationID,
				"kind", c.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(key, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[key]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, key)
	}

	b.logger.Debug("subscriber removed", "key", key, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
