package realtime

import (
	"encoding/json"
	"time"
)

// QueuedMessage is one undelivered message retained for an offline user.
// The payload is kept as encoded JSON so it round-trips through the
// persistence port unchanged. The ID ties the in-memory copy to the
// persisted copy so a drain never delivers the same message twice.
type QueuedMessage struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Message    json.RawMessage `json:"message"`
	CreatedAt  time.Time       `json:"created_at"`
	TTLSeconds int             `json:"ttl_seconds"`
	Attempts   int             `json:"attempts"`
}

// Expired reports whether the message's TTL has elapsed at now.
func (m *QueuedMessage) Expired(now time.Time) bool {
	if m.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(m.CreatedAt) >= time.Duration(m.TTLSeconds)*time.Second
}

// MessageQueue is a bounded, ordered backlog of undelivered messages for one
// user. When full, the oldest message is evicted. Like Room, it is guarded
// by the manager's registry lock.
type MessageQueue struct {
	limit int
	items []*QueuedMessage
}

// NewMessageQueue creates a queue bounded to limit messages.
func NewMessageQueue(limit int) *MessageQueue {
	return &MessageQueue{limit: limit}
}

// Append adds a message, evicting the oldest when the queue is full.
func (q *MessageQueue) Append(msg *QueuedMessage) {
	if q.limit > 0 && len(q.items) >= q.limit {
		q.items = q.items[1:]
	}
	q.items = append(q.items, msg)
}

// Len returns the number of queued messages.
func (q *MessageQueue) Len() int {
	return len(q.items)
}

// Items returns the queued messages, oldest first.
func (q *MessageQueue) Items() []*QueuedMessage {
	items := make([]*QueuedMessage, len(q.items))
	copy(items, q.items)
	return items
}

// detach removes and returns all queued messages. Used by the drain path so
// sends can happen outside the registry lock.
func (q *MessageQueue) detach() []*QueuedMessage {
	items := q.items
	q.items = nil
	return items
}

// requeueFront puts undelivered messages back at the head of the queue,
// ahead of anything queued while a drain was in flight.
func (q *MessageQueue) requeueFront(items []*QueuedMessage) {
	if len(items) == 0 {
		return
	}
	merged := make([]*QueuedMessage, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	merged = append(merged, q.items...)
	if q.limit > 0 && len(merged) > q.limit {
		merged = merged[len(merged)-q.limit:]
	}
	q.items = merged
}
