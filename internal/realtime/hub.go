package realtime

import (
	"context"
	"sync"
	"time"

	"clubdesk/internal/metrics"
)

// EventKind names the change that happened to a delivery record.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
)

// Event signals a change to one message_recipients row. Subscribers treat it
// as a hint to re-fetch, never as state.
type Event struct {
	Kind              EventKind `json:"kind"`
	RecipientMemberID int64     `json:"recipient_member_id"`
	MessageID         int64     `json:"message_id,omitempty"`
	ReceiptID         int64     `json:"receipt_id"`
	At                time.Time `json:"at"`
}

// Publisher emits delivery events.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Subscriber registers callbacks for one member's delivery events.
type Subscriber interface {
	Subscribe(memberID int64, fn func(Event)) (unsubscribe func())
}

// Notifier is both ends of the realtime channel.
type Notifier interface {
	Publisher
	Subscriber
}

// Hub fans events out to in-process subscribers keyed by recipient member id.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[uint64]func(Event)
	next uint64
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[int64]map[uint64]func(Event)),
	}
}

var _ Notifier = (*Hub)(nil)

// Subscribe adds a callback for the given member. The returned function
// removes it and is safe to call more than once.
func (h *Hub) Subscribe(memberID int64, fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := h.next
	if h.subs[memberID] == nil {
		h.subs[memberID] = make(map[uint64]func(Event))
	}
	h.subs[memberID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(memberID, id) })
	}
}

func (h *Hub) remove(memberID int64, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[memberID]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.subs, memberID)
		}
	}
}

// Publish delivers the event to local subscribers.
func (h *Hub) Publish(_ context.Context, ev Event) {
	metrics.RealtimeEvents.WithLabelValues(string(ev.Kind)).Inc()
	h.Deliver(ev)
}

// Deliver invokes every callback registered for the event's recipient.
// Callbacks run outside the lock and must not block.
func (h *Hub) Deliver(ev Event) {
	h.mu.RLock()
	fns := make([]func(Event), 0, len(h.subs[ev.RecipientMemberID]))
	for _, fn := range h.subs[ev.RecipientMemberID] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Subscribers returns how many callbacks are registered for a member.
func (h *Hub) Subscribers(memberID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[memberID])
}
