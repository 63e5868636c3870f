// Package notify fans playback events out to session subscribers.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gapless/internal/app/playback"
)

// Notification is a playback event stamped with a sequence number so
// subscribers can detect drops.
type Notification struct {
	SequenceNo uint64
	Event      playback.Event
	At         time.Time
}

// subscription represents a subscriber's channel.
type subscription struct {
	id string
	ch chan Notification
}

// Manager manages event subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	bufferSize    int
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a notification manager. bufferSize is the per
// subscriber channel depth; a slow subscriber loses events rather than
// stalling playback.
func NewManager(bufferSize int) *Manager {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Manager{
		subscriptions: make(map[string]*subscription),
		bufferSize:    bufferSize,
	}
}

// Subscribe adds a subscriber and returns its ID and receive channel.
func (m *Manager) Subscribe() (string, <-chan Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	sub := &subscription{id: id, ch: make(chan Notification, m.bufferSize)}
	m.subscriptions[id] = sub
	return id, sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subscriptions[subscriptionID]; ok {
		delete(m.subscriptions, subscriptionID)
		close(sub.ch)
	}
}

// Broadcast sends an event to all subscribers. Sends never block; a full
// subscriber channel drops the event.
func (m *Manager) Broadcast(ev playback.Event) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	n := Notification{SequenceNo: m.sequenceNo, Event: ev, At: time.Now()}
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subscriptions {
		select {
		case sub.ch <- n:
		default:
			// Subscriber is not keeping up; drop rather than stall.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions and closes their channels.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sub := range m.subscriptions {
		delete(m.subscriptions, id)
		close(sub.ch)
	}
}
