// Package notification provides the notification manager for broadcasting state changes.
package notification

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/app/playback"
	"github.com/osa030/lookahead/internal/domain/track"
)

// Notification types not produced by the playback controller.
const (
	TypeSettingsChanged = "settings_changed"
	TypeDisliked        = "disliked"
)

// sendTimeout bounds a single stream send during Broadcast.
const sendTimeout = 500 * time.Millisecond

// Notification is a render signal carrying the state to render.
type Notification struct {
	SequenceNo uint64
	Type       string
	Time       time.Time
	Track      *track.Track // Track the notification is about, if any
	Message    string       // Error or status text, if any
	Snapshot   playback.Snapshot
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// StreamFunc adapts a function to the Stream interface.
type StreamFunc func(*Notification) error

// Send calls f(n).
func (f StreamFunc) Send(n *Notification) error {
	return f(n)
}

// Manager fans notifications out to subscribed streams.
type Manager struct {
	mu      sync.RWMutex
	streams map[string]Stream
	seq     atomic.Uint64
}

// NewManager creates a notification manager without subscribers.
func NewManager() *Manager {
	return &Manager{streams: make(map[string]Stream)}
}

// Subscribe registers stream and returns its subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	id := uuid.New().String()

	m.mu.Lock()
	m.streams[id] = stream
	m.mu.Unlock()

	zlog.Debug().Msgf("notification: subscribed: id=%s", id)
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	delete(m.streams, id)
	m.mu.Unlock()
}

// Broadcast stamps n with the next sequence number and delivers it to every subscriber
// concurrently. It returns once every delivery finished or timed out, so notifications
// reach a subscriber in sequence order. A stream whose Send fails is unsubscribed.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.seq.Add(1)
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	m.mu.RLock()
	targets := maps.Clone(m.streams)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for id, stream := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.deliver(id, stream, n)
		}()
	}
	wg.Wait()
}

func (m *Manager) deliver(id string, stream Stream, n *Notification) {
	result := make(chan error, 1)
	go func() {
		result <- stream.Send(n)
	}()

	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err != nil {
			zlog.Debug().Err(err).Msgf("notification: dropping subscriber: id=%s", id)
			m.Unsubscribe(id)
		}
	case <-timer.C:
		zlog.Debug().Msgf("notification: send timed out: id=%s, seq=%d, type=%s", id, n.SequenceNo, n.Type)
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	clear(m.streams)
	m.mu.Unlock()
}
