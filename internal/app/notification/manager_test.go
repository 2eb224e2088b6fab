package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []uint64
}

func (r *recorder) Send(n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n.SequenceNo)
	return nil
}

func (r *recorder) sequence() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.got...)
}

func TestManager_Broadcast(t *testing.T) {
	m := NewManager()
	a, b := &recorder{}, &recorder{}
	m.Subscribe(a)
	idB := m.Subscribe(b)
	require.Equal(t, 2, m.SubscriberCount())

	n := &Notification{Type: "queue_changed"}
	m.Broadcast(n)
	assert.Equal(t, uint64(1), n.SequenceNo)
	assert.False(t, n.Time.IsZero())

	m.Unsubscribe(idB)
	m.Broadcast(&Notification{Type: "queue_changed"})

	assert.Equal(t, []uint64{1, 2}, a.sequence())
	assert.Equal(t, []uint64{1}, b.sequence())
}

func TestManager_DropsFailingSubscriber(t *testing.T) {
	m := NewManager()
	m.Subscribe(StreamFunc(func(*Notification) error {
		return errors.New("closed pipe")
	}))
	ok := &recorder{}
	m.Subscribe(ok)

	m.Broadcast(&Notification{Type: TypeSettingsChanged})
	assert.Equal(t, 1, m.SubscriberCount())
	assert.Len(t, ok.sequence(), 1)
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	defer close(release)
	m.Subscribe(StreamFunc(func(*Notification) error {
		<-release
		return nil
	}))

	start := time.Now()
	m.Broadcast(&Notification{Type: "queue_changed"})
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, m.SubscriberCount())
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	m.Subscribe(&recorder{})
	m.Close()
	assert.Zero(t, m.SubscriberCount())
}
