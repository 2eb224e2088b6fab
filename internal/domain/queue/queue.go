// Package queue provides the in-memory queue of playable tracks and the play history.
package queue

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/lookahead/internal/domain/track"
)

// Errors
var (
	ErrEmpty           = errors.New("queue is empty")
	ErrNoHistory       = errors.New("history is empty")
	ErrIndexOutOfRange = errors.New("index out of range")
)

// ReleaseFunc frees the resources of a playable track that left every container.
type ReleaseFunc func(p *track.Playable)

// Store is the ordered queue (front = next to play), the current track and the bounded history.
// A playable track is owned by exactly one of them at a time; once it leaves all of them its
// resources are released. Store is not safe for concurrent use.
type Store struct {
	items      []*track.Playable
	current    *track.Playable
	history    []*track.Playable // oldest first
	historyCap int
	release    ReleaseFunc
}

// New creates an empty store. release may be nil.
func New(historyCap int, release ReleaseFunc) *Store {
	if release == nil {
		release = func(*track.Playable) {}
	}
	return &Store{
		items:      make([]*track.Playable, 0),
		history:    make([]*track.Playable, 0),
		historyCap: max(historyCap, 0),
		release:    release,
	}
}

// Len returns the number of queued entries.
func (s *Store) Len() int {
	return len(s.items)
}

// Items returns a copy of the queued entries.
func (s *Store) Items() []*track.Playable {
	out := make([]*track.Playable, len(s.items))
	copy(out, s.items)
	return out
}

// At returns the entry at index.
func (s *Store) At(index int) (*track.Playable, error) {
	if index < 0 || index >= len(s.items) {
		return nil, ErrIndexOutOfRange
	}
	return s.items[index], nil
}

// Current returns the track currently playing, or nil.
func (s *Store) Current() *track.Playable {
	return s.current
}

// History returns a copy of the history, oldest first.
func (s *Store) History() []*track.Playable {
	out := make([]*track.Playable, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryCapacity returns the maximum history length.
func (s *Store) HistoryCapacity() int {
	return s.historyCap
}

// SetHistoryCapacity changes the maximum history length, evicting the oldest entries if needed.
func (s *Store) SetHistoryCapacity(n int) {
	s.historyCap = max(n, 0)
	s.trimHistory()
}

// Append adds an entry at the end of the queue.
func (s *Store) Append(p *track.Playable) {
	s.items = append(s.items, p)
}

// InsertAt inserts an entry before index. index == Len() appends.
func (s *Store) InsertAt(index int, p *track.Playable) error {
	if index < 0 || index > len(s.items) {
		return ErrIndexOutOfRange
	}
	s.items = append(s.items, nil)
	copy(s.items[index+1:], s.items[index:])
	s.items[index] = p
	return nil
}

// ConsumeHead pops the front entry and makes it current.
// The previously current track moves into the history.
func (s *Store) ConsumeHead() (*track.Playable, error) {
	if len(s.items) == 0 {
		return nil, ErrEmpty
	}

	head := s.items[0]
	s.items[0] = nil
	s.items = s.items[1:]

	if s.current != nil {
		s.history = append(s.history, s.current)
		s.trimHistory()
	}
	s.current = head
	return head, nil
}

// Previous moves the current track back to the front of the queue and makes the
// most recent history entry current.
func (s *Store) Previous() (*track.Playable, error) {
	if len(s.history) == 0 {
		return nil, ErrNoHistory
	}

	last := len(s.history) - 1
	prev := s.history[last]
	s.history[last] = nil
	s.history = s.history[:last]

	if s.current != nil {
		// InsertAt(0) cannot fail
		_ = s.InsertAt(0, s.current)
	}
	s.current = prev
	return prev, nil
}

// RemoveAt removes the entry at index and releases its resources.
// The removed track metadata is returned.
func (s *Store) RemoveAt(index int) (track.Track, error) {
	if index < 0 || index >= len(s.items) {
		return track.Track{}, ErrIndexOutOfRange
	}
	removed := s.items[index]
	copy(s.items[index:], s.items[index+1:])
	s.items[len(s.items)-1] = nil
	s.items = s.items[:len(s.items)-1]

	s.release(removed)
	return removed.Track, nil
}

// MoveItem moves the entry at from to position to. Other entries keep their relative order.
func (s *Store) MoveItem(from, to int) error {
	if from < 0 || from >= len(s.items) || to < 0 || to >= len(s.items) {
		return ErrIndexOutOfRange
	}
	if from == to {
		return nil
	}
	item := s.items[from]
	if from < to {
		copy(s.items[from:], s.items[from+1:to+1])
	} else {
		copy(s.items[to+1:], s.items[to:from])
	}
	s.items[to] = item
	return nil
}

// TotalDuration returns the sum of the durations of all queued entries.
func (s *Store) TotalDuration() time.Duration {
	var total time.Duration
	for _, p := range s.items {
		total += p.Track.Duration
	}
	return total
}

// Paths returns the paths of the current track, the queue and the history.
func (s *Store) Paths() map[string]bool {
	paths := make(map[string]bool, len(s.items)+len(s.history)+1)
	if s.current != nil {
		paths[s.current.Track.Path] = true
	}
	for _, p := range s.items {
		paths[p.Track.Path] = true
	}
	for _, p := range s.history {
		paths[p.Track.Path] = true
	}
	return paths
}

// Clear releases every entry held by the store.
func (s *Store) Clear() {
	for _, p := range s.items {
		s.release(p)
	}
	for _, p := range s.history {
		s.release(p)
	}
	if s.current != nil {
		s.release(s.current)
	}
	s.items = make([]*track.Playable, 0)
	s.history = make([]*track.Playable, 0)
	s.current = nil
}

func (s *Store) trimHistory() {
	if excess := len(s.history) - s.historyCap; excess > 0 {
		for _, p := range s.history[:excess] {
			s.release(p)
		}
		s.history = append(s.history[:0], s.history[excess:]...)
	}
}
