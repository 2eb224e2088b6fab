// Package selector chooses the playlist the next backfilled track is drawn from.
package selector

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrSelectionUnavailable is returned when no playlist is enabled and no override is pending.
var ErrSelectionUnavailable = errors.New("no playlist available for selection")

// Snapshot is a read-only copy of the selector state.
type Snapshot struct {
	Cursor    string   // Last playlist chosen by round robin, empty before the first choice
	Overrides []string // Pending overrides, bottom of the stack first
}

// Selector implements round-robin playlist selection with a LIFO stack of one-shot overrides.
type Selector struct {
	mu        sync.Mutex
	cursor    string
	overrides []string
}

// New creates a Selector with an empty cursor and no overrides.
func New() *Selector {
	return &Selector{
		overrides: make([]string, 0),
	}
}

// ChooseNext returns the playlist to draw from.
// A pending override is popped first and does not move the round-robin cursor.
// Otherwise the cursor advances to the next enabled playlist after it in lexical order,
// wrapping around.
func (s *Selector) ChooseNext(enabled []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.overrides); n > 0 {
		top := s.overrides[n-1]
		s.overrides = s.overrides[:n-1]
		zlog.Debug().Msgf("selector: override popped: playlist=%s, remaining=%d", top, n-1)
		return top, nil
	}

	candidates := normalize(enabled)
	if len(candidates) == 0 {
		return "", ErrSelectionUnavailable
	}

	next := candidates[0]
	for _, id := range candidates {
		if id > s.cursor {
			next = id
			break
		}
	}
	s.cursor = next
	return next, nil
}

// PushOverride requests that the next selection returns playlist once.
func (s *Selector) PushOverride(playlist string) {
	if playlist == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = append(s.overrides, playlist)
}

// Snapshot returns a copy of the selector state.
func (s *Selector) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Cursor:    s.cursor,
		Overrides: slices.Clone(s.overrides),
	}
}

// normalize returns the sorted, de-duplicated, non-empty playlist ids.
func normalize(enabled []string) []string {
	out := make([]string, 0, len(enabled))
	for _, id := range enabled {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
