// Package blobstore holds fetched binary resources (audio, artwork) in memory behind opaque handles.
package blobstore

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/domain/track"
)

const handlePrefix = "blob:"

// ErrNotFound is returned when a handle is unknown or already released.
var ErrNotFound = errors.New("blob not found")

// Blob is a stored resource.
type Blob struct {
	Data        []byte
	ContentType string
}

// Store keeps blobs until they are released.
type Store struct {
	mu    sync.RWMutex
	blobs map[track.Handle]Blob
	size  int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		blobs: make(map[track.Handle]Blob),
	}
}

// Put stores data and returns a new handle for it.
func (s *Store) Put(data []byte, contentType string) track.Handle {
	h := track.Handle(handlePrefix + uuid.New().String())

	s.mu.Lock()
	s.blobs[h] = Blob{Data: data, ContentType: contentType}
	s.size += int64(len(data))
	s.mu.Unlock()

	return h
}

// Get returns the blob referenced by h.
func (s *Store) Get(h track.Handle) (Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[h]
	if !ok {
		return Blob{}, errors.Wrapf(ErrNotFound, "handle=%s", h)
	}
	return b, nil
}

// Release frees the blob referenced by h.
// Built-in handles and unknown handles are ignored.
func (s *Store) Release(h track.Handle) {
	if h == "" || h.IsBuiltin() || !strings.HasPrefix(string(h), handlePrefix) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[h]
	if !ok {
		zlog.Debug().Msgf("blobstore: release of unknown handle: handle=%s", h)
		return
	}
	delete(s.blobs, h)
	s.size -= int64(len(b.Data))
}

// ReleasePlayable frees every resource handle held by p.
func (s *Store) ReleasePlayable(p *track.Playable) {
	if p == nil {
		return
	}
	for _, h := range p.Handles() {
		s.Release(h)
	}
}

// Len returns the number of live blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Size returns the total number of bytes held.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// String returns a human readable summary, e.g. "3 blobs, 12 MB".
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return humanize.Comma(int64(len(s.blobs))) + " blobs, " + humanize.Bytes(uint64(max(s.size, 0)))
}
