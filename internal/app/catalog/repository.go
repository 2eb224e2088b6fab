// Package catalog holds the track catalog loaded from the music server.
package catalog

import (
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/lookahead/internal/domain/playlist"
	"github.com/osa030/lookahead/internal/domain/track"
)

// ErrTrackNotFound is returned when a path is not present in the catalog.
var ErrTrackNotFound = errors.New("track not found in catalog")

// Source loads the playlists and tracks of the catalog.
type Source interface {
	TrackList(ctx context.Context) ([]playlist.Playlist, error)
}

// Repository resolves track paths to catalog entries.
// The catalog is replaced as a whole on Reload and never mutated in place.
type Repository struct {
	mu        sync.RWMutex
	playlists []playlist.Playlist
	byPath    map[string]track.Track
	order     []string // track paths in catalog order

	source Source
	group  singleflight.Group
}

// New creates a Repository from already loaded playlists.
func New(playlists []playlist.Playlist) *Repository {
	r := &Repository{}
	r.replace(playlists)
	return r
}

// Load creates a Repository by loading the catalog from source.
func Load(ctx context.Context, source Source) (*Repository, error) {
	r := &Repository{source: source}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload fetches the catalog from the source again. Concurrent calls share one request.
func (r *Repository) Reload(ctx context.Context) error {
	if r.source == nil {
		return errors.New("catalog has no source")
	}

	_, err, shared := r.group.Do("reload", func() (any, error) {
		playlists, err := r.source.TrackList(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load track list")
		}
		r.replace(playlists)
		return nil, nil
	})
	if err != nil {
		return err
	}

	if !shared {
		zlog.Info().Msgf("catalog: loaded: playlists=%d, tracks=%d", len(r.Playlists()), r.Len())
	}
	return nil
}

// FindByPath returns the track with the given path.
func (r *Repository) FindByPath(path string) (track.Track, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byPath[path]
	if !ok {
		return track.Track{}, errors.Wrapf(ErrTrackNotFound, "path=%s", path)
	}
	return t, nil
}

// Len returns the number of tracks in the catalog.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Tracks returns every track in catalog order.
func (r *Repository) Tracks() iter.Seq[track.Track] {
	r.mu.RLock()
	order := r.order
	byPath := r.byPath
	r.mu.RUnlock()

	return func(yield func(track.Track) bool) {
		for _, path := range order {
			if !yield(byPath[path]) {
				return
			}
		}
	}
}

// Playlists returns the playlists in catalog order.
func (r *Repository) Playlists() []playlist.Playlist {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.playlists)
}

// PlaylistNames returns the names of all playlists in catalog order.
func (r *Repository) PlaylistNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.playlists))
	for i, p := range r.playlists {
		names[i] = p.Name
	}
	return names
}

// PlaylistTracks returns the tracks of one playlist.
func (r *Repository) PlaylistTracks(name string) ([]track.Track, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.playlists {
		if p.Name == name {
			return slices.Clone(p.Tracks), nil
		}
	}
	return nil, errors.Newf("playlist not found: %s", name)
}

func (r *Repository) replace(playlists []playlist.Playlist) {
	byPath := make(map[string]track.Track)
	order := make([]string, 0)

	for i := range playlists {
		p := &playlists[i]
		for j := range p.Tracks {
			t := p.Tracks[j]
			if t.Playlist == "" {
				t.Playlist = p.Name
				p.Tracks[j] = t
			}
			if _, dup := byPath[t.Path]; dup {
				zlog.Warn().Msgf("catalog: duplicate track path ignored: path=%s", t.Path)
				continue
			}
			byPath[t.Path] = t
			order = append(order, t.Path)
		}
	}

	r.mu.Lock()
	r.playlists = playlists
	r.byPath = byPath
	r.order = order
	r.mu.Unlock()
}
