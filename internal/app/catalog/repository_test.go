package catalog

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lookahead/internal/domain/playlist"
	"github.com/osa030/lookahead/internal/domain/track"
)

func testPlaylists() []playlist.Playlist {
	return []playlist.Playlist{
		{
			Name: "Rock",
			Tracks: []track.Track{
				{Path: "Rock/a.mp3", Display: "a"},
				{Path: "Rock/b.mp3", Display: "b"},
			},
		},
		{
			Name: "Jazz",
			Tracks: []track.Track{
				{Path: "Jazz/c.mp3", Display: "c", Playlist: "Jazz"},
			},
		},
	}
}

type fakeSource struct {
	calls     atomic.Int32
	playlists []playlist.Playlist
	err       error
	delay     time.Duration
}

func (f *fakeSource) TrackList(ctx context.Context) ([]playlist.Playlist, error) {
	f.calls.Add(1)
	time.Sleep(f.delay)
	return f.playlists, f.err
}

func TestRepository_FindByPath(t *testing.T) {
	r := New(testPlaylists())

	tr, err := r.FindByPath("Rock/b.mp3")
	require.NoError(t, err)
	assert.Equal(t, "b", tr.Display)
	assert.Equal(t, "Rock", tr.Playlist)

	_, err = r.FindByPath("Rock/missing.mp3")
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestRepository_TracksInCatalogOrder(t *testing.T) {
	r := New(testPlaylists())

	var paths []string
	for tr := range r.Tracks() {
		paths = append(paths, tr.Path)
	}
	assert.Equal(t, []string{"Rock/a.mp3", "Rock/b.mp3", "Jazz/c.mp3"}, paths)
	assert.Equal(t, 3, r.Len())

	// restartable
	assert.Len(t, slices.Collect(r.Tracks()), 3)

	count := 0
	for range r.Tracks() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestRepository_DuplicatePath(t *testing.T) {
	playlists := testPlaylists()
	playlists[1].Tracks = append(playlists[1].Tracks, track.Track{Path: "Rock/a.mp3", Display: "dup"})
	r := New(playlists)

	tr, err := r.FindByPath("Rock/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "a", tr.Display)
	assert.Equal(t, 3, r.Len())
}

func TestRepository_Playlists(t *testing.T) {
	r := New(testPlaylists())

	assert.Equal(t, []string{"Rock", "Jazz"}, r.PlaylistNames())

	tracks, err := r.PlaylistTracks("Jazz")
	require.NoError(t, err)
	assert.Len(t, tracks, 1)

	_, err = r.PlaylistTracks("Metal")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	source := &fakeSource{playlists: testPlaylists()}

	r, err := Load(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	source.err = errors.New("connection refused")
	_, err = Load(context.Background(), source)
	assert.Error(t, err)

	// failed reload keeps the previous catalog
	assert.Error(t, r.Reload(context.Background()))
	assert.Equal(t, 3, r.Len())
}

func TestRepository_ReloadWithoutSource(t *testing.T) {
	r := New(nil)
	assert.Error(t, r.Reload(context.Background()))
}

func TestRepository_ConcurrentReloadShared(t *testing.T) {
	source := &fakeSource{playlists: testPlaylists(), delay: 100 * time.Millisecond}
	r := &Repository{source: source}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Reload(context.Background()))
		}()
	}
	wg.Wait()

	assert.Less(t, source.calls.Load(), int32(5))
	assert.Equal(t, 3, r.Len())
}
