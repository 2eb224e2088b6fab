package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lookahead/internal/app/notification"
	"github.com/osa030/lookahead/internal/app/session/state"
	"github.com/osa030/lookahead/internal/domain/track"
	"github.com/osa030/lookahead/internal/infra/config"
	"github.com/osa030/lookahead/internal/infra/musicserver"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

var catalogJSON = map[string]any{
	"playlists": []map[string]any{
		{
			"name":        "Rock",
			"track_count": 3,
			"tracks": []map[string]any{
				{"path": "Rock/Bohemian Rhapsody.mp3", "display": "Queen - Bohemian Rhapsody", "duration": 354.0, "title": "Bohemian Rhapsody", "artists": []string{"Queen"}},
				{"path": "Rock/Stairway.mp3", "display": "Led Zeppelin - Stairway to Heaven", "duration": 482.0},
				{"path": "Rock/Paranoid.mp3", "display": "Black Sabbath - Paranoid", "duration": 170.0},
			},
		},
		{
			"name":        "Jazz",
			"track_count": 2,
			"tracks": []map[string]any{
				{"path": "Jazz/So What.mp3", "display": "Miles Davis - So What", "duration": 562.0},
				{"path": "Jazz/Take Five.mp3", "display": "Dave Brubeck - Take Five", "duration": 324.0},
			},
		},
	},
}

// fakeMusicServer serves the subset of the music server API used by a session.
type fakeMusicServer struct {
	mu     sync.Mutex
	chosen map[string]int
	posts  map[string][]map[string]any
}

func newFakeMusicServer(t *testing.T) (*fakeMusicServer, *httptest.Server) {
	t.Helper()
	f := &fakeMusicServer{
		chosen: make(map[string]int),
		posts:  make(map[string][]map[string]any),
	}
	server := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeMusicServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.posts[r.URL.Path] = append(f.posts[r.URL.Path], body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case "/get_csrf":
		writeJSON(w, map[string]any{"token": "csrf-token"})
	case "/track_list":
		writeJSON(w, catalogJSON)
	case "/choose_track":
		writeJSON(w, map[string]any{"path": f.choose(r.URL.Query().Get("playlist_dir"))})
	case "/get_track":
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("audio-" + r.URL.Query().Get("path")))
	case "/get_album_cover":
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("cover"))
	case "/get_lyrics":
		writeJSON(w, map[string]any{"found": false})
	default:
		http.NotFound(w, r)
	}
}

// choose returns the tracks of a playlist in catalog order, wrapping around.
func (f *fakeMusicServer) choose(playlistName string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range catalogJSON["playlists"].([]map[string]any) {
		if p["name"] != playlistName {
			continue
		}
		tracks := p["tracks"].([]map[string]any)
		i := f.chosen[playlistName] % len(tracks)
		f.chosen[playlistName]++
		return tracks[i]["path"].(string)
	}
	return ""
}

func (f *fakeMusicServer) postCount(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts[route])
}

func (f *fakeMusicServer) lastPost(route string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	posts := f.posts[route]
	if len(posts) == 0 {
		return nil
	}
	return posts[len(posts)-1]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(serverURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{URL: serverURL, Token: "secret", TimeoutSec: 5},
		Queue: config.QueueConfig{
			Size:             2,
			HistorySize:      5,
			RemovalBehaviour: config.RemovalRoundRobin,
			Quality:          "high",
			Playlists:        []string{"Rock", "Jazz"},
			MaxSearchResults: 2,
		},
		Backfill: config.BackfillConfig{UnavailableDelayMs: 10, ErrorDelayMs: 20, EmptyQueueRetryMs: 10},
		Samplers: []config.SamplerConfig{
			{Type: "remote", DisplayName: "Server"},
			{Type: "local", DisplayName: "Local"},
		},
		Filters: map[string]config.FilterConfig{
			"disliked_track_filter":  {Enabled: true},
			"duplicate_track_filter": {Enabled: true},
		},
	}
}

func startManager(t *testing.T) (*Manager, *fakeMusicServer) {
	t.Helper()
	fake, server := newFakeMusicServer(t)

	client, err := musicserver.New(musicserver.Config{URL: server.URL, Token: "secret"})
	require.NoError(t, err)

	m, err := NewManager(testConfig(server.URL), client)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	require.NoError(t, m.Start(context.Background()))
	waitQueued(t, m, 2)
	return m, fake
}

func waitQueued(t *testing.T, m *Manager, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := m.Snapshot()
		return err == nil && len(snap.Queue) == n && snap.FillState.String() == "idle"
	}, waitFor, tick)
}

func TestManager_StartFillsQueue(t *testing.T) {
	m, _ := startManager(t)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "Jazz/So What.mp3", snap.Queue[0].Track.Path)
	assert.Equal(t, "Rock/Bohemian Rhapsody.mp3", snap.Queue[1].Track.Path)
	assert.Equal(t, track.OriginBackfill, snap.Queue[0].Origin)
	assert.Equal(t, state.PhaseRunning, m.Phase())

	blob, err := m.Resource(snap.Queue[0].Audio)
	require.NoError(t, err)
	assert.Equal(t, "audio-Jazz/So What.mp3", string(blob.Data))
	assert.Equal(t, "audio/mpeg", blob.ContentType)
	assert.Equal(t, track.LyricsNotFound, snap.Queue[0].Lyrics)
}

func TestManager_ReportsPlayback(t *testing.T) {
	m, fake := startManager(t)

	var mu sync.Mutex
	var types []string
	m.Subscribe(notification.StreamFunc(func(n *notification.Notification) error {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, n.Type)
		return nil
	}))

	first, err := m.Next()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fake.postCount("/now_playing") == 1 }, waitFor, tick)
	assert.Equal(t, first.Track.Path, fake.lastPost("/now_playing")["track"])
	assert.Equal(t, "csrf-token", fake.lastPost("/now_playing")["csrf"])

	current, err := m.NowPlaying()
	require.NoError(t, err)
	assert.Equal(t, first.Track.Path, current.Track.Path)

	_, err = m.Next()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fake.postCount("/history_played") == 1 }, waitFor, tick)

	played := fake.lastPost("/history_played")
	assert.Equal(t, first.Track.Path, played["track"])
	assert.Equal(t, first.Track.Playlist, played["playlist"])
	assert.Equal(t, false, played["lastfmEligible"])

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, typ := range types {
			if typ == "track_started" {
				return true
			}
		}
		return false
	}, waitFor, tick)
}

func TestManager_SearchAndEnqueue(t *testing.T) {
	m, _ := startManager(t)

	results, err := m.Search("so what", "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)
	assert.Equal(t, "Jazz/So What.mp3", results[0].Track.Path)

	results, err = m.Search("", "Rock")
	require.NoError(t, err)
	assert.Len(t, results, 2)

	require.NoError(t, m.Enqueue(context.Background(), "Rock/Paranoid.mp3", true))
	require.NoError(t, m.Enqueue(context.Background(), "Jazz/Take Five.mp3", false))

	snap, err := m.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Queue, 4)
	assert.Equal(t, "Rock/Paranoid.mp3", snap.Queue[0].Track.Path)
	assert.Equal(t, track.OriginManual, snap.Queue[0].Origin)
	assert.Equal(t, "Jazz/Take Five.mp3", snap.Queue[3].Track.Path)

	assert.Error(t, m.Enqueue(context.Background(), "Rock/missing.mp3", true))
}

func TestManager_Dislike(t *testing.T) {
	m, fake := startManager(t)

	removed, err := m.Dislike(0)
	require.NoError(t, err)
	assert.Equal(t, "Jazz/So What.mp3", removed.Path)
	assert.True(t, m.dislikes.IsDisliked(removed.Path))

	require.Eventually(t, func() bool { return fake.postCount("/dislikes/add") == 1 }, waitFor, tick)
	assert.Equal(t, removed.Path, fake.lastPost("/dislikes/add")["track"])

	waitQueued(t, m, 2)
	for _, tr := range m.GetAllTracks() {
		assert.NotEqual(t, removed.Path, tr.Path)
	}

	_, err = m.Dislike(10)
	assert.Error(t, err)
}

func TestManager_Settings(t *testing.T) {
	m, _ := startManager(t)

	require.NoError(t, m.SetQueueSize(4))
	waitQueued(t, m, 4)

	require.NoError(t, m.SetQuality("verylow"))
	assert.Equal(t, track.QualityVeryLow, m.Settings().Quality)
	assert.Error(t, m.SetQuality("ultra"))
	assert.Error(t, m.SetQueueSize(0))
	assert.Error(t, m.SetRemovalPolicy("random"))
	require.NoError(t, m.SetRemovalPolicy("same"))

	m.EnablePlaylist("Jazz", false)
	assert.Equal(t, []string{"Rock"}, m.Settings().Playlists)

	require.NoError(t, m.Prefer("Jazz"))
	assert.Error(t, m.Prefer("Metal"))
}

func TestManager_NotRunning(t *testing.T) {
	_, server := newFakeMusicServer(t)
	client, err := musicserver.New(musicserver.Config{URL: server.URL})
	require.NoError(t, err)

	m, err := NewManager(testConfig(server.URL), client)
	require.NoError(t, err)

	_, err = m.Search("x", "")
	assert.ErrorIs(t, err, ErrSessionNotRunning)
	_, err = m.Next()
	assert.ErrorIs(t, err, ErrSessionNotRunning)
	assert.Nil(t, m.GetAllTracks())

	m.Close()
	select {
	case <-m.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
	assert.Equal(t, state.PhaseTerminated, m.Phase())
}

func TestManager_StartFailsWithoutServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client, err := musicserver.New(musicserver.Config{URL: server.URL})
	require.NoError(t, err)
	m, err := NewManager(testConfig(server.URL), client)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManager_CloseReleasesResources(t *testing.T) {
	m, _ := startManager(t)

	_, err := m.Next()
	require.NoError(t, err)
	waitQueued(t, m, 2)
	assert.Positive(t, m.blobs.Len())

	m.Close()
	assert.Zero(t, m.blobs.Len())

	_, err = m.Snapshot()
	assert.ErrorIs(t, err, ErrSessionNotRunning)
}

func TestScrobbleEligible(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		played   time.Duration
		want     bool
	}{
		{name: "short track", duration: 20 * time.Second, played: 20 * time.Second, want: false},
		{name: "half played", duration: 4 * time.Minute, played: 2 * time.Minute, want: true},
		{name: "skipped early", duration: 4 * time.Minute, played: 30 * time.Second, want: false},
		{name: "long track four minutes", duration: 20 * time.Minute, played: 4 * time.Minute, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scrobbleEligible(tt.duration, tt.played))
		})
	}
}
