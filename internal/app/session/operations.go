package session

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/app/notification"
	"github.com/osa030/lookahead/internal/app/playback"
	"github.com/osa030/lookahead/internal/app/search"
	"github.com/osa030/lookahead/internal/app/session/state"
	"github.com/osa030/lookahead/internal/domain/playlist"
	"github.com/osa030/lookahead/internal/domain/track"
	"github.com/osa030/lookahead/internal/infra/blobstore"
)

// Snapshot returns the current playback state.
func (m *Manager) Snapshot() (playback.Snapshot, error) {
	ctrl, _, err := m.running()
	if err != nil {
		return playback.Snapshot{}, err
	}
	return ctrl.Snapshot(), nil
}

// Settings returns a copy of the live settings.
func (m *Manager) Settings() state.Values {
	return m.settings.Values()
}

// Playlists returns the catalog playlists.
func (m *Manager) Playlists() ([]playlist.Playlist, error) {
	_, repo, err := m.running()
	if err != nil {
		return nil, err
	}
	return repo.Playlists(), nil
}

// Search ranks the catalog against query and returns at most max_search_results results.
// playlistFilter restricts the results to one playlist; empty or search.AllPlaylists means all.
func (m *Manager) Search(query, playlistFilter string) ([]search.Result, error) {
	_, repo, err := m.running()
	if err != nil {
		return nil, err
	}

	limit := m.config.Queue.MaxSearchResults
	results := make([]search.Result, 0, limit)
	for r := range search.Rank(repo.Tracks(), playlistFilter, query) {
		results = append(results, r)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// Enqueue fetches a catalog track and queues it. With top it plays next, otherwise it is appended.
func (m *Manager) Enqueue(ctx context.Context, path string, top bool) error {
	ctrl, repo, err := m.running()
	if err != nil {
		return err
	}

	t, err := repo.FindByPath(path)
	if err != nil {
		return err
	}

	p, err := m.fetcher.Fetch(ctx, t, m.settings.Quality())
	if err != nil {
		return err
	}
	p.Origin = track.OriginManual

	if top {
		err = ctrl.PlayNext(p)
	} else {
		err = ctrl.Append(p)
	}
	if err != nil {
		return err
	}

	zlog.Info().Msgf("session: enqueued: path=%s, top=%t", path, top)
	return nil
}

// Next skips to the next queued track.
func (m *Manager) Next() (*track.Playable, error) {
	ctrl, _, err := m.running()
	if err != nil {
		return nil, err
	}
	return ctrl.Next()
}

// TrackEnded is called by the audio output when the current track finished.
func (m *Manager) TrackEnded() {
	ctrl, _, err := m.running()
	if err != nil {
		return
	}
	ctrl.TrackEnded()
}

// Previous goes back to the previously played track.
func (m *Manager) Previous() (*track.Playable, error) {
	ctrl, _, err := m.running()
	if err != nil {
		return nil, err
	}
	return ctrl.Previous()
}

// Remove removes the queued entry at index.
func (m *Manager) Remove(index int) (track.Track, error) {
	ctrl, _, err := m.running()
	if err != nil {
		return track.Track{}, err
	}
	return ctrl.RemoveAt(index)
}

// Move moves the queued entry at from to position to.
func (m *Manager) Move(from, to int) error {
	ctrl, _, err := m.running()
	if err != nil {
		return err
	}
	return ctrl.MoveItem(from, to)
}

// Dislike removes the queued entry at index, excludes it from local sampling for the rest of
// the session and reports it to the music server.
func (m *Manager) Dislike(index int) (track.Track, error) {
	ctrl, _, err := m.running()
	if err != nil {
		return track.Track{}, err
	}

	t, err := ctrl.RemoveAt(index)
	if err != nil {
		return track.Track{}, err
	}
	m.dislikes.Add(t.Path)

	m.report("dislike", func(ctx context.Context) error {
		return m.remote.DislikeAdd(ctx, t.Path)
	})
	m.broadcast(ctrl, notification.TypeDisliked, &t, "")
	return t, nil
}

// Prefer makes the next backfilled track come from playlist.
func (m *Manager) Prefer(playlist string) error {
	ctrl, repo, err := m.running()
	if err != nil {
		return err
	}
	if _, err := repo.PlaylistTracks(playlist); err != nil {
		return err
	}
	ctrl.PushOverride(playlist)
	return nil
}

// Resource returns the bytes behind a resource handle.
func (m *Manager) Resource(h track.Handle) (blobstore.Blob, error) {
	return m.blobs.Get(h)
}

// ReloadCatalog reloads the catalog from the music server.
func (m *Manager) ReloadCatalog(ctx context.Context) error {
	_, repo, err := m.running()
	if err != nil {
		return err
	}
	return repo.Reload(ctx)
}

// SetPlaylists replaces the enabled playlists.
func (m *Manager) SetPlaylists(playlists []string) {
	m.settings.SetPlaylists(playlists)
	m.settingsChanged()
}

// EnablePlaylist enables or disables a playlist.
func (m *Manager) EnablePlaylist(name string, enabled bool) {
	m.settings.EnablePlaylist(name, enabled)
	m.settingsChanged()
}

// SetQuality sets the quality tier used for tracks fetched from now on.
func (m *Manager) SetQuality(quality string) error {
	q, err := track.ParseQuality(quality)
	if err != nil {
		return err
	}
	return m.applySetting(m.settings.SetQuality(q))
}

// SetQueueSize sets the target queue depth.
func (m *Manager) SetQueueSize(n int) error {
	return m.applySetting(m.settings.SetQueueSize(n))
}

// SetHistorySize sets the history capacity.
func (m *Manager) SetHistorySize(n int) error {
	return m.applySetting(m.settings.SetHistorySize(n))
}

// SetRemovalPolicy sets the removal behaviour.
func (m *Manager) SetRemovalPolicy(policy string) error {
	return m.applySetting(m.settings.SetRemovalPolicy(playback.RemovalPolicy(policy)))
}

// SetTagFilter sets the tag filter applied when sampling.
func (m *Manager) SetTagFilter(f track.TagFilter) error {
	return m.applySetting(m.settings.SetTagFilter(f))
}

func (m *Manager) applySetting(err error) error {
	if err != nil {
		return err
	}
	m.settingsChanged()
	return nil
}

// settingsChanged re-evaluates the backfill loop and tells subscribers about the new settings.
func (m *Manager) settingsChanged() {
	ctrl, _, err := m.running()
	if err != nil {
		return
	}
	ctrl.Trigger()
	m.broadcast(ctrl, notification.TypeSettingsChanged, nil, "")
}

// Subscribe registers a notification stream and returns its subscription ID.
func (m *Manager) Subscribe(stream notification.Stream) string {
	return m.notification.Subscribe(stream)
}

// Unsubscribe removes a notification stream.
func (m *Manager) Unsubscribe(id string) {
	m.notification.Unsubscribe(id)
}

// report runs a fire-and-forget request to the music server. Failures are only logged.
func (m *Manager) report(name string, fn func(ctx context.Context) error) {
	m.reports.Add(1)
	go func() {
		defer m.reports.Done()
		ctx, cancel := context.WithTimeout(m.ctx, reportTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			zlog.Warn().Err(err).Msgf("session: %s report failed", name)
		}
	}()
}

// scrobbleEligible applies the usual scrobbling rule: the track is longer than 30 seconds and
// was played for at least half its duration or four minutes, whichever comes first.
func scrobbleEligible(duration, played time.Duration) bool {
	if duration <= 30*time.Second {
		return false
	}
	return played >= min(duration/2, 4*time.Minute)
}

// NowPlaying returns the current track.
func (m *Manager) NowPlaying() (track.Playable, error) {
	snap, err := m.Snapshot()
	if err != nil {
		return track.Playable{}, err
	}
	if snap.Current == nil {
		return track.Playable{}, ErrNoCurrentTrack
	}
	return *snap.Current, nil
}
