package session

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/app/notification"
	"github.com/osa030/lookahead/internal/app/playback"
	"github.com/osa030/lookahead/internal/domain/track"
	"github.com/osa030/lookahead/internal/infra/musicserver"
)

// playbackLoop handles playback events until the controller is closed.
func (m *Manager) playbackLoop(ctrl *playback.Controller) {
	defer close(m.loopDone)
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: playback loop panicked: %v", r)
		}
	}()

	for event := range ctrl.Events() {
		m.handlePlaybackEvent(ctrl, event)
	}
}

// handlePlaybackEvent reports track changes to the music server and broadcasts the new state.
func (m *Manager) handlePlaybackEvent(ctrl *playback.Controller, event playback.Event) {
	zlog.Debug().Msgf("session: playback event: type=%s, fill_state=%s", event.Type, event.FillState)

	var message string
	switch event.Type {
	case playback.EventTrackStarted:
		m.onTrackStarted(event.Track, event.Previous)
	case playback.EventFillFailed:
		if event.Err != nil {
			message = event.Err.Error()
		}
	}

	m.broadcast(ctrl, event.Type.String(), event.Track, message)
}

// onTrackStarted sends the now-playing report, and the history report for the track that
// moved into the history.
func (m *Manager) onTrackStarted(current, previous *track.Track) {
	now := time.Now()

	m.mu.Lock()
	started := m.currentStarted
	m.currentStarted = now
	m.mu.Unlock()

	if previous != nil && !started.IsZero() {
		req := musicserver.HistoryPlayedRequest{
			Track:          previous.Path,
			Playlist:       previous.Playlist,
			Timestamp:      now.Unix(),
			StartTimestamp: started.Unix(),
			LastfmEligible: scrobbleEligible(previous.Duration, now.Sub(started)),
		}
		m.report("history", func(ctx context.Context) error {
			return m.remote.HistoryPlayed(ctx, req)
		})
	}

	if current != nil {
		path := current.Path
		m.report("now playing", func(ctx context.Context) error {
			return m.remote.NowPlaying(ctx, path, false, 0)
		})
	}
}

// broadcast sends a notification carrying the current snapshot to every subscriber.
func (m *Manager) broadcast(ctrl *playback.Controller, typ string, t *track.Track, message string) {
	if m.notification.SubscriberCount() == 0 {
		return
	}
	m.notification.Broadcast(&notification.Notification{
		Type:     typ,
		Track:    t,
		Message:  message,
		Snapshot: ctrl.Snapshot(),
	})
}
