package main

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/app/notification"
	"github.com/osa030/lookahead/internal/app/playback"
)

// outputSession is the part of the session driven by the simulated audio output.
type outputSession interface {
	Subscribe(stream notification.Stream) string
	Unsubscribe(id string)
	TrackEnded()
}

// player simulates an audio output: it "plays" the current track for its duration
// (divided by speed) and reports the end of the track to the session.
type player struct {
	mu      sync.Mutex
	session outputSession
	speed   float64
	subID   string
	timer   *time.Timer
	current string
	closed  bool
}

func newPlayer(s outputSession, speed float64) *player {
	if speed <= 0 {
		speed = 1
	}
	return &player{session: s, speed: speed}
}

// Start subscribes to track changes and asks the session for the first track.
func (p *player) Start() {
	p.subID = p.session.Subscribe(notification.StreamFunc(p.Send))
	p.session.TrackEnded()
}

// Send restarts the playback timer whenever a new track starts.
func (p *player) Send(n *notification.Notification) error {
	if n.Type != playback.EventTrackStarted.String() || n.Snapshot.Current == nil {
		return nil
	}
	cur := n.Snapshot.Current

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
	}

	d := time.Duration(float64(cur.Track.Duration) / p.speed)
	p.current = cur.Track.Path
	path := cur.Track.Path
	p.timer = time.AfterFunc(d, func() {
		p.mu.Lock()
		stale := p.closed || p.current != path
		p.mu.Unlock()
		if stale {
			return
		}
		zlog.Debug().Msgf("player: track ended: path=%s", path)
		p.session.TrackEnded()
	})
	zlog.Debug().Msgf("player: playing: path=%s, length=%s", path, d)
	return nil
}

// Close stops the output.
func (p *player) Close() {
	p.mu.Lock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()

	if p.subID != "" {
		p.session.Unsubscribe(p.subID)
	}
}
