// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/lookahead/internal/domain/track"
)

// Playlist represents a playlist directory on the music server.
type Playlist struct {
	Name       string        // Playlist identifier (directory name)
	TrackCount int           // Number of tracks reported by the server
	Favorite   bool          // Marked as favorite by the user
	Write      bool          // User may modify the playlist
	Tracks     []track.Track // Tracks in the playlist
}

// TrackPaths returns all track paths in the playlist.
func (p *Playlist) TrackPaths() []string {
	paths := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		paths[i] = t.Path
	}
	return paths
}

// TotalDuration returns the total duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}
