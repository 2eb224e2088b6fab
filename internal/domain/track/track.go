// Package track provides the Track domain entity.
package track

import (
	"strconv"
	"strings"
	"time"
)

// Track represents a catalog entry.
// Immutable once loaded from the music server track list.
type Track struct {
	Path        string        // Unique path relative to the music root, e.g. "Rock/Queen - Song.mp3"
	Playlist    string        // Playlist (top level directory) the track belongs to
	Display     string        // Server-provided display string (file name based when metadata is missing)
	Title       string        // Title tag, empty when absent
	Artists     []string      // Artist tags, nil when absent
	Album       string        // Album tag, empty when absent
	AlbumArtist string        // Album artist tag, empty when absent
	Year        int           // Release year, 0 when absent
	Tags        []string      // Genre-like tags used by tag filters
	Duration    time.Duration // Track duration
	Mtime       int64         // Modification time of the file (unix seconds)
}

// HasMetadata reports whether the track carries enough tags to build a structured title.
func (t *Track) HasMetadata() bool {
	return t.Title != "" && len(t.Artists) > 0
}

// DisplayTitle returns the title used in queue rows and search results.
// With title and artists present it is "A & B - Title [year]", otherwise the display string.
func (t *Track) DisplayTitle() string {
	if !t.HasMetadata() {
		return t.Display
	}
	title := strings.Join(t.Artists, " & ") + " - " + t.Title
	if t.Year != 0 {
		title += " [" + strconv.Itoa(t.Year) + "]"
	}
	return title
}

// NowPlaying holds the metadata handed to transport controls.
type NowPlaying struct {
	Title  string
	Artist string
	Album  string
}

// NowPlaying returns transport-control metadata with fallbacks for missing tags.
func (t *Track) NowPlaying() NowPlaying {
	np := NowPlaying{
		Title:  t.Display,
		Artist: "Unknown Artist",
		Album:  "Unknown Album",
	}
	if t.Title != "" {
		np.Title = t.Title
	}
	if len(t.Artists) > 0 {
		np.Artist = strings.Join(t.Artists, " & ")
	}
	if t.Album != "" {
		np.Album = t.Album
	}
	return np
}

// Origin tells how a playable track entered the queue.
type Origin string

const (
	OriginBackfill Origin = "BACKFILL" // Added by the backfill loop
	OriginManual   Origin = "MANUAL"   // Added by the user from search
)

// Handle references a fetched resource held by the blob store.
type Handle string

// DefaultArtwork is the placeholder artwork used when artwork is not downloaded.
// It is never owned by the blob store and releasing it is a no-op.
const DefaultArtwork Handle = "builtin:default-artwork"

// IsBuiltin reports whether the handle is a built-in placeholder.
func (h Handle) IsBuiltin() bool {
	return strings.HasPrefix(string(h), "builtin:")
}

// Lyrics holds the lyrics payload of a playable track.
type Lyrics struct {
	Found  bool   `json:"found"`
	Source string `json:"source,omitempty"` // URL of the lyrics source, empty when unknown
	HTML   string `json:"html,omitempty"`   // Pre-escaped HTML body
}

var (
	// LyricsNotFound is returned when the server has no lyrics for a track.
	LyricsNotFound = Lyrics{Found: false}
	// LyricsNotDownloaded replaces lyrics at the lowest quality tier.
	LyricsNotDownloaded = Lyrics{Found: true, HTML: "<i>Lyrics were not downloaded to save data</i>"}
)

// Playable is a Track with all remote resources resolved.
type Playable struct {
	Track   Track     // Catalog entry
	Audio   Handle    // Audio resource
	Artwork Handle    // Artwork resource or DefaultArtwork
	Lyrics  Lyrics    // Lyrics payload or one of the sentinels
	Quality Quality   // Quality tier the resources were fetched with
	Origin  Origin    // How the track was queued
	AddedAt time.Time // Time when the track was materialized
}

// Handles returns the releasable resource handles of the playable track.
func (p *Playable) Handles() []Handle {
	handles := make([]Handle, 0, 2)
	if p.Audio != "" && !p.Audio.IsBuiltin() {
		handles = append(handles, p.Audio)
	}
	if p.Artwork != "" && !p.Artwork.IsBuiltin() {
		handles = append(handles, p.Artwork)
	}
	return handles
}
