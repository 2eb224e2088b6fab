// Package fetcher materializes catalog tracks into playable tracks by downloading their resources.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/domain/track"
)

// Stage identifies the resource being fetched.
type Stage string

const (
	StageAudio   Stage = "audio"
	StageArtwork Stage = "artwork"
	StageLyrics  Stage = "lyrics"
)

// FetchError reports the stage at which fetching a track failed.
type FetchError struct {
	Stage Stage
	Path  string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s for %s: %v", e.Stage, e.Path, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Remote downloads track resources.
type Remote interface {
	GetAudio(ctx context.Context, path string, quality track.Quality) ([]byte, string, error)
	GetAlbumCover(ctx context.Context, path string, quality string) ([]byte, string, error)
	GetLyrics(ctx context.Context, path string) (track.Lyrics, error)
}

// BlobStore stores downloaded bytes behind handles.
type BlobStore interface {
	Put(data []byte, contentType string) track.Handle
	Release(h track.Handle)
}

// Fetcher downloads audio, artwork and lyrics of a track, in that order.
type Fetcher struct {
	remote Remote
	blobs  BlobStore
	now    func() time.Time
}

// New creates a Fetcher.
func New(remote Remote, blobs BlobStore) *Fetcher {
	return &Fetcher{
		remote: remote,
		blobs:  blobs,
		now:    time.Now,
	}
}

// Fetch resolves every resource of t at quality q.
// At the lowest quality artwork and lyrics are replaced by placeholders.
// On failure every resource stored so far is released and a *FetchError is returned.
func (f *Fetcher) Fetch(ctx context.Context, t track.Track, q track.Quality) (*track.Playable, error) {
	p := &track.Playable{
		Track:   t,
		Artwork: track.DefaultArtwork,
		Lyrics:  track.LyricsNotDownloaded,
		Quality: q,
	}

	fail := func(stage Stage, err error) (*track.Playable, error) {
		for _, h := range p.Handles() {
			f.blobs.Release(h)
		}
		return nil, &FetchError{Stage: stage, Path: t.Path, Cause: err}
	}

	data, contentType, err := f.remote.GetAudio(ctx, t.Path, q)
	if err != nil {
		return fail(StageAudio, err)
	}
	p.Audio = f.blobs.Put(data, contentType)
	size := len(data)

	if !q.IsLowest() {
		data, contentType, err = f.remote.GetAlbumCover(ctx, t.Path, q.ArtworkQuality())
		if err != nil {
			return fail(StageArtwork, err)
		}
		p.Artwork = f.blobs.Put(data, contentType)
		size += len(data)

		p.Lyrics, err = f.remote.GetLyrics(ctx, t.Path)
		if err != nil {
			return fail(StageLyrics, err)
		}
	}

	p.AddedAt = f.now()
	zlog.Debug().Msgf("fetcher: track fetched: path=%s, quality=%s, size=%s", t.Path, q, humanize.Bytes(uint64(size)))
	return p, nil
}
