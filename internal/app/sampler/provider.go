// Package sampler provides strategies for picking a random track path within a playlist.
package sampler

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/lookahead/internal/domain/track"
)

// Provider is the interface for track samplers.
// Different implementations pick tracks through various strategies
// (e.g., asking the music server, sampling the local catalog).
type Provider interface {
	// SampleTrackPath returns the path of a random track of playlist passing the tag filter.
	SampleTrackPath(ctx context.Context, playlist string, filter track.TagFilter) (string, error)

	// Name returns the provider name (used in config).
	Name() string
}

// RemoteClient defines the music server operations needed by the remote provider.
type RemoteClient interface {
	ChooseTrack(ctx context.Context, playlist string, filter track.TagFilter) (string, error)
}

// CatalogReader defines the catalog operations needed by the local provider.
type CatalogReader interface {
	PlaylistTracks(name string) ([]track.Track, error)
}

// decodeSettings decodes provider settings, applies defaults and validates them.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.WeakDecode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
