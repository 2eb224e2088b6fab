package sampler

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/domain/track"
)

// NamedProvider is a provider with the display name it was configured with.
type NamedProvider struct {
	Provider    Provider
	DisplayName string
}

// ProviderChain falls back through its providers until one yields a track path.
type ProviderChain struct {
	providers []NamedProvider
}

// NewProviderChain creates a chain trying providers in the given order.
func NewProviderChain(providers []NamedProvider) *ProviderChain {
	return &ProviderChain{providers: providers}
}

// SampleTrackPath returns the first path any provider yields. When every provider fails
// the returned error carries all their failures.
func (c *ProviderChain) SampleTrackPath(ctx context.Context, playlist string, filter track.TagFilter) (string, error) {
	var failures error
	for i, np := range c.providers {
		path, err := np.Provider.SampleTrackPath(ctx, playlist, filter)
		if err == nil {
			zlog.Debug().Msgf("sampler: picked: provider=%s, playlist=%s, path=%s", np.DisplayName, playlist, path)
			return path, nil
		}
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), "sampling cancelled")
		}

		failures = errors.CombineErrors(failures, errors.Wrapf(err, "%s", np.DisplayName))
		if i < len(c.providers)-1 {
			zlog.Warn().Err(err).Msgf("sampler: falling back: provider=%s, playlist=%s", np.DisplayName, playlist)
		}
	}

	if failures == nil {
		return "", errors.Newf("no sampler configured for %s", playlist)
	}
	return "", errors.Wrapf(failures, "all samplers failed for %s", playlist)
}

// Name returns the chain name.
func (c *ProviderChain) Name() string {
	return "provider_chain"
}
