package sampler

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/domain/track"
)

// RemoteProviderConfig represents the settings of RemoteProvider.
type RemoteProviderConfig struct {
	Attempts int `yaml:"attempts" mapstructure:"attempts" default:"1" validate:"gte=1,lte=10"`
}

// RemoteProvider asks the music server to choose a track.
type RemoteProvider struct {
	client RemoteClient
	config *RemoteProviderConfig
}

// NewRemoteProvider creates a new RemoteProvider.
func NewRemoteProvider(client RemoteClient, settings map[string]any) (*RemoteProvider, error) {
	if client == nil {
		return nil, errors.New("music server client is required")
	}

	var config RemoteProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("remote provider config: %+v", config)

	return &RemoteProvider{client: client, config: &config}, nil
}

// SampleTrackPath asks the server for a random track, retrying up to the configured attempts.
func (p *RemoteProvider) SampleTrackPath(ctx context.Context, playlist string, filter track.TagFilter) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.config.Attempts; attempt++ {
		path, err := p.client.ChooseTrack(ctx, playlist, filter)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		zlog.Debug().Msgf("remote provider attempt failed: playlist=%s attempt=%d error=%v", playlist, attempt, err)
	}
	return "", errors.Wrapf(lastErr, "music server failed to choose a track from %s", playlist)
}

// Name returns the provider name.
func (p *RemoteProvider) Name() string {
	return "remote"
}
