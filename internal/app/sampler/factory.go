package sampler

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/app/filter"
	"github.com/osa030/lookahead/internal/infra/config"
)

// NewProviderChainFromConfig creates a provider chain from configuration.
func NewProviderChainFromConfig(cfg *config.Config, remote RemoteClient, catalog CatalogReader, chain *filter.Chain) (*ProviderChain, error) {
	if len(cfg.Samplers) == 0 {
		return nil, errors.New("no samplers configured")
	}

	var providers []NamedProvider

	for i, scfg := range cfg.Samplers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating sampler: index=%d type=%s settings=%+v", i+1, scfg.Type, scfg.Settings)
		switch scfg.Type {
		case "remote":
			provider, err = NewRemoteProvider(remote, scfg.Settings)

		case "local":
			provider, err = NewLocalProvider(catalog, chain, scfg.Settings)

		default:
			return nil, errors.Newf("unsupported sampler type: %s (sampler index %d)", scfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create sampler (index %d, type %s)", i, scfg.Type)
		}

		providers = append(providers, NamedProvider{
			Provider:    provider,
			DisplayName: scfg.DisplayName,
		})

		zlog.Info().Msgf("registered sampler: index=%d type=%s display_name=%s", i+1, scfg.Type, scfg.DisplayName)
	}

	return NewProviderChain(providers), nil
}
