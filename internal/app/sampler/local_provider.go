package sampler

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/app/filter"
	"github.com/osa030/lookahead/internal/domain/track"
)

// LocalProviderConfig represents the settings of LocalProvider.
// The number of random candidates is max(candidate_min, min(candidate_max, tracks/candidate_divisor)).
type LocalProviderConfig struct {
	CandidateMin     int `yaml:"candidate_min" mapstructure:"candidate_min" default:"3" validate:"gte=1"`
	CandidateMax     int `yaml:"candidate_max" mapstructure:"candidate_max" default:"10" validate:"gtefield=CandidateMin"`
	CandidateDivisor int `yaml:"candidate_divisor" mapstructure:"candidate_divisor" default:"6" validate:"gte=1"`
}

// LocalProvider samples tracks from the local catalog.
// Among a few random candidates it picks the one chosen longest ago.
type LocalProvider struct {
	catalog CatalogReader
	chain   *filter.Chain
	config  *LocalProviderConfig

	mu         sync.Mutex
	lastChosen map[string]time.Time
	rand       *rand.Rand
	now        func() time.Time
}

// NewLocalProvider creates a new LocalProvider. chain may be nil.
func NewLocalProvider(catalog CatalogReader, chain *filter.Chain, settings map[string]any) (*LocalProvider, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}

	var config LocalProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("local provider config: %+v", config)

	if chain == nil {
		chain = filter.NewChain()
	}

	return &LocalProvider{
		catalog:    catalog,
		chain:      chain,
		config:     &config,
		lastChosen: make(map[string]time.Time),
		rand:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:        time.Now,
	}, nil
}

// SampleTrackPath picks a track of playlist passing the tag filter and the filter chain.
func (p *LocalProvider) SampleTrackPath(ctx context.Context, playlist string, tagFilter track.TagFilter) (string, error) {
	tracks, err := p.catalog.PlaylistTracks(playlist)
	if err != nil {
		return "", err
	}

	eligible := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if !tagFilter.Matches(t.Tags) {
			continue
		}
		if result := p.chain.Execute(ctx, t); !result.Accepted {
			zlog.Trace().Msgf("local provider skipped track: path=%s code=%s", t.Path, result.Code)
			continue
		}
		eligible = append(eligible, t)
	}
	if len(eligible) == 0 {
		return "", errors.Newf("no eligible track in playlist %s", playlist)
	}

	count := p.candidateCount(len(tracks))

	p.mu.Lock()
	defer p.mu.Unlock()

	p.rand.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})
	candidates := eligible[:min(count, len(eligible))]

	chosen := candidates[0]
	for _, c := range candidates[1:] {
		if p.lastChosen[c.Path].Before(p.lastChosen[chosen.Path]) {
			chosen = c
		}
	}
	p.lastChosen[chosen.Path] = p.now()

	return chosen.Path, nil
}

// candidateCount returns the number of random candidates for a playlist of n tracks.
func (p *LocalProvider) candidateCount(n int) int {
	return max(p.config.CandidateMin, min(p.config.CandidateMax, n/p.config.CandidateDivisor))
}

// Name returns the provider name.
func (p *LocalProvider) Name() string {
	return "local"
}
