package filter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/lookahead/internal/domain/track"
)

const (
	codeTooShort = "track_too_short"
	codeTooLong  = "track_too_long"
)

// DurationLimitConfig bounds the length of sampled tracks.
type DurationLimitConfig struct {
	MinMinutes float64 `mapstructure:"min_minutes" validate:"gte=0"`
	MaxMinutes float64 `mapstructure:"max_minutes" validate:"gte=0"` // 0 disables the upper bound
}

// DurationLimitFilter keeps interludes and very long recordings out of the backfill.
// Tracks with an unknown duration always pass.
type DurationLimitFilter struct {
	shortest time.Duration
	longest  time.Duration // 0 when unbounded
}

// NewDurationLimitFilter creates a duration filter that accepts everything until configured.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit_filter"
}

func (f *DurationLimitFilter) Description() string {
	return "Skips tracks shorter than min_minutes or longer than max_minutes"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{codeTooShort, codeTooLong}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var cfg DurationLimitConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return err
	}

	shortest := minutes(cfg.MinMinutes)
	longest := minutes(cfg.MaxMinutes)
	if longest > 0 && shortest > longest {
		return errors.Newf("min_minutes (%g) is above max_minutes (%g)", cfg.MinMinutes, cfg.MaxMinutes)
	}

	f.shortest, f.longest = shortest, longest
	zlog.Info().Msgf("filter: duration limit: min=%s, max=%s", shortest, longest)
	return nil
}

func (f *DurationLimitFilter) Check(ctx context.Context, t track.Track) Result {
	switch {
	case t.Duration <= 0:
		return Accept()
	case t.Duration < f.shortest:
		return Reject(codeTooShort)
	case f.longest > 0 && t.Duration > f.longest:
		return Reject(codeTooLong)
	}
	return Accept()
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute)).Round(time.Second)
}

func init() {
	Register("duration_limit_filter", func(Dependencies) Filter {
		return NewDurationLimitFilter()
	})
}
