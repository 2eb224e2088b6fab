package state

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/osa030/lookahead/internal/app/playback"
	"github.com/osa030/lookahead/internal/domain/track"
	"github.com/osa030/lookahead/internal/infra/config"
)

var validate = validator.New()

// Values is a copy of the settings.
type Values struct {
	Playlists   []string
	Quality     track.Quality          `validate:"oneof=high low verylow"`
	QueueSize   int                    `validate:"gte=1,lte=100"`
	HistorySize int                    `validate:"gte=0,lte=1000"`
	Removal     playback.RemovalPolicy `validate:"oneof=roundrobin same"`
	TagFilter   track.TagFilter
}

// Settings holds the live settings read by the backfill loop at every decision point.
// All methods are safe for concurrent use.
type Settings struct {
	mu     sync.RWMutex
	values Values
}

// New creates settings initialised from the queue configuration.
func New(cfg config.QueueConfig) *Settings {
	return &Settings{
		values: Values{
			Playlists:   slices.Clone(cfg.Playlists),
			Quality:     cfg.QualityTier(),
			QueueSize:   cfg.Size,
			HistorySize: cfg.HistorySize,
			Removal:     playback.RemovalPolicy(cfg.RemovalBehaviour),
			TagFilter:   cfg.TagFilter,
		},
	}
}

// Values returns a copy of the current settings.
func (s *Settings) Values() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.values
	v.Playlists = slices.Clone(v.Playlists)
	v.TagFilter.Tags = slices.Clone(v.TagFilter.Tags)
	return v
}

// ActivePlaylists returns the enabled playlists.
func (s *Settings) ActivePlaylists() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.values.Playlists)
}

// Quality returns the quality tier.
func (s *Settings) Quality() track.Quality {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Quality
}

// TargetQueueDepth returns the number of tracks the backfill loop keeps queued.
func (s *Settings) TargetQueueDepth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.QueueSize
}

// HistoryCapacity returns the maximum number of history entries.
func (s *Settings) HistoryCapacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.HistorySize
}

// RemovalPolicy returns the removal behaviour.
func (s *Settings) RemovalPolicy() playback.RemovalPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Removal
}

// TagFilter returns the tag filter applied when sampling.
func (s *Settings) TagFilter() track.TagFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := s.values.TagFilter
	f.Tags = slices.Clone(f.Tags)
	return f
}

// SetPlaylists replaces the enabled playlists.
func (s *Settings) SetPlaylists(playlists []string) {
	_ = s.update(func(v *Values) {
		v.Playlists = slices.Clone(playlists)
	})
}

// EnablePlaylist enables or disables a single playlist.
func (s *Settings) EnablePlaylist(name string, enabled bool) {
	_ = s.update(func(v *Values) {
		i := slices.Index(v.Playlists, name)
		switch {
		case enabled && i < 0:
			v.Playlists = append(slices.Clone(v.Playlists), name)
		case !enabled && i >= 0:
			v.Playlists = slices.Delete(slices.Clone(v.Playlists), i, i+1)
		}
	})
}

// SetQuality sets the quality tier.
func (s *Settings) SetQuality(q track.Quality) error {
	return s.update(func(v *Values) { v.Quality = q })
}

// SetQueueSize sets the target queue depth.
func (s *Settings) SetQueueSize(n int) error {
	return s.update(func(v *Values) { v.QueueSize = n })
}

// SetHistorySize sets the history capacity. The history is trimmed on the next track change.
func (s *Settings) SetHistorySize(n int) error {
	return s.update(func(v *Values) { v.HistorySize = n })
}

// SetRemovalPolicy sets the removal behaviour.
func (s *Settings) SetRemovalPolicy(p playback.RemovalPolicy) error {
	return s.update(func(v *Values) { v.Removal = p })
}

// SetTagFilter sets the tag filter.
func (s *Settings) SetTagFilter(f track.TagFilter) error {
	return s.update(func(v *Values) {
		f.Tags = slices.Clone(f.Tags)
		v.TagFilter = f
	})
}

// update applies fn to a copy of the values and commits it if the result is valid.
func (s *Settings) update(fn func(v *Values)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.values
	fn(&next)
	if err := validate.Struct(next); err != nil {
		return errors.Wrap(err, "invalid settings")
	}
	s.values = next
	return nil
}
