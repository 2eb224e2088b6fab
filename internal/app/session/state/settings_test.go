package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/lookahead/internal/app/playback"
	"github.com/osa030/lookahead/internal/domain/track"
	"github.com/osa030/lookahead/internal/infra/config"
)

func newSettings() *Settings {
	return New(config.QueueConfig{
		Size:             5,
		HistorySize:      10,
		RemovalBehaviour: config.RemovalRoundRobin,
		Quality:          "high",
		Playlists:        []string{"Rock", "Jazz"},
		TagFilter:        track.TagFilter{Mode: track.TagModeDeny, Tags: []string{"christmas"}},
	})
}

func TestSettings_FromConfig(t *testing.T) {
	s := newSettings()

	assert.Equal(t, []string{"Rock", "Jazz"}, s.ActivePlaylists())
	assert.Equal(t, track.QualityHigh, s.Quality())
	assert.Equal(t, 5, s.TargetQueueDepth())
	assert.Equal(t, 10, s.HistoryCapacity())
	assert.Equal(t, playback.RemovalRoundRobin, s.RemovalPolicy())
	assert.Equal(t, track.TagModeDeny, s.TagFilter().Mode)

	var _ playback.Settings = s
}

func TestSettings_Setters(t *testing.T) {
	tests := []struct {
		name    string
		set     func(s *Settings) error
		check   func(t *testing.T, v Values)
		wantErr bool
	}{
		{
			name:  "quality",
			set:   func(s *Settings) error { return s.SetQuality(track.QualityVeryLow) },
			check: func(t *testing.T, v Values) { assert.Equal(t, track.QualityVeryLow, v.Quality) },
		},
		{
			name:    "unknown quality",
			set:     func(s *Settings) error { return s.SetQuality("ultra") },
			wantErr: true,
		},
		{
			name:  "queue size",
			set:   func(s *Settings) error { return s.SetQueueSize(8) },
			check: func(t *testing.T, v Values) { assert.Equal(t, 8, v.QueueSize) },
		},
		{
			name:    "zero queue size",
			set:     func(s *Settings) error { return s.SetQueueSize(0) },
			wantErr: true,
		},
		{
			name:  "zero history",
			set:   func(s *Settings) error { return s.SetHistorySize(0) },
			check: func(t *testing.T, v Values) { assert.Zero(t, v.HistorySize) },
		},
		{
			name:  "removal policy",
			set:   func(s *Settings) error { return s.SetRemovalPolicy(playback.RemovalSame) },
			check: func(t *testing.T, v Values) { assert.Equal(t, playback.RemovalSame, v.Removal) },
		},
		{
			name:    "unknown removal policy",
			set:     func(s *Settings) error { return s.SetRemovalPolicy("random") },
			wantErr: true,
		},
		{
			name: "tag filter",
			set: func(s *Settings) error {
				return s.SetTagFilter(track.TagFilter{Mode: track.TagModeAllow, Tags: []string{"rock"}})
			},
			check: func(t *testing.T, v Values) { assert.Equal(t, []string{"rock"}, v.TagFilter.Tags) },
		},
		{
			name:    "invalid tag mode",
			set:     func(s *Settings) error { return s.SetTagFilter(track.TagFilter{Mode: "maybe"}) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSettings()
			before := s.Values()

			err := tt.set(s)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, before, s.Values())
				return
			}
			require.NoError(t, err)
			tt.check(t, s.Values())
		})
	}
}

func TestSettings_EnablePlaylist(t *testing.T) {
	s := newSettings()

	s.EnablePlaylist("Metal", true)
	s.EnablePlaylist("Metal", true)
	assert.Equal(t, []string{"Rock", "Jazz", "Metal"}, s.ActivePlaylists())

	s.EnablePlaylist("Rock", false)
	assert.Equal(t, []string{"Jazz", "Metal"}, s.ActivePlaylists())

	s.SetPlaylists(nil)
	assert.Empty(t, s.ActivePlaylists())
}

func TestSettings_ReturnsCopies(t *testing.T) {
	s := newSettings()

	playlists := s.ActivePlaylists()
	playlists[0] = "changed"
	assert.Equal(t, "Rock", s.ActivePlaylists()[0])

	f := s.TagFilter()
	f.Tags[0] = "changed"
	assert.Equal(t, "christmas", s.TagFilter().Tags[0])
}

func TestDislikes(t *testing.T) {
	d := NewDislikes()
	assert.True(t, d.Add("Rock/b.mp3"))
	assert.True(t, d.Add("Rock/a.mp3"))
	assert.False(t, d.Add("Rock/a.mp3"))

	assert.True(t, d.IsDisliked("Rock/a.mp3"))
	assert.False(t, d.IsDisliked("Rock/c.mp3"))
	assert.Equal(t, []string{"Rock/a.mp3", "Rock/b.mp3"}, d.Paths())
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "running", PhaseRunning.String())
	assert.Equal(t, "unknown", Phase(9).String())
}
