package filter

import (
	"context"

	"github.com/osa030/lookahead/internal/domain/track"
)

// DislikedTrackFilter skips tracks the user disliked.
type DislikedTrackFilter struct {
	dislikes DislikeSource
}

// NewDislikedTrackFilter creates a new disliked track filter.
func NewDislikedTrackFilter(dislikes DislikeSource) *DislikedTrackFilter {
	return &DislikedTrackFilter{dislikes: dislikes}
}

func (f *DislikedTrackFilter) Name() string {
	return "disliked_track_filter"
}

func (f *DislikedTrackFilter) Description() string {
	return "Skips tracks the user disliked"
}

func (f *DislikedTrackFilter) ReturnCodes() []string {
	return []string{"disliked_track"}
}

func (f *DislikedTrackFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *DislikedTrackFilter) Check(ctx context.Context, t track.Track) Result {
	if f.dislikes != nil && f.dislikes.IsDisliked(t.Path) {
		return Reject("disliked_track")
	}
	return Accept()
}

func init() {
	Register("disliked_track_filter", func(deps Dependencies) Filter {
		return NewDislikedTrackFilter(deps.Dislikes)
	})
}
