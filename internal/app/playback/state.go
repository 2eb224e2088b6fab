// Package playback provides the playback controller that owns the queue and the backfill loop.
package playback

// FillState represents the state of the backfill loop.
type FillState int

const (
	FillIdle                        FillState = iota // Queue at target depth, or nothing to do
	FillFilling                                      // A track is being sampled and fetched
	FillWaitingPlaylistsUnavailable                  // No playlist enabled, re-check scheduled
	FillWaitingError                                 // Last fill failed, retry scheduled
)

// String returns the string representation of the state.
func (s FillState) String() string {
	switch s {
	case FillIdle:
		return "idle"
	case FillFilling:
		return "filling"
	case FillWaitingPlaylistsUnavailable:
		return "waiting_playlists_unavailable"
	case FillWaitingError:
		return "waiting_error"
	default:
		return "unknown"
	}
}
