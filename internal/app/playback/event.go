package playback

import "github.com/osa030/lookahead/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventQueueChanged     EventType = iota // Queue, current track or history changed
	EventTrackStarted                      // A track became current
	EventFillStateChanged                  // Backfill loop changed state
	EventFillFailed                        // A fill attempt failed and a retry is scheduled
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventQueueChanged:
		return "queue_changed"
	case EventTrackStarted:
		return "track_started"
	case EventFillStateChanged:
		return "fill_state_changed"
	case EventFillFailed:
		return "fill_failed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
// Events are render signals; the full state is read with Controller.Snapshot.
type Event struct {
	Type      EventType
	Track     *track.Track // Track that started (EventTrackStarted)
	Previous  *track.Track // Track that moved into the history (EventTrackStarted), nil if none
	FillState FillState    // Backfill state at the time of the event
	Err       error        // Cause of EventFillFailed
}
