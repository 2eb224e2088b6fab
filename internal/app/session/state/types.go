// Package state provides the live session state: user-adjustable settings and the dislike set.
package state

// Phase represents the session lifecycle phase.
type Phase int

const (
	PhaseLoading    Phase = iota // Loading the catalog
	PhaseRunning                 // Backfill loop running
	PhaseTerminated              // Session has ended
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseRunning:
		return "running"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
