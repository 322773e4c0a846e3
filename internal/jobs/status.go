package jobs

// State is the lifecycle state reported by the media service for a job or
// for one of its outputs.
type State string

const (
	StateQueued     State = "Queued"
	StateScheduled  State = "Scheduled"
	StateProcessing State = "Processing"
	StateCanceling  State = "Canceling"
	StateFinished   State = "Finished"
	StateError      State = "Error"
	StateCanceled   State = "Canceled"
)

// IsTerminal reports whether no further transitions happen after s.
func (s State) IsTerminal() bool {
	switch s {
	case StateFinished, StateError, StateCanceled:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	if s == "" {
		return "Unknown"
	}
	return string(s)
}
