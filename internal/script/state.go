package script

// State is the lifecycle of one script run. A run starts idle, moves to
// running and ends in exactly one terminal state.
type State int32

// Run states.
const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateTimedOut
	StateThrew
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed-out"
	case StateThrew:
		return "threw"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateThrew
}
