package consumer

// State is a consumer lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRegistering
	StatePolling
	StateDelivering
	StateBackoff
	StateRewindRetry
	StateExhausted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRegistering:
		return "registering"
	case StatePolling:
		return "polling"
	case StateDelivering:
		return "delivering"
	case StateBackoff:
		return "backoff"
	case StateRewindRetry:
		return "rewind_retry"
	case StateExhausted:
		return "exhausted"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Terminal reports whether s ends the loop.
func (s State) Terminal() bool { return s == StateExhausted || s == StateAborted }
