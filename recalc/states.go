package recalc

// State is the phase of the pass currently running on a session
type State int32

const (
	StateIdle State = iota
	StateValidating
	StateDispatching
	StateAwaiting
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateDispatching:
		return "dispatching"
	case StateAwaiting:
		return "awaiting"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Status is the outcome of one computation within a pass
type Status string

const (
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)
