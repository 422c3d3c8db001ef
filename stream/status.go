package stream

// Status 流生命周期状态
type Status int32

const (
	StatusActive Status = iota
	StatusPaused
	StatusClosed
	StatusAborted
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusClosed:
		return "closed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is CLOSED or ABORTED.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusAborted
}

// CanTransition reports whether moving from s to next is allowed.
// Suspend and resume are idempotent; terminal states never change.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StatusActive, StatusPaused, StatusClosed, StatusAborted:
		return true
	}
	return false
}
