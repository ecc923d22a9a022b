package workflow

// State represents a lifecycle state of a purchase request or order.
type State string

// Purchase request lifecycle states.
const (
	StatePending  State = "PENDING"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
)

// Purchase order lifecycle states.
const (
	StateDraft        State = "DRAFT"
	StateSent         State = "SENT"
	StateAcknowledged State = "ACKNOWLEDGED"
	StateFulfilled    State = "FULFILLED"
	StateCancelled    State = "CANCELLED"
)

var validStates = map[State]bool{
	StatePending:      true,
	StateApproved:     true,
	StateRejected:     true,
	StateDraft:        true,
	StateSent:         true,
	StateAcknowledged: true,
	StateFulfilled:    true,
	StateCancelled:    true,
}

var terminalStates = map[State]bool{
	StateApproved:  true,
	StateRejected:  true,
	StateFulfilled: true,
	StateCancelled: true,
}

// IsTerminal returns true if no further transitions are allowed from s.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if s is a known lifecycle state.
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}
