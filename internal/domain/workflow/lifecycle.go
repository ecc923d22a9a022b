package workflow

// NewRequestMachine returns a state machine for the purchase request
// lifecycle, positioned at initial. PENDING is the only non-terminal
// state: a request either gathers all required approvals or is vetoed.
func NewRequestMachine(initial State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)

	return builder.Build(initial)
}

// NewOrderMachine returns a state machine for the purchase order
// lifecycle, positioned at initial. Orders start in DRAFT and may be
// cancelled at any point before fulfilment.
func NewOrderMachine(initial State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StateDraft).
		Permit(TriggerSend, StateSent).
		Permit(TriggerCancel, StateCancelled)

	builder.Configure(StateSent).
		Permit(TriggerAcknowledge, StateAcknowledged).
		Permit(TriggerCancel, StateCancelled)

	builder.Configure(StateAcknowledged).
		Permit(TriggerFulfill, StateFulfilled).
		Permit(TriggerCancel, StateCancelled)

	return builder.Build(initial)
}
