package workflow

// Trigger represents an event that can cause a state transition.
type Trigger string

const (
	// Purchase request triggers.
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"

	// Purchase order triggers.
	TriggerSend        Trigger = "SEND"
	TriggerAcknowledge Trigger = "ACKNOWLEDGE"
	TriggerFulfill     Trigger = "FULFILL"
	TriggerCancel      Trigger = "CANCEL"
)

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	return string(t)
}
