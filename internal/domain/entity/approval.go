package entity

import "time"

// Approval records one decision at one level of a purchase request.
// At most one row exists per (request, level); only the original
// approver may replace their own decision.
type Approval struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	Approver  string    `json:"approver"`
	Level     int       `json:"level"`
	Decision  string    `json:"decision"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsRejection reports whether this decision vetoes the request.
func (a *Approval) IsRejection() bool {
	return a.Decision == DecisionRejected
}

// Approver identifies an actor and the approval capabilities they hold.
// Capabilities are independent booleans: holding level 2 does not imply
// level 1.
type Approver struct {
	UserID           string `json:"user_id"`
	CanApproveLevel1 bool   `json:"can_approve_level_1"`
	CanApproveLevel2 bool   `json:"can_approve_level_2"`
}

// CanApprove reports whether the approver holds the capability for level.
func (a Approver) CanApprove(level int) bool {
	switch level {
	case 1:
		return a.CanApproveLevel1
	case 2:
		return a.CanApproveLevel2
	default:
		return false
	}
}
