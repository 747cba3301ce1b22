package models

// Approval record statuses. PENDING is the only non-terminal status.
const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusWithdrawn = "WITHDRAWN"
)

// History actions.
const (
	ActionApprove  = "APPROVE"
	ActionReject   = "REJECT"
	ActionDelegate = "DELEGATE"
	ActionWithdraw = "WITHDRAW"
)

// Step approver types.
const (
	ApproverTypeRole = "ROLE"
	ApproverTypeUser = "USER"
)

func IsTerminalStatus(status string) bool {
	return status == StatusApproved || status == StatusRejected || status == StatusWithdrawn
}
