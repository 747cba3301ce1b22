package models

import (
	"time"
)

// StartApprovalRequest is the payload for starting an approval.
// WorkflowID, when non-zero, bypasses routing selection (manual override).
type StartApprovalRequest struct {
	EntityType    string             `json:"entityType"`
	EntityID      string             `json:"entityId"`
	InitiatorID   int64              `json:"initiatorId"`
	WorkflowID    int64              `json:"workflowId,omitempty"`
	Scope         string             `json:"scope,omitempty"`
	RoutingParams map[string]float64 `json:"routingParams,omitempty"`
	Comment       string             `json:"comment,omitempty"`
}

// StartApprovalResponse is returned on successful start.
type StartApprovalResponse struct {
	ID int64 `json:"id"`
}

// ActionRequest is the payload for approve/reject actions.
type ActionRequest struct {
	ActorID int64  `json:"actorId"`
	Comment string `json:"comment,omitempty"`
}

// DelegateRequest is the payload for delegating the current step.
type DelegateRequest struct {
	ActorID      int64  `json:"actorId"`
	DelegateToID int64  `json:"delegateToId"`
	Comment      string `json:"comment,omitempty"`
}

// WithdrawRequest is the payload for withdrawing a pending approval.
type WithdrawRequest struct {
	InitiatorID int64  `json:"initiatorId"`
	Comment     string `json:"comment,omitempty"`
}

// ApprovalApiResponse represents the API response for an approval record.
type ApprovalApiResponse struct {
	ID               int64          `json:"id"`
	EntityType       string         `json:"entityType"`
	EntityID         string         `json:"entityId"`
	WorkflowID       int64          `json:"workflowId"`
	Status           string         `json:"status"`
	CurrentStepOrder int            `json:"currentStepOrder"`
	InitiatorID      int64          `json:"initiatorId"`
	InitiatorName    string         `json:"initiatorName,omitempty"`
	DelegateID       int64          `json:"delegateId,omitempty"`
	Scope            string         `json:"scope,omitempty"`
	Steps            []StepSnapshot `json:"steps"`
	Created          time.Time      `json:"created"`
	Modified         time.Time      `json:"modified"`
}

// CurrentStepResponse describes who must act next on a pending record.
type CurrentStepResponse struct {
	ApproverIDs  []int64 `json:"approverIds"`
	ApproverName string  `json:"approverName,omitempty"`
	StepOrder    int     `json:"stepOrder"`
	CanDelegate  bool    `json:"canDelegate"`
}

// HistoryApiEntry represents one audit entry in API responses.
type HistoryApiEntry struct {
	RecordID     int64     `json:"recordId"`
	StepOrder    int       `json:"stepOrder"`
	Action       string    `json:"action"`
	ActorID      int64     `json:"actorId"`
	ActorName    string    `json:"actorName,omitempty"`
	DelegateToID int64     `json:"delegateToId,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	Sequence     int       `json:"sequence"`
	DateTime     time.Time `json:"dateTime"`
}
