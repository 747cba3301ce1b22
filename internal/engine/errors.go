package engine

import "errors"

// Error taxonomy of the approval engine. All failures are synchronous and
// recoverable by the caller; match with errors.Is.
var (
	// ErrConfiguration covers an invalid or ambiguous workflow definition,
	// and a ROLE step that resolves to zero eligible approvers. Surfaced
	// when registering a definition or at start time, never mid-flight.
	ErrConfiguration = errors.New("workflow configuration error")

	// ErrDuplicateApproval means a non-terminal record already exists for
	// the entity.
	ErrDuplicateApproval = errors.New("approval already in progress for entity")

	// ErrNotFound means no such record, workflow or step.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied means the actor is not the resolved approver of
	// the current step, or not the initiator for a withdrawal.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidTransition covers any action against a terminal record,
	// delegation on a non-delegable step, and optimistic-lock conflicts
	// between concurrent actions on the same record.
	ErrInvalidTransition = errors.New("invalid transition")
)
