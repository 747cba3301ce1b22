package domain

import (
	"database/sql"
	"time"
)

// ApprovalRecord is one in-flight or completed approval process bound to a
// single business entity, identified by (EntityType, EntityID).
// StepsJSON holds the snapshot of the workflow's step templates taken at
// start time, so later catalog edits never affect a running record.
type ApprovalRecord struct {
	ID               int64
	EntityType       string
	EntityID         string
	WorkflowID       int64
	Status           string
	CurrentStepOrder int
	InitiatorID      int64
	DelegateID       sql.NullInt64
	Scope            string
	StepsJSON        string
	Created          time.Time
	Modified         time.Time
}
