package domain

import (
	"database/sql"
	"time"
)

// WorkflowDefinition is a named, ordered template of approval steps for one
// entity type. A definition with no RangeCriterion is the default for its
// entity type; ranged definitions are selected by routing parameters.
// Definitions are never deleted, only deactivated.
type WorkflowDefinition struct {
	ID             int64
	EntityType     string
	Name           string
	RangeCriterion sql.NullString
	RangeMin       sql.NullFloat64
	RangeMax       sql.NullFloat64
	Active         bool
	Created        time.Time
	Updated        time.Time
	Steps          []StepTemplate
}

// StepTemplate is one stage of a WorkflowDefinition. ApproverRef is a role
// code when ApproverType is ROLE, or a user id when ApproverType is USER.
type StepTemplate struct {
	ID           int64
	WorkflowID   int64
	StepOrder    int
	ApproverType string
	ApproverRef  string
	CanDelegate  bool
}
