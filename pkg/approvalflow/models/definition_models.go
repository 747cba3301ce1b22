package models

import "time"

// StepTemplateRequest is one step in a definition create payload.
type StepTemplateRequest struct {
	StepOrder    int    `json:"stepOrder"`
	ApproverType string `json:"approverType"`
	ApproverRef  string `json:"approverRef"`
	CanDelegate  bool   `json:"canDelegate"`
}

// CreateDefinitionRequest is the payload for registering a workflow
// definition. RangeCriterion empty means this is the default (rangeless)
// definition for the entity type. RangeMax nil means the range is the
// open-ended top tier.
type CreateDefinitionRequest struct {
	EntityType     string                `json:"entityType"`
	Name           string                `json:"name"`
	RangeCriterion string                `json:"rangeCriterion,omitempty"`
	RangeMin       *float64              `json:"rangeMin,omitempty"`
	RangeMax       *float64              `json:"rangeMax,omitempty"`
	Steps          []StepTemplateRequest `json:"steps"`
}

// CreateDefinitionResponse is returned on successful creation.
type CreateDefinitionResponse struct {
	ID int64 `json:"id"`
}

// DefinitionApiResponse represents a workflow definition in API responses.
type DefinitionApiResponse struct {
	ID             int64                 `json:"id"`
	EntityType     string                `json:"entityType"`
	Name           string                `json:"name"`
	RangeCriterion string                `json:"rangeCriterion,omitempty"`
	RangeMin       *float64              `json:"rangeMin,omitempty"`
	RangeMax       *float64              `json:"rangeMax,omitempty"`
	Active         bool                  `json:"active"`
	Created        time.Time             `json:"created"`
	Updated        time.Time             `json:"updated"`
	Steps          []StepTemplateRequest `json:"steps"`
}
