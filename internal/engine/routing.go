package engine

import (
	"fmt"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
)

// rangeContains evaluates a half-open [min, max) check. An invalid max means
// the definition is the open-ended top tier.
func rangeContains(def *domain.WorkflowDefinition, value float64) bool {
	if def.RangeMin.Valid && value < def.RangeMin.Float64 {
		return false
	}
	if def.RangeMax.Valid && value >= def.RangeMax.Float64 {
		return false
	}
	return true
}

// selectWorkflow picks the single applicable definition for the routing
// parameters: the ranged definition whose range contains the named value,
// falling back to the rangeless default. The caller passes only active
// definitions for one entity type.
func selectWorkflow(defs []domain.WorkflowDefinition, params map[string]float64) (*domain.WorkflowDefinition, error) {
	var matches []*domain.WorkflowDefinition
	var fallback *domain.WorkflowDefinition

	for i := range defs {
		def := &defs[i]
		if !def.RangeCriterion.Valid {
			if fallback != nil {
				return nil, fmt.Errorf("%w: multiple default workflows for entity type %s", ErrConfiguration, def.EntityType)
			}
			fallback = def
			continue
		}
		value, ok := params[def.RangeCriterion.String]
		if !ok {
			continue
		}
		if rangeContains(def, value) {
			matches = append(matches, def)
		}
	}

	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: routing parameters match %d workflows", ErrConfiguration, len(matches))
	}
	if len(matches) == 1 {
		return matches[0], nil
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("%w: no matching workflow and no default", ErrConfiguration)
}

// rangesOverlap reports whether two half-open ranges on the same criterion
// intersect. An invalid max is unbounded above, an invalid min unbounded below.
func rangesOverlap(a, b *domain.WorkflowDefinition) bool {
	aBelowB := a.RangeMax.Valid && b.RangeMin.Valid && a.RangeMax.Float64 <= b.RangeMin.Float64
	bBelowA := b.RangeMax.Valid && a.RangeMin.Valid && b.RangeMax.Float64 <= a.RangeMin.Float64
	return !aBelowB && !bBelowA
}
