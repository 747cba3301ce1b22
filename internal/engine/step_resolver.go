package engine

import (
	"fmt"
	"strconv"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/models"
)

// resolveApprovers turns a step snapshot into the set of user ids authorized
// to act on it. For USER steps that is the single stored id; for ROLE steps
// every active holder of the role within the record's scope qualifies, and
// whoever acts first wins.
func (m *ApprovalManager) resolveApprovers(step models.StepSnapshot, scope string) ([]int64, error) {
	switch step.ApproverType {
	case models.ApproverTypeUser:
		id, err := strconv.ParseInt(step.ApproverRef, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d has non-numeric user ref %q", ErrConfiguration, step.StepOrder, step.ApproverRef)
		}
		active, err := m.Directory.UserExistsActive(id)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, fmt.Errorf("%w: step %d approver %d is not an active user", ErrConfiguration, step.StepOrder, id)
		}
		return []int64{id}, nil
	case models.ApproverTypeRole:
		ids, err := m.Directory.ResolveRole(step.ApproverRef, scope)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: role %q has no eligible approvers for step %d", ErrConfiguration, step.ApproverRef, step.StepOrder)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("%w: unknown approver type %q", ErrConfiguration, step.ApproverType)
	}
}

// validateResolvable fails fast when any step of the snapshot cannot resolve
// to at least one approver, so a record is never created pointing at an
// unreachable step.
func (m *ApprovalManager) validateResolvable(steps []models.StepSnapshot, scope string) error {
	for _, step := range steps {
		if _, err := m.resolveApprovers(step, scope); err != nil {
			return err
		}
	}
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
