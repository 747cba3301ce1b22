package engine

import (
	"context"
	"strconv"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/models"
)

// SingleApproverDefinition expresses the legacy single-field boolean
// approve/reject as a one-step USER workflow, so old call sites run through
// the same transition engine instead of a parallel code path. Register the
// result as the default definition for the entity type.
func SingleApproverDefinition(entityType, name string, approverID int64) *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		EntityType: entityType,
		Name:       name,
		Steps: []domain.StepTemplate{
			{
				StepOrder:    1,
				ApproverType: models.ApproverTypeUser,
				ApproverRef:  strconv.FormatInt(approverID, 10),
				CanDelegate:  false,
			},
		},
	}
}

// ResolveBoolean maps the legacy approved/rejected flag onto the engine's
// approve and reject operations.
func (m *ApprovalManager) ResolveBoolean(ctx context.Context, recordID, actorID int64, approved bool, comment string) (*domain.ApprovalRecord, error) {
	if approved {
		return m.ApproveStep(ctx, recordID, actorID, comment)
	}
	return m.RejectStep(ctx, recordID, actorID, comment)
}
