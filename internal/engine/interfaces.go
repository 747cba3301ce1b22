package engine

import (
	"context"

	"github.com/nexcrm/approvalflow/internal/repository"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
)

// RecordRepo defines the interface for approval record persistence, matching
// repository.ApprovalRecordRepository.
type RecordRepo interface {
	Save(rec *domain.ApprovalRecord) (int64, error)
	FindByID(id int64) (*domain.ApprovalRecord, error)
	FindPendingByEntity(entityType, entityID string) (*domain.ApprovalRecord, error)
	FindByEntity(entityType, entityID string) (*domain.ApprovalRecord, error)
	ApplyTransition(u repository.TransitionUpdate) error
}

// HistoryRepo defines the interface for audit trail reads.
type HistoryRepo interface {
	FindAllByRecordID(recordID int64) ([]domain.HistoryEntry, error)
}

// DefinitionRepo defines the interface for workflow definition persistence.
type DefinitionRepo interface {
	Save(def *domain.WorkflowDefinition) (int64, error)
	FindByID(id int64) (*domain.WorkflowDefinition, error)
	FindActiveByEntityType(entityType string) ([]domain.WorkflowDefinition, error)
	FindAll() ([]domain.WorkflowDefinition, error)
	Deactivate(id int64) error
}

// Directory resolves roles to eligible users. Backed by the users table by
// default (internal/directory), replaceable with an external IdP.
type Directory interface {
	ResolveRole(roleCode, scope string) ([]int64, error)
	UserExistsActive(id int64) (bool, error)
}

// EntityCallback is invoked synchronously after a record reaches a terminal
// APPROVED/REJECTED status so the owning entity can progress its own
// lifecycle. The engine only reports record-level status.
type EntityCallback func(ctx context.Context, rec *domain.ApprovalRecord) error
