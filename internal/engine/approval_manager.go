package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nexcrm/approvalflow/internal/repository"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/core"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/models"
)

// ApprovalManager is the transition engine: it owns every mutation of an
// approval record and serializes concurrent actions against the same record
// through the repository's optimistic transition guard.
type ApprovalManager struct {
	RecordRepo     RecordRepo
	HistoryRepo    HistoryRepo
	DefinitionRepo DefinitionRepo
	Directory      Directory
	Callbacks      *map[string]EntityCallback
	clock          core.Clock
}

func NewApprovalManager(recordRepo RecordRepo, historyRepo HistoryRepo, definitionRepo DefinitionRepo,
	dir Directory, callbacks *map[string]EntityCallback, clock core.Clock) *ApprovalManager {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &ApprovalManager{
		RecordRepo:     recordRepo,
		HistoryRepo:    historyRepo,
		DefinitionRepo: definitionRepo,
		Directory:      dir,
		Callbacks:      callbacks,
		clock:          clock,
	}
}

// StartApproval binds a workflow definition to the entity and creates the
// record in PENDING at step 1. Start itself appends no history action; it is
// logged as metadata only.
func (m *ApprovalManager) StartApproval(ctx context.Context, req models.StartApprovalRequest) (*domain.ApprovalRecord, error) {
	if req.EntityType == "" || req.EntityID == "" || req.InitiatorID == 0 {
		return nil, fmt.Errorf("%w: entityType, entityId and initiatorId are required", ErrConfiguration)
	}

	// Early read for a friendly error message; the partial unique index on
	// PENDING records is what actually blocks a concurrent double start.
	existing, err := m.RecordRepo.FindPendingByEntity(req.EntityType, req.EntityID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: record %d is still %s", ErrDuplicateApproval, existing.ID, existing.Status)
	}

	def, err := m.resolveDefinition(req)
	if err != nil {
		return nil, err
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("%w: workflow %d has no steps", ErrConfiguration, def.ID)
	}

	snaps, err := models.SnapshotSteps(def.Steps)
	if err != nil {
		return nil, err
	}
	if err := m.validateResolvable(snaps, req.Scope); err != nil {
		return nil, err
	}
	stepsJSON, err := models.EncodeSteps(snaps)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now().UTC()
	rec := &domain.ApprovalRecord{
		EntityType:       req.EntityType,
		EntityID:         req.EntityID,
		WorkflowID:       def.ID,
		Status:           models.StatusPending,
		CurrentStepOrder: 1,
		InitiatorID:      req.InitiatorID,
		Scope:            req.Scope,
		StepsJSON:        stepsJSON,
		Created:          now,
		Modified:         now,
	}
	if _, err := m.RecordRepo.Save(rec); err != nil {
		if errors.Is(err, repository.ErrDuplicatePending) {
			return nil, fmt.Errorf("%w: concurrent start for %s %s", ErrDuplicateApproval, req.EntityType, req.EntityID)
		}
		return nil, err
	}

	slog.InfoContext(ctx, "Approval started",
		"record_id", rec.ID,
		"entity_type", rec.EntityType,
		"entity_id", rec.EntityID,
		"workflow_id", def.ID,
		"initiator_id", req.InitiatorID,
		"steps", len(def.Steps),
		"comment", req.Comment)
	return rec, nil
}

// resolveDefinition honors an explicit workflow override, otherwise runs
// routing selection over the active definitions for the entity type.
func (m *ApprovalManager) resolveDefinition(req models.StartApprovalRequest) (*domain.WorkflowDefinition, error) {
	if req.WorkflowID != 0 {
		def, err := m.DefinitionRepo.FindByID(req.WorkflowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: workflow %d", ErrNotFound, req.WorkflowID)
			}
			return nil, err
		}
		if !def.Active {
			return nil, fmt.Errorf("%w: workflow %d is inactive", ErrConfiguration, def.ID)
		}
		if def.EntityType != req.EntityType {
			return nil, fmt.Errorf("%w: workflow %d is registered for entity type %s", ErrConfiguration, def.ID, def.EntityType)
		}
		return def, nil
	}

	defs, err := m.DefinitionRepo.FindActiveByEntityType(req.EntityType)
	if err != nil {
		return nil, err
	}
	return selectWorkflow(defs, req.RoutingParams)
}

// ApproveStep records an approval by the current resolved approver. On the
// final step the record becomes APPROVED and the entity callback fires;
// otherwise the record advances one step and stays PENDING.
func (m *ApprovalManager) ApproveStep(ctx context.Context, recordID, approverID int64, comment string) (*domain.ApprovalRecord, error) {
	rec, steps, step, err := m.loadPending(recordID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(rec, step, approverID); err != nil {
		return nil, err
	}

	last := step.StepOrder == len(steps)
	newStatus := models.StatusPending
	newStepOrder := rec.CurrentStepOrder + 1
	if last {
		newStatus = models.StatusApproved
		newStepOrder = rec.CurrentStepOrder
	}

	err = m.applyAndReload(ctx, rec, repository.TransitionUpdate{
		RecordID:        rec.ID,
		ExpectStepOrder: rec.CurrentStepOrder,
		NewStatus:       newStatus,
		NewStepOrder:    newStepOrder,
		DelegateID:      sql.NullInt64{},
		Entry: &domain.HistoryEntry{
			RecordID:  rec.ID,
			StepOrder: rec.CurrentStepOrder,
			Action:    models.ActionApprove,
			ActorID:   approverID,
			Comment:   comment,
			DateTime:  m.clock.Now().UTC(),
		},
	}, newStatus, newStepOrder)
	if err != nil {
		return nil, err
	}
	return rec, m.fireCallback(ctx, rec)
}

// RejectStep is a veto: a rejection at any step terminates the whole chain.
func (m *ApprovalManager) RejectStep(ctx context.Context, recordID, approverID int64, comment string) (*domain.ApprovalRecord, error) {
	rec, _, step, err := m.loadPending(recordID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(rec, step, approverID); err != nil {
		return nil, err
	}

	err = m.applyAndReload(ctx, rec, repository.TransitionUpdate{
		RecordID:        rec.ID,
		ExpectStepOrder: rec.CurrentStepOrder,
		NewStatus:       models.StatusRejected,
		NewStepOrder:    rec.CurrentStepOrder,
		DelegateID:      sql.NullInt64{},
		Entry: &domain.HistoryEntry{
			RecordID:  rec.ID,
			StepOrder: rec.CurrentStepOrder,
			Action:    models.ActionReject,
			ActorID:   approverID,
			Comment:   comment,
			DateTime:  m.clock.Now().UTC(),
		},
	}, models.StatusRejected, rec.CurrentStepOrder)
	if err != nil {
		return nil, err
	}
	return rec, m.fireCallback(ctx, rec)
}

// DelegateStep reassigns the acting approver of the current step for this one
// record instance. The workflow definition is never mutated. Status and step
// order are unchanged.
func (m *ApprovalManager) DelegateStep(ctx context.Context, recordID, approverID, delegateToID int64, comment string) (*domain.ApprovalRecord, error) {
	rec, _, step, err := m.loadPending(recordID)
	if err != nil {
		return nil, err
	}
	if !step.CanDelegate {
		return nil, fmt.Errorf("%w: step %d does not allow delegation", ErrInvalidTransition, step.StepOrder)
	}
	if err := m.authorize(rec, step, approverID); err != nil {
		return nil, err
	}
	active, err := m.Directory.UserExistsActive(delegateToID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, fmt.Errorf("%w: delegate user %d", ErrNotFound, delegateToID)
	}

	delegate := sql.NullInt64{Int64: delegateToID, Valid: true}
	err = m.applyAndReload(ctx, rec, repository.TransitionUpdate{
		RecordID:        rec.ID,
		ExpectStepOrder: rec.CurrentStepOrder,
		NewStatus:       models.StatusPending,
		NewStepOrder:    rec.CurrentStepOrder,
		DelegateID:      delegate,
		Entry: &domain.HistoryEntry{
			RecordID:     rec.ID,
			StepOrder:    rec.CurrentStepOrder,
			Action:       models.ActionDelegate,
			ActorID:      approverID,
			DelegateToID: delegate,
			Comment:      comment,
			DateTime:     m.clock.Now().UTC(),
		},
	}, models.StatusPending, rec.CurrentStepOrder)
	if err != nil {
		return nil, err
	}
	rec.DelegateID = delegate
	return rec, nil
}

// WithdrawApproval lets the initiator cancel their own pending approval.
func (m *ApprovalManager) WithdrawApproval(ctx context.Context, recordID, initiatorID int64, comment string) (*domain.ApprovalRecord, error) {
	rec, _, _, err := m.loadPending(recordID)
	if err != nil {
		return nil, err
	}
	if rec.InitiatorID != initiatorID {
		return nil, fmt.Errorf("%w: only the initiator may withdraw", ErrPermissionDenied)
	}

	err = m.applyAndReload(ctx, rec, repository.TransitionUpdate{
		RecordID:        rec.ID,
		ExpectStepOrder: rec.CurrentStepOrder,
		NewStatus:       models.StatusWithdrawn,
		NewStepOrder:    rec.CurrentStepOrder,
		DelegateID:      sql.NullInt64{},
		Entry: &domain.HistoryEntry{
			RecordID:  rec.ID,
			StepOrder: rec.CurrentStepOrder,
			Action:    models.ActionWithdraw,
			ActorID:   initiatorID,
			Comment:   comment,
			DateTime:  m.clock.Now().UTC(),
		},
	}, models.StatusWithdrawn, rec.CurrentStepOrder)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetApprovalRecord returns the most recent record for the entity, or nil
// when the entity never entered approval.
func (m *ApprovalManager) GetApprovalRecord(entityType, entityID string) (*domain.ApprovalRecord, error) {
	rec, err := m.RecordRepo.FindByEntity(entityType, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// CurrentStep describes who must act next on the record, or nil when the
// record is terminal.
func (m *ApprovalManager) CurrentStep(recordID int64) (*models.CurrentStepResponse, error) {
	rec, err := m.findRecord(recordID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalStatus(rec.Status) {
		return nil, nil
	}
	steps, err := models.DecodeSteps(rec.StepsJSON)
	if err != nil {
		return nil, err
	}
	step, err := stepByOrder(steps, rec.CurrentStepOrder)
	if err != nil {
		return nil, err
	}
	var approvers []int64
	if rec.DelegateID.Valid {
		approvers = []int64{rec.DelegateID.Int64}
	} else {
		approvers, err = m.resolveApprovers(step, rec.Scope)
		if err != nil {
			// A role emptied after start is not a query failure; report the
			// step with nobody eligible, consistent with authorize.
			if !errors.Is(err, ErrConfiguration) {
				return nil, err
			}
			approvers = []int64{}
		}
	}
	return &models.CurrentStepResponse{
		ApproverIDs: approvers,
		StepOrder:   step.StepOrder,
		CanDelegate: step.CanDelegate,
	}, nil
}

// History returns the full audit trail for the record ordered by sequence.
func (m *ApprovalManager) History(recordID int64) ([]domain.HistoryEntry, error) {
	return m.HistoryRepo.FindAllByRecordID(recordID)
}

func (m *ApprovalManager) findRecord(recordID int64) (*domain.ApprovalRecord, error) {
	rec, err := m.RecordRepo.FindByID(recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: approval record %d", ErrNotFound, recordID)
		}
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: approval record %d", ErrNotFound, recordID)
	}
	return rec, nil
}

// loadPending fetches the record and its current step snapshot, rejecting
// terminal records. This is the safety net that makes retried or duplicate
// client calls fail cleanly instead of re-applying.
func (m *ApprovalManager) loadPending(recordID int64) (*domain.ApprovalRecord, []models.StepSnapshot, models.StepSnapshot, error) {
	var none models.StepSnapshot
	rec, err := m.findRecord(recordID)
	if err != nil {
		return nil, nil, none, err
	}
	if models.IsTerminalStatus(rec.Status) {
		return nil, nil, none, fmt.Errorf("%w: record %d is %s", ErrInvalidTransition, rec.ID, rec.Status)
	}
	steps, err := models.DecodeSteps(rec.StepsJSON)
	if err != nil {
		return nil, nil, none, err
	}
	step, err := stepByOrder(steps, rec.CurrentStepOrder)
	if err != nil {
		return nil, nil, none, err
	}
	return rec, steps, step, nil
}

func stepByOrder(steps []models.StepSnapshot, order int) (models.StepSnapshot, error) {
	for _, s := range steps {
		if s.StepOrder == order {
			return s, nil
		}
	}
	return models.StepSnapshot{}, fmt.Errorf("%w: step %d", ErrNotFound, order)
}

// authorize checks the actor is the current resolved approver: the delegate
// when one is set for the record, otherwise any eligible holder of the step.
func (m *ApprovalManager) authorize(rec *domain.ApprovalRecord, step models.StepSnapshot, actorID int64) error {
	if rec.DelegateID.Valid {
		if rec.DelegateID.Int64 != actorID {
			return fmt.Errorf("%w: step %d is delegated to user %d", ErrPermissionDenied, step.StepOrder, rec.DelegateID.Int64)
		}
		return nil
	}
	ids, err := m.resolveApprovers(step, rec.Scope)
	if err != nil {
		// A role emptied after start leaves nobody authorized; that is a
		// permission failure at action time, not a configuration one.
		if errors.Is(err, ErrConfiguration) {
			return fmt.Errorf("%w: no eligible approver for step %d", ErrPermissionDenied, step.StepOrder)
		}
		return err
	}
	if !containsID(ids, actorID) {
		return fmt.Errorf("%w: user %d is not an approver of step %d", ErrPermissionDenied, actorID, step.StepOrder)
	}
	return nil
}

// applyAndReload commits the transition and mutates rec to the new state.
// A conflicting concurrent action surfaces as ErrInvalidTransition.
func (m *ApprovalManager) applyAndReload(ctx context.Context, rec *domain.ApprovalRecord, u repository.TransitionUpdate, newStatus string, newStepOrder int) error {
	if err := m.RecordRepo.ApplyTransition(u); err != nil {
		if errors.Is(err, repository.ErrTransitionConflict) {
			return fmt.Errorf("%w: record %d changed concurrently", ErrInvalidTransition, rec.ID)
		}
		return err
	}
	rec.Status = newStatus
	rec.CurrentStepOrder = newStepOrder
	rec.DelegateID = u.DelegateID
	rec.Modified = m.clock.Now().UTC()
	slog.InfoContext(ctx, "Approval transition applied",
		"record_id", rec.ID,
		"action", u.Entry.Action,
		"actor_id", u.Entry.ActorID,
		"status", newStatus,
		"step_order", newStepOrder)
	return nil
}

// fireCallback informs the owning entity synchronously once the record is
// terminal via APPROVED/REJECTED. The transition is already committed; a
// callback failure is reported to the caller but never rolls it back.
func (m *ApprovalManager) fireCallback(ctx context.Context, rec *domain.ApprovalRecord) error {
	if rec.Status != models.StatusApproved && rec.Status != models.StatusRejected {
		return nil
	}
	if m.Callbacks == nil {
		return nil
	}
	cb, ok := (*m.Callbacks)[rec.EntityType]
	if !ok {
		return nil
	}
	if err := cb(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "Entity callback failed", "record_id", rec.ID, "entity_type", rec.EntityType, "error", err)
		return err
	}
	return nil
}
