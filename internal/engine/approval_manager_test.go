package engine

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nexcrm/approvalflow/internal/repository"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/models"
)

// Mocks implement the engine interfaces with overridable Func fields.

type MockRecordRepo struct {
	SaveFunc                func(rec *domain.ApprovalRecord) (int64, error)
	FindByIDFunc            func(id int64) (*domain.ApprovalRecord, error)
	FindPendingByEntityFunc func(entityType, entityID string) (*domain.ApprovalRecord, error)
	FindByEntityFunc        func(entityType, entityID string) (*domain.ApprovalRecord, error)
	ApplyTransitionFunc     func(u repository.TransitionUpdate) error
}

func (m *MockRecordRepo) Save(rec *domain.ApprovalRecord) (int64, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(rec)
	}
	return 1, nil
}
func (m *MockRecordRepo) FindByID(id int64) (*domain.ApprovalRecord, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(id)
	}
	return nil, sql.ErrNoRows
}
func (m *MockRecordRepo) FindPendingByEntity(entityType, entityID string) (*domain.ApprovalRecord, error) {
	if m.FindPendingByEntityFunc != nil {
		return m.FindPendingByEntityFunc(entityType, entityID)
	}
	return nil, nil
}
func (m *MockRecordRepo) FindByEntity(entityType, entityID string) (*domain.ApprovalRecord, error) {
	if m.FindByEntityFunc != nil {
		return m.FindByEntityFunc(entityType, entityID)
	}
	return nil, sql.ErrNoRows
}
func (m *MockRecordRepo) ApplyTransition(u repository.TransitionUpdate) error {
	if m.ApplyTransitionFunc != nil {
		return m.ApplyTransitionFunc(u)
	}
	return nil
}

type MockHistoryRepo struct {
	FindAllByRecordIDFunc func(recordID int64) ([]domain.HistoryEntry, error)
}

func (m *MockHistoryRepo) FindAllByRecordID(recordID int64) ([]domain.HistoryEntry, error) {
	if m.FindAllByRecordIDFunc != nil {
		return m.FindAllByRecordIDFunc(recordID)
	}
	return nil, nil
}

type MockDefinitionRepo struct {
	SaveFunc                   func(def *domain.WorkflowDefinition) (int64, error)
	FindByIDFunc               func(id int64) (*domain.WorkflowDefinition, error)
	FindActiveByEntityTypeFunc func(entityType string) ([]domain.WorkflowDefinition, error)
	FindAllFunc                func() ([]domain.WorkflowDefinition, error)
	DeactivateFunc             func(id int64) error
}

func (m *MockDefinitionRepo) Save(def *domain.WorkflowDefinition) (int64, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(def)
	}
	return 1, nil
}
func (m *MockDefinitionRepo) FindByID(id int64) (*domain.WorkflowDefinition, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(id)
	}
	return nil, sql.ErrNoRows
}
func (m *MockDefinitionRepo) FindActiveByEntityType(entityType string) ([]domain.WorkflowDefinition, error) {
	if m.FindActiveByEntityTypeFunc != nil {
		return m.FindActiveByEntityTypeFunc(entityType)
	}
	return nil, nil
}
func (m *MockDefinitionRepo) FindAll() ([]domain.WorkflowDefinition, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc()
	}
	return nil, nil
}
func (m *MockDefinitionRepo) Deactivate(id int64) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(id)
	}
	return nil
}

type MockDirectory struct {
	ResolveRoleFunc      func(roleCode, scope string) ([]int64, error)
	UserExistsActiveFunc func(id int64) (bool, error)
}

func (m *MockDirectory) ResolveRole(roleCode, scope string) ([]int64, error) {
	if m.ResolveRoleFunc != nil {
		return m.ResolveRoleFunc(roleCode, scope)
	}
	return nil, nil
}
func (m *MockDirectory) UserExistsActive(id int64) (bool, error) {
	if m.UserExistsActiveFunc != nil {
		return m.UserExistsActiveFunc(id)
	}
	return true, nil
}

// recordStore backs a MockRecordRepo with single-record state so multi-action
// sequences see the committed result of each transition, including the
// optimistic guard the real repository enforces.
type recordStore struct {
	rec     *domain.ApprovalRecord
	history []domain.HistoryEntry
}

func (s *recordStore) repo() *MockRecordRepo {
	return &MockRecordRepo{
		SaveFunc: func(rec *domain.ApprovalRecord) (int64, error) {
			rec.ID = 1
			cp := *rec
			s.rec = &cp
			return 1, nil
		},
		FindByIDFunc: func(id int64) (*domain.ApprovalRecord, error) {
			if s.rec == nil || s.rec.ID != id {
				return nil, sql.ErrNoRows
			}
			cp := *s.rec
			return &cp, nil
		},
		FindByEntityFunc: func(entityType, entityID string) (*domain.ApprovalRecord, error) {
			if s.rec == nil || s.rec.EntityType != entityType || s.rec.EntityID != entityID {
				return nil, sql.ErrNoRows
			}
			cp := *s.rec
			return &cp, nil
		},
		FindPendingByEntityFunc: func(entityType, entityID string) (*domain.ApprovalRecord, error) {
			if s.rec != nil && s.rec.EntityType == entityType && s.rec.EntityID == entityID && s.rec.Status == models.StatusPending {
				cp := *s.rec
				return &cp, nil
			}
			return nil, nil
		},
		ApplyTransitionFunc: func(u repository.TransitionUpdate) error {
			if s.rec == nil || s.rec.ID != u.RecordID || s.rec.Status != models.StatusPending || s.rec.CurrentStepOrder != u.ExpectStepOrder {
				return repository.ErrTransitionConflict
			}
			s.rec.Status = u.NewStatus
			s.rec.CurrentStepOrder = u.NewStepOrder
			s.rec.DelegateID = u.DelegateID
			e := *u.Entry
			e.Sequence = len(s.history) + 1
			s.history = append(s.history, e)
			return nil
		},
	}
}

// threeStepDirectory resolves FIN_CLERK to users 10 and 11 and FIN_MANAGER to
// user 20. All user ids are active.
func threeStepDirectory() *MockDirectory {
	return &MockDirectory{
		ResolveRoleFunc: func(roleCode, scope string) ([]int64, error) {
			switch roleCode {
			case "FIN_CLERK":
				return []int64{10, 11}, nil
			case "FIN_MANAGER":
				return []int64{20}, nil
			}
			return nil, nil
		},
	}
}

func threeStepSnapshot() []models.StepSnapshot {
	return []models.StepSnapshot{
		{StepOrder: 1, ApproverType: models.ApproverTypeRole, ApproverRef: "FIN_CLERK"},
		{StepOrder: 2, ApproverType: models.ApproverTypeRole, ApproverRef: "FIN_MANAGER", CanDelegate: true},
		{StepOrder: 3, ApproverType: models.ApproverTypeUser, ApproverRef: "30"},
	}
}

// seedRecord puts a PENDING record at step 1 into the store, bypassing
// StartApproval, so transition tests control their own fixture.
func seedRecord(t *testing.T, s *recordStore, steps []models.StepSnapshot) {
	t.Helper()
	stepsJSON, err := models.EncodeSteps(steps)
	if err != nil {
		t.Fatalf("EncodeSteps: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.rec = &domain.ApprovalRecord{
		ID:               1,
		EntityType:       "INVOICE",
		EntityID:         "INV-100",
		WorkflowID:       7,
		Status:           models.StatusPending,
		CurrentStepOrder: 1,
		InitiatorID:      5,
		StepsJSON:        stepsJSON,
		Created:          now,
		Modified:         now,
	}
}

func invoiceDefinitions() []domain.WorkflowDefinition {
	return []domain.WorkflowDefinition{
		{
			ID: 1, EntityType: "INVOICE", Name: "Small invoices", Active: true,
			RangeCriterion: sql.NullString{String: "amount", Valid: true},
			RangeMin:       sql.NullFloat64{Float64: 0, Valid: true},
			RangeMax:       sql.NullFloat64{Float64: 1000, Valid: true},
			Steps: []domain.StepTemplate{
				{StepOrder: 1, ApproverType: models.ApproverTypeRole, ApproverRef: "FIN_CLERK"},
			},
		},
		{
			ID: 2, EntityType: "INVOICE", Name: "Large invoices", Active: true,
			RangeCriterion: sql.NullString{String: "amount", Valid: true},
			RangeMin:       sql.NullFloat64{Float64: 1000, Valid: true},
			Steps: []domain.StepTemplate{
				{StepOrder: 1, ApproverType: models.ApproverTypeRole, ApproverRef: "FIN_CLERK"},
				{StepOrder: 2, ApproverType: models.ApproverTypeRole, ApproverRef: "FIN_MANAGER", CanDelegate: true},
			},
		},
		{
			ID: 3, EntityType: "INVOICE", Name: "Default", Active: true,
			Steps: []domain.StepTemplate{
				{StepOrder: 1, ApproverType: models.ApproverTypeRole, ApproverRef: "FIN_CLERK"},
			},
		},
	}
}

func TestStartApproval_SelectsRangedWorkflow(t *testing.T) {
	store := &recordStore{}
	defRepo := &MockDefinitionRepo{
		FindActiveByEntityTypeFunc: func(entityType string) ([]domain.WorkflowDefinition, error) {
			return invoiceDefinitions(), nil
		},
	}
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, defRepo, threeStepDirectory(), nil, nil)

	rec, err := m.StartApproval(context.Background(), models.StartApprovalRequest{
		EntityType:    "INVOICE",
		EntityID:      "INV-1",
		InitiatorID:   5,
		RoutingParams: map[string]float64{"amount": 2500},
	})
	if err != nil {
		t.Fatalf("StartApproval returned error: %v", err)
	}
	if rec.WorkflowID != 2 {
		t.Errorf("Expected workflow 2 for amount 2500, got %d", rec.WorkflowID)
	}
	if rec.Status != models.StatusPending || rec.CurrentStepOrder != 1 {
		t.Errorf("Expected PENDING at step 1, got %s at %d", rec.Status, rec.CurrentStepOrder)
	}
	steps, err := models.DecodeSteps(rec.StepsJSON)
	if err != nil {
		t.Fatalf("DecodeSteps: %v", err)
	}
	if len(steps) != 2 {
		t.Errorf("Expected 2 snapshot steps, got %d", len(steps))
	}
}

func TestStartApproval_RangeMaxIsExclusive(t *testing.T) {
	store := &recordStore{}
	defRepo := &MockDefinitionRepo{
		FindActiveByEntityTypeFunc: func(entityType string) ([]domain.WorkflowDefinition, error) {
			return invoiceDefinitions(), nil
		},
	}
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, defRepo, threeStepDirectory(), nil, nil)

	rec, err := m.StartApproval(context.Background(), models.StartApprovalRequest{
		EntityType:    "INVOICE",
		EntityID:      "INV-2",
		InitiatorID:   5,
		RoutingParams: map[string]float64{"amount": 1000},
	})
	if err != nil {
		t.Fatalf("StartApproval returned error: %v", err)
	}
	if rec.WorkflowID != 2 {
		t.Errorf("Amount 1000 must route to the [1000, inf) tier, got workflow %d", rec.WorkflowID)
	}
}

func TestStartApproval_FallsBackToDefault(t *testing.T) {
	store := &recordStore{}
	defRepo := &MockDefinitionRepo{
		FindActiveByEntityTypeFunc: func(entityType string) ([]domain.WorkflowDefinition, error) {
			return invoiceDefinitions(), nil
		},
	}
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, defRepo, threeStepDirectory(), nil, nil)

	rec, err := m.StartApproval(context.Background(), models.StartApprovalRequest{
		EntityType:  "INVOICE",
		EntityID:    "INV-3",
		InitiatorID: 5,
	})
	if err != nil {
		t.Fatalf("StartApproval returned error: %v", err)
	}
	if rec.WorkflowID != 3 {
		t.Errorf("Expected default workflow 3 when no routing params given, got %d", rec.WorkflowID)
	}
}

func TestStartApproval_NoMatchNoDefault(t *testing.T) {
	defs := invoiceDefinitions()[:2]
	defRepo := &MockDefinitionRepo{
		FindActiveByEntityTypeFunc: func(entityType string) ([]domain.WorkflowDefinition, error) {
			return defs, nil
		},
	}
	m := NewApprovalManager((&recordStore{}).repo(), &MockHistoryRepo{}, defRepo, threeStepDirectory(), nil, nil)

	_, err := m.StartApproval(context.Background(), models.StartApprovalRequest{
		EntityType:  "INVOICE",
		EntityID:    "INV-4",
		InitiatorID: 5,
	})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Expected ErrConfiguration, got %v", err)
	}
}

func TestStartApproval_DuplicatePending(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), nil, nil)

	_, err := m.StartApproval(context.Background(), models.StartApprovalRequest{
		EntityType:  "INVOICE",
		EntityID:    "INV-100",
		InitiatorID: 5,
	})
	if !errors.Is(err, ErrDuplicateApproval) {
		t.Fatalf("Expected ErrDuplicateApproval, got %v", err)
	}
}

func TestStartApproval_ConcurrentSaveMapsToDuplicate(t *testing.T) {
	// The pre-insert read sees nothing, but the unique index on PENDING
	// records rejects the insert because a concurrent start won the race.
	recRepo := &MockRecordRepo{
		SaveFunc: func(rec *domain.ApprovalRecord) (int64, error) {
			return 0, repository.ErrDuplicatePending
		},
	}
	defRepo := &MockDefinitionRepo{
		FindActiveByEntityTypeFunc: func(entityType string) ([]domain.WorkflowDefinition, error) {
			return invoiceDefinitions(), nil
		},
	}
	m := NewApprovalManager(recRepo, &MockHistoryRepo{}, defRepo, threeStepDirectory(), nil, nil)

	_, err := m.StartApproval(context.Background(), models.StartApprovalRequest{
		EntityType:    "INVOICE",
		EntityID:      "INV-RACE",
		InitiatorID:   5,
		RoutingParams: map[string]float64{"amount": 500},
	})
	if !errors.Is(err, ErrDuplicateApproval) {
		t.Fatalf("Expected ErrDuplicateApproval for racing start, got %v", err)
	}
}

func TestStartApproval_EmptyRoleFailsFast(t *testing.T) {
	saved := false
	recRepo := &MockRecordRepo{
		SaveFunc: func(rec *domain.ApprovalRecord) (int64, error) {
			saved = true
			return 1, nil
		},
	}
	defRepo := &MockDefinitionRepo{
		FindActiveByEntityTypeFunc: func(entityType string) ([]domain.WorkflowDefinition, error) {
			return invoiceDefinitions()[2:], nil
		},
	}
	dir := &MockDirectory{
		ResolveRoleFunc: func(roleCode, scope string) ([]int64, error) {
			return nil, nil
		},
	}
	m := NewApprovalManager(recRepo, &MockHistoryRepo{}, defRepo, dir, nil, nil)

	_, err := m.StartApproval(context.Background(), models.StartApprovalRequest{
		EntityType:  "INVOICE",
		EntityID:    "INV-5",
		InitiatorID: 5,
	})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Expected ErrConfiguration for empty role, got %v", err)
	}
	if saved {
		t.Error("No record may be created when a step cannot resolve")
	}
}

func TestStartApproval_OverrideChecks(t *testing.T) {
	defRepo := &MockDefinitionRepo{
		FindByIDFunc: func(id int64) (*domain.WorkflowDefinition, error) {
			if id == 9 {
				return &domain.WorkflowDefinition{ID: 9, EntityType: "PO", Active: false}, nil
			}
			return nil, sql.ErrNoRows
		},
	}
	m := NewApprovalManager((&recordStore{}).repo(), &MockHistoryRepo{}, defRepo, threeStepDirectory(), nil, nil)

	_, err := m.StartApproval(context.Background(), models.StartApprovalRequest{
		EntityType: "INVOICE", EntityID: "INV-6", InitiatorID: 5, WorkflowID: 9,
	})
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("Inactive override workflow must be ErrConfiguration, got %v", err)
	}

	_, err = m.StartApproval(context.Background(), models.StartApprovalRequest{
		EntityType: "INVOICE", EntityID: "INV-6", InitiatorID: 5, WorkflowID: 404,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Missing override workflow must be ErrNotFound, got %v", err)
	}
}

func TestApproveChain_ReachesApproved(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())

	var callbackStatus string
	callbacks := map[string]EntityCallback{
		"INVOICE": func(ctx context.Context, rec *domain.ApprovalRecord) error {
			callbackStatus = rec.Status
			return nil
		},
	}
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), &callbacks, nil)

	ctx := context.Background()
	if _, err := m.ApproveStep(ctx, 1, 10, "checked"); err != nil {
		t.Fatalf("Step 1 approve: %v", err)
	}
	if callbackStatus != "" {
		t.Error("Callback must not fire before the record is terminal")
	}
	if _, err := m.ApproveStep(ctx, 1, 20, "ok"); err != nil {
		t.Fatalf("Step 2 approve: %v", err)
	}
	rec, err := m.ApproveStep(ctx, 1, 30, "final")
	if err != nil {
		t.Fatalf("Step 3 approve: %v", err)
	}

	if rec.Status != models.StatusApproved {
		t.Errorf("Expected APPROVED, got %s", rec.Status)
	}
	if callbackStatus != models.StatusApproved {
		t.Errorf("Expected APPROVED callback, got %q", callbackStatus)
	}
	if len(store.history) != 3 {
		t.Fatalf("Expected 3 history entries, got %d", len(store.history))
	}
	for i, e := range store.history {
		if e.Sequence != i+1 {
			t.Errorf("History entry %d has sequence %d", i, e.Sequence)
		}
		if e.Action != models.ActionApprove {
			t.Errorf("History entry %d has action %s", i, e.Action)
		}
	}
}

func TestApprove_WrongActor(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), nil, nil)

	_, err := m.ApproveStep(context.Background(), 1, 99, "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Expected ErrPermissionDenied, got %v", err)
	}
	if store.rec.CurrentStepOrder != 1 || store.rec.Status != models.StatusPending {
		t.Error("A denied action must not change the record")
	}
}

func TestReject_TerminatesChain(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())

	var callbackStatus string
	callbacks := map[string]EntityCallback{
		"INVOICE": func(ctx context.Context, rec *domain.ApprovalRecord) error {
			callbackStatus = rec.Status
			return nil
		},
	}
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), &callbacks, nil)

	ctx := context.Background()
	if _, err := m.ApproveStep(ctx, 1, 11, ""); err != nil {
		t.Fatalf("Step 1 approve: %v", err)
	}
	rec, err := m.RejectStep(ctx, 1, 20, "missing receipts")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rec.Status != models.StatusRejected {
		t.Errorf("Expected REJECTED, got %s", rec.Status)
	}
	if callbackStatus != models.StatusRejected {
		t.Errorf("Expected REJECTED callback, got %q", callbackStatus)
	}

	// Terminal records accept no further actions.
	if _, err := m.ApproveStep(ctx, 1, 30, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Approve after reject must be ErrInvalidTransition, got %v", err)
	}
}

func TestDelegate_NotAllowedOnStep(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), nil, nil)

	_, err := m.DelegateStep(context.Background(), 1, 10, 25, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition for non-delegable step, got %v", err)
	}
}

func TestDelegate_ReassignsActor(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), nil, nil)

	ctx := context.Background()
	if _, err := m.ApproveStep(ctx, 1, 10, ""); err != nil {
		t.Fatalf("Step 1 approve: %v", err)
	}
	rec, err := m.DelegateStep(ctx, 1, 20, 25, "on leave")
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if !rec.DelegateID.Valid || rec.DelegateID.Int64 != 25 {
		t.Fatalf("Expected delegate 25, got %+v", rec.DelegateID)
	}
	if rec.Status != models.StatusPending || rec.CurrentStepOrder != 2 {
		t.Errorf("Delegation must not move the record, got %s at %d", rec.Status, rec.CurrentStepOrder)
	}

	// The original approver is displaced while the delegation stands.
	if _, err := m.ApproveStep(ctx, 1, 20, ""); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Displaced approver must be ErrPermissionDenied, got %v", err)
	}
	if _, err := m.ApproveStep(ctx, 1, 25, ""); err != nil {
		t.Fatalf("Delegate approve: %v", err)
	}
	if store.rec.DelegateID.Valid {
		t.Error("Advancing a step must clear the delegation")
	}
	if store.rec.CurrentStepOrder != 3 {
		t.Errorf("Expected step 3, got %d", store.rec.CurrentStepOrder)
	}
}

func TestDelegate_UnknownTarget(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())
	dir := threeStepDirectory()
	dir.UserExistsActiveFunc = func(id int64) (bool, error) {
		return false, nil
	}
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, dir, nil, nil)

	if _, err := m.ApproveStep(context.Background(), 1, 10, ""); err != nil {
		t.Fatalf("Step 1 approve: %v", err)
	}
	_, err := m.DelegateStep(context.Background(), 1, 20, 999, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for inactive delegate, got %v", err)
	}
}

func TestWithdraw_OnlyInitiator(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())

	callbackFired := false
	callbacks := map[string]EntityCallback{
		"INVOICE": func(ctx context.Context, rec *domain.ApprovalRecord) error {
			callbackFired = true
			return nil
		},
	}
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), &callbacks, nil)

	ctx := context.Background()
	if _, err := m.WithdrawApproval(ctx, 1, 10, ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Non-initiator withdraw must be ErrPermissionDenied, got %v", err)
	}
	rec, err := m.WithdrawApproval(ctx, 1, 5, "raised in error")
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if rec.Status != models.StatusWithdrawn {
		t.Errorf("Expected WITHDRAWN, got %s", rec.Status)
	}
	if callbackFired {
		t.Error("Withdrawal must not fire the entity callback")
	}
}

func TestTransitionConflict_MapsToInvalidTransition(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())
	repo := store.repo()
	repo.ApplyTransitionFunc = func(u repository.TransitionUpdate) error {
		return repository.ErrTransitionConflict
	}
	m := NewApprovalManager(repo, &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), nil, nil)

	_, err := m.ApproveStep(context.Background(), 1, 10, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition on conflict, got %v", err)
	}
}

func TestRoleEmptiedAfterStart_DeniesAction(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())
	dir := &MockDirectory{
		ResolveRoleFunc: func(roleCode, scope string) ([]int64, error) {
			return nil, nil
		},
	}
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, dir, nil, nil)

	_, err := m.ApproveStep(context.Background(), 1, 10, "")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Empty role at action time must be ErrPermissionDenied, got %v", err)
	}
}

func TestCurrentStep_RoleEmptiedAfterStart(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())
	dir := &MockDirectory{
		ResolveRoleFunc: func(roleCode, scope string) ([]int64, error) {
			return nil, nil
		},
	}
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, dir, nil, nil)

	step, err := m.CurrentStep(1)
	if err != nil {
		t.Fatalf("CurrentStep: %v", err)
	}
	if step == nil {
		t.Fatal("Expected a step for a pending record")
	}
	if len(step.ApproverIDs) != 0 {
		t.Errorf("Expected no eligible approvers, got %v", step.ApproverIDs)
	}
	if step.StepOrder != 1 {
		t.Errorf("Expected step 1, got %d", step.StepOrder)
	}
}

func TestCurrentStep(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, threeStepSnapshot())
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), nil, nil)

	step, err := m.CurrentStep(1)
	if err != nil {
		t.Fatalf("CurrentStep: %v", err)
	}
	if len(step.ApproverIDs) != 2 {
		t.Errorf("Expected both FIN_CLERK holders, got %v", step.ApproverIDs)
	}

	// With a delegation in place only the delegate is reported.
	store.rec.CurrentStepOrder = 2
	store.rec.DelegateID = sql.NullInt64{Int64: 25, Valid: true}
	step, err = m.CurrentStep(1)
	if err != nil {
		t.Fatalf("CurrentStep delegated: %v", err)
	}
	if len(step.ApproverIDs) != 1 || step.ApproverIDs[0] != 25 {
		t.Errorf("Expected delegate 25 only, got %v", step.ApproverIDs)
	}
	if !step.CanDelegate {
		t.Error("Step 2 allows delegation")
	}

	// Terminal records have no current step.
	store.rec.Status = models.StatusApproved
	step, err = m.CurrentStep(1)
	if err != nil {
		t.Fatalf("CurrentStep terminal: %v", err)
	}
	if step != nil {
		t.Errorf("Expected nil step for terminal record, got %+v", step)
	}
}

func TestGetApprovalRecord_NeverStarted(t *testing.T) {
	m := NewApprovalManager((&recordStore{}).repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), nil, nil)
	rec, err := m.GetApprovalRecord("INVOICE", "INV-NONE")
	if err != nil {
		t.Fatalf("GetApprovalRecord: %v", err)
	}
	if rec != nil {
		t.Errorf("Expected nil for an entity never under approval, got %+v", rec)
	}
}

func TestCallbackFailure_KeepsTransition(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, []models.StepSnapshot{
		{StepOrder: 1, ApproverType: models.ApproverTypeUser, ApproverRef: "30"},
	})
	callbacks := map[string]EntityCallback{
		"INVOICE": func(ctx context.Context, rec *domain.ApprovalRecord) error {
			return errors.New("erp unreachable")
		},
	}
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), &callbacks, nil)

	_, err := m.ApproveStep(context.Background(), 1, 30, "")
	if err == nil {
		t.Fatal("Expected the callback error to be reported")
	}
	if store.rec.Status != models.StatusApproved {
		t.Errorf("Callback failure must not roll back the transition, got %s", store.rec.Status)
	}
}

func TestResolveBoolean(t *testing.T) {
	store := &recordStore{}
	seedRecord(t, store, []models.StepSnapshot{
		{StepOrder: 1, ApproverType: models.ApproverTypeUser, ApproverRef: "30"},
	})
	m := NewApprovalManager(store.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), nil, nil)

	rec, err := m.ResolveBoolean(context.Background(), 1, 30, true, "ok")
	if err != nil {
		t.Fatalf("ResolveBoolean: %v", err)
	}
	if rec.Status != models.StatusApproved {
		t.Errorf("Expected APPROVED, got %s", rec.Status)
	}

	store2 := &recordStore{}
	seedRecord(t, store2, []models.StepSnapshot{
		{StepOrder: 1, ApproverType: models.ApproverTypeUser, ApproverRef: "30"},
	})
	m2 := NewApprovalManager(store2.repo(), &MockHistoryRepo{}, &MockDefinitionRepo{}, threeStepDirectory(), nil, nil)
	rec, err = m2.ResolveBoolean(context.Background(), 1, 30, false, "no")
	if err != nil {
		t.Fatalf("ResolveBoolean reject: %v", err)
	}
	if rec.Status != models.StatusRejected {
		t.Errorf("Expected REJECTED, got %s", rec.Status)
	}
}

func TestSingleApproverDefinition(t *testing.T) {
	def := SingleApproverDefinition("PO", "Legacy PO approval", 42)
	if len(def.Steps) != 1 {
		t.Fatalf("Expected one step, got %d", len(def.Steps))
	}
	s := def.Steps[0]
	if s.ApproverType != models.ApproverTypeUser || s.ApproverRef != "42" || s.CanDelegate {
		t.Errorf("Unexpected step shape: %+v", s)
	}
	if err := validateDefinitionShape(def); err != nil {
		t.Errorf("Definition must pass shape validation: %v", err)
	}
}
