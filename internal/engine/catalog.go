package engine

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/models"
)

// RegisterDefinition validates and stores a new workflow definition. Invalid
// shapes and routing clashes with existing active definitions surface as
// ErrConfiguration before anything is written.
func (m *ApprovalManager) RegisterDefinition(def *domain.WorkflowDefinition) (int64, error) {
	if err := validateDefinitionShape(def); err != nil {
		return 0, err
	}

	existing, err := m.DefinitionRepo.FindActiveByEntityType(def.EntityType)
	if err != nil {
		return 0, err
	}
	for i := range existing {
		other := &existing[i]
		if !def.RangeCriterion.Valid {
			if !other.RangeCriterion.Valid {
				return 0, fmt.Errorf("%w: entity type %s already has a default workflow (%s)", ErrConfiguration, def.EntityType, other.Name)
			}
			continue
		}
		if other.RangeCriterion.Valid && other.RangeCriterion.String == def.RangeCriterion.String && rangesOverlap(def, other) {
			return 0, fmt.Errorf("%w: routing range overlaps workflow %s", ErrConfiguration, other.Name)
		}
	}

	now := m.clock.Now().UTC()
	def.Active = true
	def.Created = now
	def.Updated = now
	id, err := m.DefinitionRepo.Save(def)
	if err != nil {
		return 0, err
	}
	slog.Info("Registered workflow definition", "id", id, "entity_type", def.EntityType, "name", def.Name, "steps", len(def.Steps))
	return id, nil
}

func validateDefinitionShape(def *domain.WorkflowDefinition) error {
	if def.EntityType == "" || def.Name == "" {
		return fmt.Errorf("%w: entityType and name are required", ErrConfiguration)
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("%w: a workflow needs at least one step", ErrConfiguration)
	}
	if def.RangeCriterion.Valid && def.RangeCriterion.String == "" {
		return fmt.Errorf("%w: range criterion must not be empty", ErrConfiguration)
	}
	if !def.RangeCriterion.Valid && (def.RangeMin.Valid || def.RangeMax.Valid) {
		return fmt.Errorf("%w: a range needs a named criterion", ErrConfiguration)
	}
	if def.RangeMin.Valid && def.RangeMax.Valid && def.RangeMax.Float64 <= def.RangeMin.Float64 {
		return fmt.Errorf("%w: range max must be greater than min", ErrConfiguration)
	}
	for i, s := range def.Steps {
		if s.StepOrder != i+1 {
			return fmt.Errorf("%w: step orders must be contiguous starting at 1", ErrConfiguration)
		}
		if s.ApproverRef == "" {
			return fmt.Errorf("%w: step %d has no approver ref", ErrConfiguration, s.StepOrder)
		}
		switch s.ApproverType {
		case models.ApproverTypeRole:
		case models.ApproverTypeUser:
			if _, err := strconv.ParseInt(s.ApproverRef, 10, 64); err != nil {
				return fmt.Errorf("%w: step %d USER ref must be a user id", ErrConfiguration, s.StepOrder)
			}
		default:
			return fmt.Errorf("%w: step %d has unknown approver type %q", ErrConfiguration, s.StepOrder, s.ApproverType)
		}
	}
	return nil
}

// ListDefinitions exposes the catalog for web/API layers.
func (m *ApprovalManager) ListDefinitions() ([]domain.WorkflowDefinition, error) {
	return m.DefinitionRepo.FindAll()
}

// GetDefinition exposes repository get by id for web/API layers.
func (m *ApprovalManager) GetDefinition(id int64) (*domain.WorkflowDefinition, error) {
	return m.DefinitionRepo.FindByID(id)
}

// DeactivateDefinition takes a definition out of routing. Records already
// bound to it keep running on their snapshot.
func (m *ApprovalManager) DeactivateDefinition(id int64) error {
	return m.DefinitionRepo.Deactivate(id)
}
