package repository

import (
	"database/sql"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/core"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
)

type WorkflowDefinitionRepository struct {
	db    *sql.DB
	clock core.Clock
}

const DEFINITION_COLUMNS = ` id, entity_type, name, range_criterion, range_min, range_max, active, created, updated `

func NewWorkflowDefinitionRepository(db *sql.DB, clock core.Clock) *WorkflowDefinitionRepository {
	return &WorkflowDefinitionRepository{db: db, clock: clock}
}

// Save inserts a definition and its step templates in one transaction and
// returns the new id. Definitions are insert-only; edits are new versions.
func (r *WorkflowDefinitionRepository) Save(def *domain.WorkflowDefinition) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	base := `INSERT INTO workflow_definitions (
		entity_type, name, range_criterion, range_min, range_max, active, created, updated
	) VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `, ` + placeholder(6) + `, ` + placeholder(7) + `, ` + placeholder(8) + `)`
	vals := []interface{}{def.EntityType, def.Name, def.RangeCriterion, def.RangeMin, def.RangeMax,
		def.Active, formatDateInDatabase(def.Created), formatDateInDatabase(def.Updated)}
	if supportsReturning() {
		if err := tx.QueryRow(base+" RETURNING id", vals...).Scan(&def.ID); err != nil {
			return 0, err
		}
	} else {
		res, err := tx.Exec(base, vals...)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		def.ID = id
	}

	stepQuery := `INSERT INTO step_templates (workflow_id, step_order, approver_type, approver_ref, can_delegate)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `)`
	for i := range def.Steps {
		def.Steps[i].WorkflowID = def.ID
		s := def.Steps[i]
		if _, err := tx.Exec(stepQuery, s.WorkflowID, s.StepOrder, s.ApproverType, s.ApproverRef, s.CanDelegate); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return def.ID, nil
}

func (r *WorkflowDefinitionRepository) FindByID(id int64) (*domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + DEFINITION_COLUMNS + `
		FROM workflow_definitions WHERE id = ` + placeholder(1) + `
	`
	var def domain.WorkflowDefinition
	err := r.db.QueryRow(query, id).Scan(
		&def.ID,
		&def.EntityType,
		&def.Name,
		&def.RangeCriterion,
		&def.RangeMin,
		&def.RangeMax,
		&def.Active,
		&def.Created,
		&def.Updated,
	)
	if err != nil {
		return nil, err
	}
	if err := r.loadSteps(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// FindActiveByEntityType returns all active definitions for the entity type,
// steps included, for routing selection.
func (r *WorkflowDefinitionRepository) FindActiveByEntityType(entityType string) ([]domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + DEFINITION_COLUMNS + `
		FROM workflow_definitions
		WHERE entity_type = ` + placeholder(1) + ` AND active = ` + boolLiteral(true) + `
		ORDER BY id
	`
	return r.queryDefinitions(query, entityType)
}

func (r *WorkflowDefinitionRepository) FindAll() ([]domain.WorkflowDefinition, error) {
	query := `
		SELECT ` + DEFINITION_COLUMNS + `
		FROM workflow_definitions
		ORDER BY entity_type, id
	`
	return r.queryDefinitions(query)
}

func (r *WorkflowDefinitionRepository) queryDefinitions(query string, args ...interface{}) ([]domain.WorkflowDefinition, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := make([]domain.WorkflowDefinition, 0)
	for rows.Next() {
		var def domain.WorkflowDefinition
		if err := rows.Scan(
			&def.ID,
			&def.EntityType,
			&def.Name,
			&def.RangeCriterion,
			&def.RangeMin,
			&def.RangeMax,
			&def.Active,
			&def.Created,
			&def.Updated,
		); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range defs {
		if err := r.loadSteps(&defs[i]); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

func (r *WorkflowDefinitionRepository) loadSteps(def *domain.WorkflowDefinition) error {
	query := `
		SELECT id, workflow_id, step_order, approver_type, approver_ref, can_delegate
		FROM step_templates
		WHERE workflow_id = ` + placeholder(1) + `
		ORDER BY step_order ASC
	`
	rows, err := r.db.Query(query, def.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.StepTemplate
		if err := rows.Scan(&s.ID, &s.WorkflowID, &s.StepOrder, &s.ApproverType, &s.ApproverRef, &s.CanDelegate); err != nil {
			return err
		}
		def.Steps = append(def.Steps, s)
	}
	return rows.Err()
}

// Deactivate flips active off. Definitions are never deleted.
func (r *WorkflowDefinitionRepository) Deactivate(id int64) error {
	query := `
		UPDATE workflow_definitions
		SET active = ` + boolLiteral(false) + `, updated = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + `
	`
	_, err := r.db.Exec(query, formatDateInDatabase(r.clock.Now()), id)
	return err
}
