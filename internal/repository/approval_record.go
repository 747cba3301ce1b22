package repository

import (
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/core"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/models"
)

// ErrTransitionConflict is returned when a transition's optimistic guard
// matched no row: the record moved on (or terminated) under a concurrent call.
var ErrTransitionConflict = errors.New("approval record changed concurrently")

// ErrDuplicatePending is returned when an insert trips the partial unique
// index on (entity_type, entity_id) for PENDING rows. The index is what
// actually serializes concurrent starts for the same entity.
var ErrDuplicatePending = errors.New("pending approval record already exists for entity")

type ApprovalRecordRepository struct {
	db    *sql.DB
	clock core.Clock
}

const RECORD_COLUMNS = ` id, entity_type, entity_id, workflow_id, status, current_step_order,
	       initiator_id, delegate_id, scope, steps_json, created, modified `

func NewApprovalRecordRepository(db *sql.DB, clock core.Clock) *ApprovalRecordRepository {
	return &ApprovalRecordRepository{db: db, clock: clock}
}

func scanRecord(row interface{ Scan(dest ...any) error }) (*domain.ApprovalRecord, error) {
	var rec domain.ApprovalRecord
	err := row.Scan(
		&rec.ID,
		&rec.EntityType,
		&rec.EntityID,
		&rec.WorkflowID,
		&rec.Status,
		&rec.CurrentStepOrder,
		&rec.InitiatorID,
		&rec.DelegateID,
		&rec.Scope,
		&rec.StepsJSON,
		&rec.Created,
		&rec.Modified,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ApprovalRecordRepository) Save(rec *domain.ApprovalRecord) (int64, error) {
	vals := []interface{}{rec.EntityType, rec.EntityID, rec.WorkflowID, rec.Status, rec.CurrentStepOrder,
		rec.InitiatorID, rec.DelegateID, rec.Scope, rec.StepsJSON,
		formatDateInDatabase(rec.Created), formatDateInDatabase(rec.Modified)}
	pps := make([]string, 0, len(vals))
	for i := range vals {
		pps = append(pps, placeholder(i+1))
	}
	base := `INSERT INTO approval_records (
		entity_type, entity_id, workflow_id, status, current_step_order,
		initiator_id, delegate_id, scope, steps_json, created, modified
	) VALUES (` + strings.Join(pps, ", ") + `)`
	var err error
	if supportsReturning() {
		query := base + " RETURNING id"
		err = r.db.QueryRow(query, vals...).Scan(&rec.ID)
	} else {
		res, e := r.db.Exec(base, vals...)
		if e != nil {
			err = e
		} else {
			id, e2 := res.LastInsertId()
			if e2 != nil {
				err = e2
			} else {
				rec.ID = id
			}
		}
	}
	if err != nil && isUniqueViolation(err) {
		return 0, ErrDuplicatePending
	}
	return rec.ID, err
}

func (r *ApprovalRecordRepository) FindByID(id int64) (*domain.ApprovalRecord, error) {
	query := `
		SELECT ` + RECORD_COLUMNS + `
		FROM approval_records WHERE id = ` + placeholder(1) + `
	`
	return scanRecord(r.db.QueryRow(query, id))
}

// FindPendingByEntity returns the single non-terminal record for the entity,
// or sql.ErrNoRows when none exists.
func (r *ApprovalRecordRepository) FindPendingByEntity(entityType, entityID string) (*domain.ApprovalRecord, error) {
	query := `
		SELECT ` + RECORD_COLUMNS + `
		FROM approval_records
		WHERE entity_type = ` + placeholder(1) + ` AND entity_id = ` + placeholder(2) + `
		  AND status = '` + models.StatusPending + `'
	`
	return scanRecord(r.db.QueryRow(query, entityType, entityID))
}

// FindByEntity returns the most recent record for the entity regardless of status.
func (r *ApprovalRecordRepository) FindByEntity(entityType, entityID string) (*domain.ApprovalRecord, error) {
	query := `
		SELECT ` + RECORD_COLUMNS + `
		FROM approval_records
		WHERE entity_type = ` + placeholder(1) + ` AND entity_id = ` + placeholder(2) + `
		ORDER BY id DESC
		LIMIT 1
	`
	return scanRecord(r.db.QueryRow(query, entityType, entityID))
}

// TransitionUpdate describes one state-machine step to apply atomically:
// the record update, guarded by the expected current step, plus its audit
// entry. Entry.Sequence is assigned inside the transaction.
type TransitionUpdate struct {
	RecordID        int64
	ExpectStepOrder int
	NewStatus       string
	NewStepOrder    int
	DelegateID      sql.NullInt64
	Entry           *domain.HistoryEntry
}

// ApplyTransition commits the status change and its history entry as one
// transaction. The UPDATE only matches a PENDING record still sitting at
// ExpectStepOrder; anything else means a concurrent caller won the race and
// ErrTransitionConflict is returned with nothing written.
func (r *ApprovalRecordRepository) ApplyTransition(u TransitionUpdate) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	update := `
		UPDATE approval_records
		SET status = ` + placeholder(1) + `, current_step_order = ` + placeholder(2) + `,
		    delegate_id = ` + placeholder(3) + `, modified = ` + placeholder(4) + `
		WHERE id = ` + placeholder(5) + ` AND status = '` + models.StatusPending + `'
		  AND current_step_order = ` + placeholder(6) + `
	`
	res, err := tx.Exec(update,
		u.NewStatus,
		u.NewStepOrder,
		u.DelegateID,
		formatDateInDatabase(r.clock.Now()),
		u.RecordID,
		u.ExpectStepOrder,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return ErrTransitionConflict
	}

	if err := insertHistoryTx(tx, u.Entry); err != nil {
		slog.Error("Failed to append history entry", "record_id", u.RecordID, "action", u.Entry.Action, "error", err)
		return err
	}

	return tx.Commit()
}
