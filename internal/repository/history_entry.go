package repository

import (
	"database/sql"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/core"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
)

// HistoryRepository reads the append-only audit trail. Writes only happen
// inside ApprovalRecordRepository.ApplyTransition so an entry can never land
// without its status change.
type HistoryRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewHistoryRepository(db *sql.DB, clock core.Clock) *HistoryRepository {
	return &HistoryRepository{db: db, clock: clock}
}

// insertHistoryTx appends the entry within the caller's transaction,
// assigning the next per-record sequence number.
func insertHistoryTx(tx *sql.Tx, e *domain.HistoryEntry) error {
	seqQuery := `
		SELECT COALESCE(MAX(sequence), 0) + 1
		FROM approval_history
		WHERE record_id = ` + placeholder(1) + `
	`
	if err := tx.QueryRow(seqQuery, e.RecordID).Scan(&e.Sequence); err != nil {
		return err
	}

	base := `
		INSERT INTO approval_history (
			record_id, step_order, action, actor_id, delegate_to_id, comment, sequence, date_time
		) VALUES (
			` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, ` + placeholder(5) + `, ` + placeholder(6) + `, ` + placeholder(7) + `, ` + placeholder(8) + `
		)`
	vals := []interface{}{
		e.RecordID,
		e.StepOrder,
		e.Action,
		e.ActorID,
		e.DelegateToID,
		e.Comment,
		e.Sequence,
		formatDateInDatabase(e.DateTime),
	}
	if supportsReturning() {
		return tx.QueryRow(base+" RETURNING id", vals...).Scan(&e.ID)
	}
	res, err := tx.Exec(base, vals...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// FindAllByRecordID returns the full audit trail for a record ordered by sequence.
func (r *HistoryRepository) FindAllByRecordID(recordID int64) ([]domain.HistoryEntry, error) {
	query := `
		SELECT id, record_id, step_order, action, actor_id, delegate_to_id, comment, sequence, date_time
		FROM approval_history
		WHERE record_id = ` + placeholder(1) + `
		ORDER BY sequence ASC
	`
	rows, err := r.db.Query(query, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(
			&e.ID,
			&e.RecordID,
			&e.StepOrder,
			&e.Action,
			&e.ActorID,
			&e.DelegateToID,
			&e.Comment,
			&e.Sequence,
			&e.DateTime,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
