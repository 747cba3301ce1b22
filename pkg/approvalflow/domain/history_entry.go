package domain

import (
	"database/sql"
	"time"
)

// HistoryEntry is one append-only audit row for an ApprovalRecord.
// Sequence is monotonic per record and assigned by the store at append time.
type HistoryEntry struct {
	ID           int64
	RecordID     int64
	StepOrder    int
	Action       string
	ActorID      int64
	DelegateToID sql.NullInt64
	Comment      string
	Sequence     int
	DateTime     time.Time
}
