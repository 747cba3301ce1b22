package domain

import (
	"database/sql"
)

// User is both an API principal and a directory entry: Role and Department
// are what the step resolver matches ROLE step templates against.
type User struct {
	ID            int64          `json:"id"`
	Username      string         `json:"username"`
	DisplayName   string         `json:"displayName"`
	Password      string         `json:"-"`
	Role          string         `json:"role"`
	Department    string         `json:"department"`
	SessionID     sql.NullString `json:"-"`
	ApiKey        sql.NullString `json:"-"`
	SessionExpiry sql.NullTime   `json:"-"`
	Created       sql.NullTime   `json:"created"`
	Active        sql.NullBool   `json:"active"`
}
