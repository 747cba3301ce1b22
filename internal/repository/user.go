package repository

import (
	"database/sql"
	"time"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/core"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
)

// UserRepository provides persistence methods for the users table. The same
// table backs both API authentication and the approver directory.
type UserRepository struct {
	db    *sql.DB
	clock core.Clock
}

const USER_COLUMNS = ` id, username, display_name, password, role, department, session_id, api_key, session_expiry, created, active `

func NewUserRepository(db *sql.DB, clock core.Clock) *UserRepository {
	return &UserRepository{db: db, clock: clock}
}

func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.DisplayName,
		&u.Password,
		&u.Role,
		&u.Department,
		&u.SessionID,
		&u.ApiKey,
		&u.SessionExpiry,
		&u.Created,
		&u.Active,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Save inserts a new user and returns its generated id.
// It will set Created to now if it's not provided.
func (r *UserRepository) Save(u *domain.User) (int64, error) {
	if !u.Created.Valid {
		u.Created = sql.NullTime{Time: r.clock.Now().UTC(), Valid: true}
	}

	base := `
        INSERT INTO users (username, display_name, password, role, department, session_id, api_key, session_expiry, created, active)
        VALUES (` + placeholder(1) + `,` + placeholder(2) + `,` + placeholder(3) + `,` + placeholder(4) + `,` + placeholder(5) + `,` + placeholder(6) + `,` + placeholder(7) + `,` + placeholder(8) + `,` + placeholder(9) + `,` + placeholder(10) + `)
    `
	vals := []interface{}{
		u.Username,
		u.DisplayName,
		u.Password,
		u.Role,
		u.Department,
		u.SessionID,
		u.ApiKey,
		formatDateInDatabaseNull(u.SessionExpiry),
		formatDateInDatabaseNull(u.Created),
		u.Active,
	}

	var id int64
	var err error
	if supportsReturning() {
		err = r.db.QueryRow(base+" RETURNING id", vals...).Scan(&id)
	} else {
		res, e := r.db.Exec(base, vals...)
		if e != nil {
			err = e
		} else {
			newID, e2 := res.LastInsertId()
			if e2 != nil {
				err = e2
			} else {
				id = newID
			}
		}
	}
	if err != nil {
		return 0, err
	}
	u.ID = id
	return id, nil
}

// FindByUsername fetches a user by exact username.
func (r *UserRepository) FindByUsername(username string) (*domain.User, error) {
	query := `
		SELECT ` + USER_COLUMNS + `
		FROM users WHERE username = ` + placeholder(1) + `
	`
	return scanUser(r.db.QueryRow(query, username))
}

func (r *UserRepository) FindById(id int64) (*domain.User, error) {
	query := `
		SELECT ` + USER_COLUMNS + `
		FROM users WHERE id = ` + placeholder(1) + `
	`
	return scanUser(r.db.QueryRow(query, id))
}

func (r *UserRepository) FindAll() ([]domain.User, error) {
	query := `
		SELECT ` + USER_COLUMNS + `
		FROM users ORDER BY username
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// FindActiveByRole returns all active users holding the role, optionally
// scoped to a department. An empty department matches every department.
func (r *UserRepository) FindActiveByRole(role, department string) ([]domain.User, error) {
	query := `
		SELECT ` + USER_COLUMNS + `
		FROM users
		WHERE role = ` + placeholder(1) + ` AND active = ` + boolLiteral(true) + `
	`
	args := []interface{}{role}
	if department != "" {
		args = append(args, department)
		query += ` AND department = ` + placeholder(2)
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) FindBySessionID(sessionID string, now time.Time) (*domain.User, error) {
	query := `
		SELECT ` + USER_COLUMNS + `
		FROM users
		WHERE session_id = ` + placeholder(1) + ` AND session_expiry > ` + placeholder(2) + `
	`
	return scanUser(r.db.QueryRow(query, sessionID, formatDateInDatabase(now)))
}

func (r *UserRepository) FindByApiKey(apiKey string) (*domain.User, error) {
	query := `
		SELECT ` + USER_COLUMNS + `
		FROM users
		WHERE api_key = ` + placeholder(1) + ` AND active = ` + boolLiteral(true) + `
	`
	return scanUser(r.db.QueryRow(query, apiKey))
}

func (r *UserRepository) UpdateSession(userID int64, sessionID string, expiry time.Time) error {
	query := `
		UPDATE users
		SET session_id = ` + placeholder(1) + `, session_expiry = ` + placeholder(2) + `
		WHERE id = ` + placeholder(3) + `
	`
	_, err := r.db.Exec(query, sessionID, formatDateInDatabase(expiry), userID)
	return err
}

func (r *UserRepository) ClearSessionBySessionID(sessionID string) error {
	query := `
		UPDATE users
		SET session_id = NULL, session_expiry = NULL
		WHERE session_id = ` + placeholder(1) + `
	`
	_, err := r.db.Exec(query, sessionID)
	return err
}

// SetActive enables or disables a user. Disabled users stop resolving for
// ROLE steps and can no longer authenticate with their API key.
func (r *UserRepository) SetActive(id int64, active bool) error {
	query := `
		UPDATE users
		SET active = ` + boolLiteral(active) + `
		WHERE id = ` + placeholder(1) + `
	`
	_, err := r.db.Exec(query, id)
	return err
}
