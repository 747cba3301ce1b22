package directory

import (
	"database/sql"
	"errors"

	"github.com/nexcrm/approvalflow/internal/repository"
)

// Resolver answers role-membership and active-user questions from the users
// table. It is the default implementation of engine.Directory; deployments
// with an external identity provider swap in their own.
type Resolver struct {
	users *repository.UserRepository
}

func NewResolver(users *repository.UserRepository) *Resolver {
	return &Resolver{users: users}
}

// ResolveRole returns the ids of all active holders of the role within the
// scope (department). Empty scope means any department.
func (r *Resolver) ResolveRole(roleCode, scope string) ([]int64, error) {
	users, err := r.users.FindActiveByRole(roleCode, scope)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// UserExistsActive reports whether the user id exists and is active.
func (r *Resolver) UserExistsActive(id int64) (bool, error) {
	u, err := r.users.FindById(id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Active.Valid && u.Active.Bool, nil
}

// DisplayName returns the user's display name, or empty when unknown.
func (r *Resolver) DisplayName(id int64) string {
	u, err := r.users.FindById(id)
	if err != nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
