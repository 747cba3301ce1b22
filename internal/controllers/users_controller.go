package controllers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nexcrm/approvalflow/internal/util"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"

	"golang.org/x/crypto/bcrypt"
)

type UsersController struct {
	AuthController
}

func NewUsersController(userRepo UserRepo) *UsersController {
	return &UsersController{
		AuthController: AuthController{
			UserRepo: userRepo,
		},
	}
}

type createUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	Department  string `json:"department"`
}

// handleGetUsers returns all users
func (c *UsersController) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := c.UserRepo.FindAll()
	if err != nil {
		slog.Error("Failed to get users", "error", err)
		http.Error(w, "Failed to get users", http.StatusInternalServerError)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, users)
}

// handleCreateUser creates a new user with a bcrypt-hashed password
func (c *UsersController) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	u := &domain.User{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Password:    string(hash),
		Role:        req.Role,
		Department:  req.Department,
	}
	u.Active.Bool = true
	u.Active.Valid = true

	id, err := c.UserRepo.Save(u)
	if err != nil {
		slog.Error("Failed to save user", "username", req.Username, "error", err)
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, map[string]int64{"id": id})
}

// handleGetUserById returns a single user
func (c *UsersController) handleGetUserById(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := c.UserRepo.FindById(id)
	if err != nil || u == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, u)
}

// handleDeactivateUser disables a user. Users are never deleted so history
// actor ids stay resolvable.
func (c *UsersController) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := c.UserRepo.SetActive(id, false); err != nil {
		slog.Error("Failed to deactivate user", "id", id, "error", err)
		http.Error(w, "failed to deactivate user", http.StatusInternalServerError)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}
