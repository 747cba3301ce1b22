package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"

	"golang.org/x/crypto/bcrypt"
)

func TestUsersController_GetUsers(t *testing.T) {
	mockUserRepo := &MockUserRepo{
		FindAllFunc: func() ([]domain.User, error) {
			return []domain.User{
				{ID: 1, Username: "user1"},
			}, nil
		},
	}

	c := NewUsersController(mockUserRepo)

	req := httptest.NewRequest("GET", "/api/users", nil)
	w := httptest.NewRecorder()

	c.handleGetUsers(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var users []domain.User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("Expected 1 user, got %d", len(users))
	}
}

func TestUsersController_CreateUser(t *testing.T) {
	var saved *domain.User
	mockUserRepo := &MockUserRepo{
		SaveFunc: func(user *domain.User) (int64, error) {
			saved = user
			return 123, nil
		},
	}

	c := NewUsersController(mockUserRepo)

	body, _ := json.Marshal(createUserRequest{
		Username: "newuser", Password: "password", Role: "FIN_CLERK", Department: "finance",
	})
	req := httptest.NewRequest("POST", "/api/users", bytes.NewReader(body))
	w := httptest.NewRecorder()

	c.handleCreateUser(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if saved == nil {
		t.Fatal("Save was not called")
	}
	if saved.Password == "password" {
		t.Error("Password must be stored hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(saved.Password), []byte("password")); err != nil {
		t.Errorf("Stored hash does not match password: %v", err)
	}
	if !saved.Active.Valid || !saved.Active.Bool {
		t.Error("New users are created active")
	}

	var out map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out["id"] != 123 {
		t.Errorf("Expected id 123, got %d", out["id"])
	}
}

func TestUsersController_CreateUserMissingFields(t *testing.T) {
	c := NewUsersController(&MockUserRepo{})

	body, _ := json.Marshal(createUserRequest{Username: "nopassword"})
	req := httptest.NewRequest("POST", "/api/users", bytes.NewReader(body))
	w := httptest.NewRecorder()

	c.handleCreateUser(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Result().StatusCode)
	}
}

func TestUsersController_GetUserById(t *testing.T) {
	mockUserRepo := &MockUserRepo{
		FindByIdFunc: func(id int64) (*domain.User, error) {
			if id == 1 {
				return &domain.User{ID: 1, Username: "found"}, nil
			}
			return nil, nil
		},
	}

	c := NewUsersController(mockUserRepo)

	req := httptest.NewRequest("GET", "/api/users/1", nil)
	req.SetPathValue("id", "1")
	w := httptest.NewRecorder()
	c.handleGetUserById(w, req)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Result().StatusCode)
	}
}

func TestUsersController_DeactivateUser(t *testing.T) {
	var deactivated int64
	mockUserRepo := &MockUserRepo{
		SetActiveFunc: func(id int64, active bool) error {
			if active {
				t.Error("Expected active=false")
			}
			deactivated = id
			return nil
		},
	}

	c := NewUsersController(mockUserRepo)

	req := httptest.NewRequest("POST", "/api/users/7/deactivate", nil)
	req.SetPathValue("id", "7")
	w := httptest.NewRecorder()
	c.handleDeactivateUser(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Result().StatusCode)
	}
	if deactivated != 7 {
		t.Errorf("Expected user 7 deactivated, got %d", deactivated)
	}
}
