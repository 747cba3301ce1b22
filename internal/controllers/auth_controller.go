package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/nexcrm/approvalflow/pkg/approvalflow/core"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
)

// UserRepo defines the interface for user persistence, matching
// repository.UserRepository.
type UserRepo interface {
	FindBySessionID(sessionID string, now time.Time) (*domain.User, error)
	FindByApiKey(apiKey string) (*domain.User, error)
	FindByUsername(username string) (*domain.User, error)
	FindById(id int64) (*domain.User, error)
	FindAll() ([]domain.User, error)
	Save(user *domain.User) (int64, error)
	SetActive(id int64, active bool) error
	UpdateSession(userID int64, sessionID string, expiry time.Time) error
	ClearSessionBySessionID(sessionID string) error
}

type AuthController struct {
	UserRepo UserRepo
}

func (wc *AuthController) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			next(w, r)
			return
		}
		// 1) Try session cookie
		if c, err := r.Cookie("sessionId"); err == nil && c.Value != "" {
			u, err := wc.UserRepo.FindBySessionID(c.Value, time.Now().UTC())
			if err == nil && u != nil {
				ctx := context.WithValue(r.Context(), core.CtxKeyUsername, u.Username)
				r = r.WithContext(ctx)
				next(w, r)
				return
			}
		}
		// 2) Try API key from headers
		// Supported headers: X-API-Key: <key>
		apiKey := r.Header.Get("X-API-Key")
		if apiKey != "" {
			u, err := wc.UserRepo.FindByApiKey(apiKey)
			if err == nil && u != nil {
				ctx := context.WithValue(r.Context(), core.CtxKeyUsername, u.Username)
				r = r.WithContext(ctx)
				next(w, r)
				return
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		// Otherwise redirect to login for browser flows
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}
