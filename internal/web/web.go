package web

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/nexcrm/approvalflow/internal/config"
	"github.com/nexcrm/approvalflow/internal/controllers"

	"golang.org/x/crypto/bcrypt"
)

// WebController serves the browser login flow; API clients authenticate with
// X-API-Key instead.
type WebController struct {
	controllers.AuthController
}

func NewWebController(userRepo controllers.UserRepo) *WebController {
	return &WebController{AuthController: controllers.AuthController{UserRepo: userRepo}}
}

func (c *WebController) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><form method="POST" action="/login">
			<input name="username" placeholder="username" autofocus>
			<input name="password" type="password" placeholder="password">
			<button type="submit">Login</button>
			</form></body></html>`))
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	u, err := c.UserRepo.FindByUsername(username)
	if err != nil || u == nil {
		slog.Warn("Login failed, unknown user", "username", username)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !u.Active.Valid || !u.Active.Bool {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		slog.Warn("Login failed, bad password", "username", username)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	sessionID := newSessionID()
	expiryHours := config.GetSystemSettingInteger(config.WEB_SESSION_EXPIRY_HOURS)
	expiry := time.Now().UTC().Add(time.Duration(expiryHours) * time.Hour)
	if err := c.UserRepo.UpdateSession(u.ID, sessionID, expiry); err != nil {
		slog.Error("Failed to persist session", "username", username, "error", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "sessionId",
		Value:    sessionID,
		Path:     "/",
		Expires:  expiry,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/api/definitions", http.StatusSeeOther)
}

func (c *WebController) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("sessionId"); err == nil && cookie.Value != "" {
		if err := c.UserRepo.ClearSessionBySessionID(cookie.Value); err != nil {
			slog.Error("Failed to clear session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: "sessionId", Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func newSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		slog.Error("Failed to generate session id", "error", err)
	}
	return hex.EncodeToString(b)
}
