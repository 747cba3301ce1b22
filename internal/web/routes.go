package web

import "net/http"

func (c *WebController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/login", c.handleLogin)
	mux.HandleFunc("/logout", c.handleLogout)
}
