package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *ApprovalsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/approvals", c.RequireAuth(c.handleStartApproval))
	mux.HandleFunc("GET /api/approvals/{entityType}/{entityId}", c.RequireAuth(c.handleGetApprovalByEntity))
	mux.HandleFunc("GET /api/approvals/{id}/step", c.RequireAuth(c.handleGetCurrentStep))
	mux.HandleFunc("GET /api/approvals/{id}/history", c.RequireAuth(c.handleGetHistory))
	mux.HandleFunc("POST /api/approvals/{id}/approve", c.RequireAuth(c.handleApprove))
	mux.HandleFunc("POST /api/approvals/{id}/reject", c.RequireAuth(c.handleReject))
	mux.HandleFunc("POST /api/approvals/{id}/delegate", c.RequireAuth(c.handleDelegate))
	mux.HandleFunc("POST /api/approvals/{id}/withdraw", c.RequireAuth(c.handleWithdraw))
}

func (c *DefinitionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/definitions", c.RequireAuth(c.handleListDefinitions))
	mux.HandleFunc("POST /api/definitions", c.RequireAuth(c.handleCreateDefinition))
	mux.HandleFunc("GET /api/definitions/{id}", c.RequireAuth(c.handleGetDefinition))
	mux.HandleFunc("POST /api/definitions/{id}/deactivate", c.RequireAuth(c.handleDeactivateDefinition))
}

func (c *UsersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users", c.RequireAuth(c.handleGetUsers))
	mux.HandleFunc("POST /api/users", c.RequireAuth(c.handleCreateUser))
	mux.HandleFunc("GET /api/users/{id}", c.RequireAuth(c.handleGetUserById))
	mux.HandleFunc("POST /api/users/{id}/deactivate", c.RequireAuth(c.handleDeactivateUser))
}
