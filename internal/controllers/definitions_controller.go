package controllers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/nexcrm/approvalflow/internal/engine"
	"github.com/nexcrm/approvalflow/internal/util"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/models"
)

// DefinitionsController exposes the workflow catalog.
type DefinitionsController struct {
	AuthController
	Manager *engine.ApprovalManager
}

func NewDefinitionsController(manager *engine.ApprovalManager, userRepo UserRepo) *DefinitionsController {
	return &DefinitionsController{Manager: manager, AuthController: AuthController{
		UserRepo: userRepo,
	}}
}

func (c *DefinitionsController) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := c.Manager.ListDefinitions()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]models.DefinitionApiResponse, 0, len(defs))
	for i := range defs {
		out = append(out, mapDefinitionToApiResponse(&defs[i]))
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func (c *DefinitionsController) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	def, err := c.Manager.GetDefinition(id)
	if err != nil {
		http.Error(w, "definition not found", http.StatusNotFound)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, mapDefinitionToApiResponse(def))
}

func (c *DefinitionsController) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDefinitionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	def := &domain.WorkflowDefinition{
		EntityType:     req.EntityType,
		Name:           req.Name,
		RangeCriterion: sql.NullString{String: req.RangeCriterion, Valid: req.RangeCriterion != ""},
	}
	if req.RangeMin != nil {
		def.RangeMin = sql.NullFloat64{Float64: *req.RangeMin, Valid: true}
	}
	if req.RangeMax != nil {
		def.RangeMax = sql.NullFloat64{Float64: *req.RangeMax, Valid: true}
	}
	for _, s := range req.Steps {
		def.Steps = append(def.Steps, domain.StepTemplate{
			StepOrder:    s.StepOrder,
			ApproverType: s.ApproverType,
			ApproverRef:  s.ApproverRef,
			CanDelegate:  s.CanDelegate,
		})
	}

	id, err := c.Manager.RegisterDefinition(def)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.CreateDefinitionResponse{ID: id})
}

func (c *DefinitionsController) handleDeactivateDefinition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := c.Manager.DeactivateDefinition(id); err != nil {
		writeEngineError(w, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func mapDefinitionToApiResponse(def *domain.WorkflowDefinition) models.DefinitionApiResponse {
	api := models.DefinitionApiResponse{
		ID:         def.ID,
		EntityType: def.EntityType,
		Name:       def.Name,
		Active:     def.Active,
		Created:    def.Created,
		Updated:    def.Updated,
	}
	if def.RangeCriterion.Valid {
		api.RangeCriterion = def.RangeCriterion.String
	}
	if def.RangeMin.Valid {
		v := def.RangeMin.Float64
		api.RangeMin = &v
	}
	if def.RangeMax.Valid {
		v := def.RangeMax.Float64
		api.RangeMax = &v
	}
	for _, s := range def.Steps {
		api.Steps = append(api.Steps, models.StepTemplateRequest{
			StepOrder:    s.StepOrder,
			ApproverType: s.ApproverType,
			ApproverRef:  s.ApproverRef,
			CanDelegate:  s.CanDelegate,
		})
	}
	return api
}
