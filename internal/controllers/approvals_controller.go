package controllers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nexcrm/approvalflow/internal/engine"
	"github.com/nexcrm/approvalflow/internal/util"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/domain"
	"github.com/nexcrm/approvalflow/pkg/approvalflow/models"
)

// DisplayNames looks up a human-readable name for a user id, for DTO
// assembly. Unknown ids map to the empty string.
type DisplayNames interface {
	DisplayName(id int64) string
}

// ApprovalsController holds dependencies for approval HTTP endpoints.
type ApprovalsController struct {
	AuthController
	Manager *engine.ApprovalManager
	Names   DisplayNames
}

func NewApprovalsController(manager *engine.ApprovalManager, names DisplayNames, userRepo UserRepo) *ApprovalsController {
	return &ApprovalsController{Manager: manager, Names: names, AuthController: AuthController{
		UserRepo: userRepo,
	}}
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, engine.ErrDuplicateApproval), errors.Is(err, engine.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrConfiguration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("Approval operation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (c *ApprovalsController) handleStartApproval(w http.ResponseWriter, r *http.Request) {
	var req models.StartApprovalRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	rec, err := c.Manager.StartApproval(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, models.StartApprovalResponse{ID: rec.ID})
}

func (c *ApprovalsController) handleGetApprovalByEntity(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("entityType")
	entityID := r.PathValue("entityId")
	if entityType == "" || entityID == "" {
		http.Error(w, "entityType and entityId are required", http.StatusBadRequest)
		return
	}

	rec, err := c.Manager.GetApprovalRecord(entityType, entityID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if rec == nil {
		http.Error(w, "approval record not found", http.StatusNotFound)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, c.mapRecordToApiResponse(rec))
}

func (c *ApprovalsController) handleGetCurrentStep(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	step, err := c.Manager.CurrentStep(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if step == nil {
		http.Error(w, "record is terminal", http.StatusNotFound)
		return
	}
	if len(step.ApproverIDs) == 1 {
		step.ApproverName = c.Names.DisplayName(step.ApproverIDs[0])
	}
	util.WriteJSONResponse(w, http.StatusOK, step)
}

func (c *ApprovalsController) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := c.Manager.History(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]models.HistoryApiEntry, 0, len(entries))
	for _, e := range entries {
		api := models.HistoryApiEntry{
			RecordID:  e.RecordID,
			StepOrder: e.StepOrder,
			Action:    e.Action,
			ActorID:   e.ActorID,
			ActorName: c.Names.DisplayName(e.ActorID),
			Comment:   e.Comment,
			Sequence:  e.Sequence,
			DateTime:  e.DateTime,
		}
		if e.DelegateToID.Valid {
			api.DelegateToID = e.DelegateToID.Int64
		}
		out = append(out, api)
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func (c *ApprovalsController) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := util.DecodeJSONBody[models.ActionRequest](r)
	if err != nil || req.ActorID == 0 {
		http.Error(w, "actorId is required", http.StatusBadRequest)
		return
	}
	rec, err := c.Manager.ApproveStep(r.Context(), id, req.ActorID, req.Comment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, c.mapRecordToApiResponse(rec))
}

func (c *ApprovalsController) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := util.DecodeJSONBody[models.ActionRequest](r)
	if err != nil || req.ActorID == 0 {
		http.Error(w, "actorId is required", http.StatusBadRequest)
		return
	}
	rec, err := c.Manager.RejectStep(r.Context(), id, req.ActorID, req.Comment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, c.mapRecordToApiResponse(rec))
}

func (c *ApprovalsController) handleDelegate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := util.DecodeJSONBody[models.DelegateRequest](r)
	if err != nil || req.ActorID == 0 || req.DelegateToID == 0 {
		http.Error(w, "actorId and delegateToId are required", http.StatusBadRequest)
		return
	}
	rec, err := c.Manager.DelegateStep(r.Context(), id, req.ActorID, req.DelegateToID, req.Comment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, c.mapRecordToApiResponse(rec))
}

func (c *ApprovalsController) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := util.DecodeJSONBody[models.WithdrawRequest](r)
	if err != nil || req.InitiatorID == 0 {
		http.Error(w, "initiatorId is required", http.StatusBadRequest)
		return
	}
	rec, err := c.Manager.WithdrawApproval(r.Context(), id, req.InitiatorID, req.Comment)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, c.mapRecordToApiResponse(rec))
}

// mapRecordToApiResponse assembles the response DTO field by field from the
// record plus targeted display-name lookups.
func (c *ApprovalsController) mapRecordToApiResponse(rec *domain.ApprovalRecord) models.ApprovalApiResponse {
	steps, err := models.DecodeSteps(rec.StepsJSON)
	if err != nil {
		slog.Warn("Failed to parse step snapshot", "record_id", rec.ID, "error", err)
	}
	api := models.ApprovalApiResponse{
		ID:               rec.ID,
		EntityType:       rec.EntityType,
		EntityID:         rec.EntityID,
		WorkflowID:       rec.WorkflowID,
		Status:           rec.Status,
		CurrentStepOrder: rec.CurrentStepOrder,
		InitiatorID:      rec.InitiatorID,
		InitiatorName:    c.Names.DisplayName(rec.InitiatorID),
		Scope:            rec.Scope,
		Steps:            steps,
		Created:          rec.Created,
		Modified:         rec.Modified,
	}
	if rec.DelegateID.Valid {
		api.DelegateID = rec.DelegateID.Int64
	}
	return api
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "id is an integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
