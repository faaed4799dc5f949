package handler

import (
	"encoding/json"
	"net/http"

	"cidermill-sync-server/internal/domain"
	"cidermill-sync-server/internal/middleware"
	"cidermill-sync-server/internal/service"
	"cidermill-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type SyncHandler struct {
	syncService     *service.SyncService
	conflictService *service.ConflictService
	validate        *validator.Validate
}

func NewSyncHandler(syncService *service.SyncService, conflictService *service.ConflictService) *SyncHandler {
	return &SyncHandler{
		syncService:     syncService,
		conflictService: conflictService,
		validate:        validator.New(),
	}
}

// SyncPressRun runs one full sync attempt for a press run under the strategy
// named in the body.
func (h *SyncHandler) SyncPressRun(w http.ResponseWriter, r *http.Request) {
	operatorID := middleware.GetOperatorID(r)
	if operatorID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req domain.SyncPressRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = middleware.GetDeviceID(r)
	}

	outcome, err := h.syncService.SyncPressRun(r.Context(), mux.Vars(r)["id"], req.Strategy, operatorID, deviceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Success(w, outcome)
}

// Detect is the dry-run endpoint: report conflicts without resolving.
func (h *SyncHandler) Detect(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.syncService.Detect(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Success(w, map[string]interface{}{
		"press_run_id": mux.Vars(r)["id"],
		"conflicts":    conflicts,
	})
}

func (h *SyncHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.conflictService.ListPending()
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}
	response.Success(w, conflicts)
}

func (h *SyncHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	operatorID := middleware.GetOperatorID(r)
	if operatorID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req domain.ManualResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	conflict, err := h.conflictService.ResolveManually(mux.Vars(r)["id"], &req, operatorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Success(w, conflict)
}

func (h *SyncHandler) ClearResolvedConflicts(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.conflictService.ClearResolved()
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}
	response.Success(w, map[string]int{"cleared": cleared})
}
