package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"cidermill-sync-server/internal/domain"
	"cidermill-sync-server/internal/service"
	"cidermill-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type DraftHandler struct {
	drafts   *service.DraftService
	validate *validator.Validate
}

func NewDraftHandler(drafts *service.DraftService) *DraftHandler {
	return &DraftHandler{
		drafts:   drafts,
		validate: validator.New(),
	}
}

func (h *DraftHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePressRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	run, err := h.drafts.Create(&req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Created(w, run)
}

func (h *DraftHandler) List(w http.ResponseWriter, r *http.Request) {
	runs, err := h.drafts.List()
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}
	response.Success(w, runs)
}

func (h *DraftHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, err := h.drafts.Get(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Success(w, run)
}

func (h *DraftHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdatePressRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	run, err := h.drafts.Update(mux.Vars(r)["id"], &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Success(w, run)
}

func (h *DraftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.drafts.Delete(mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *DraftHandler) AddLoad(w http.ResponseWriter, r *http.Request) {
	var req domain.AddLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	load, err := h.drafts.AddLoad(mux.Vars(r)["id"], &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Created(w, load)
}

func (h *DraftHandler) UpdateLoad(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	vars := mux.Vars(r)
	load, err := h.drafts.UpdateLoad(vars["id"], vars["loadId"], &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Success(w, load)
}

func (h *DraftHandler) RemoveLoad(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.drafts.RemoveLoad(vars["id"], vars["loadId"]); err != nil {
		writeServiceError(w, err)
		return
	}
	response.NoContent(w)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *service.ValidationError
	var transitionErr *service.InvalidTransitionError

	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.As(err, &validationErr):
		response.BadRequest(w, err.Error())
	case errors.As(err, &transitionErr):
		response.Conflict(w, err.Error())
	default:
		response.InternalError(w, err.Error())
	}
}
