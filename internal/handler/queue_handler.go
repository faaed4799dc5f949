package handler

import (
	"encoding/json"
	"net/http"

	"cidermill-sync-server/internal/domain"
	"cidermill-sync-server/internal/service"
	"cidermill-sync-server/pkg/response"

	"github.com/gorilla/mux"
)

type QueueHandler struct {
	queue *service.SyncQueueService
}

func NewQueueHandler(queue *service.SyncQueueService) *QueueHandler {
	return &QueueHandler{queue: queue}
}

func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	item, err := h.queue.Enqueue(&req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Created(w, item)
}

func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.List()
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}
	response.Success(w, items)
}

func (h *QueueHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateQueueItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	item, err := h.queue.Update(mux.Vars(r)["id"], &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.Success(w, item)
}

func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Remove(mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Clear(); err != nil {
		response.InternalError(w, err.Error())
		return
	}
	response.NoContent(w)
}
