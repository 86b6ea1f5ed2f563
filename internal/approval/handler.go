package approval

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/approvalflow/approval-gateway/internal/auth"
	"github.com/approvalflow/approval-gateway/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, q ListQuery) ([]Request, error)
	Get(ctx context.Context, id int64) (*Request, error)
	History(ctx context.Context, id int64) ([]HistoryEntry, error)
	ValidateOrder(ctx context.Context, orderNumber string) (*OrderValidation, error)
	Submit(ctx context.Context, user *auth.User, dto SubmitDTO) (*Request, error)
	Cancel(ctx context.Context, user *auth.User, id int64) (*Request, error)
	Resubmit(ctx context.Context, user *auth.User, id int64, dto ResubmitDTO) (*Request, error)
	Decide(ctx context.Context, user *auth.User, id int64, dto DecisionDTO) (*Request, error)
	GrantEdit(ctx context.Context, user *auth.User, id int64) (*Request, error)
	Archive(ctx context.Context, user *auth.User, dto ArchiveDTO) error
	Restore(ctx context.Context, user *auth.User, id int64) (*Request, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: base, Service: service}
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := ListQuery{
		Status: r.URL.Query().Get("status"),
		Scope:  r.URL.Query().Get("scope"),
		Limit:  20,
	}
	if q.Scope == "" {
		q.Scope = "mine"
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			q.Limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			q.Offset = o
		}
	}

	requests, err := h.Service.List(r.Context(), q)
	if err != nil {
		h.Logger.Error("ListRequests: service error", "error", err, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, requests)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	request, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	entries, err := h.Service.History(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) ValidateOrder(w http.ResponseWriter, r *http.Request) {
	var dto struct {
		OrderNumber string `json:"order_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.ValidateOrder(r.Context(), dto.OrderNumber)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto SubmitDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.Service.Submit(r.Context(), user, dto)
	if err != nil {
		h.Logger.Error("SubmitRequest: service error", "error", err, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("SubmitRequest: request created",
		"request_id", created.ID,
		"user_id", user.ID,
		"amount", created.Amount,
		"status", created.Status)
	h.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	updated, err := h.Service.Cancel(r.Context(), user, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) ResubmitRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	var dto ResubmitDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.Service.Resubmit(r.Context(), user, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	var dto DecisionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.Service.Decide(r.Context(), user, id, dto)
	if err != nil {
		h.Logger.Error("DecideRequest: service error", "error", err, "request_id", id, "user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) GrantEdit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	updated, err := h.Service.GrantEdit(r.Context(), user, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) ArchiveRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var dto ArchiveDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Service.Archive(r.Context(), user, dto); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) RestoreRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	updated, err := h.Service.Restore(r.Context(), user, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, updated)
}
