package refdata

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/approvalflow/approval-gateway/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, catalog Catalog) ([]Item, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: base, Service: service}
}

// ListCatalog serves GET /reference/{catalog}. The submit view fires
// several of these in parallel; each catalog populates independently.
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := Catalog(chi.URLParam(r, "catalog"))

	items, err := h.Service.List(r.Context(), catalog)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, items)
}
