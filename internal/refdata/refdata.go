package refdata

import (
	"context"
	"fmt"
	"log/slog"

	app "github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/cache"
	"github.com/approvalflow/approval-gateway/internal/upstream"
)

// Item is one row of a reference catalog. All nine catalogs share the
// shape; Code is empty where a catalog has no short code.
type Item struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	IsActive bool   `json:"is_active"`
}

// Catalog names the reference listings the upstream exposes. The upstream
// scopes every listing to the calling session's profile, so cache keys are
// per session.
type Catalog string

const (
	CatalogCompanies        Catalog = "companies"
	CatalogBranches         Catalog = "branches"
	CatalogDepartments      Catalog = "departments"
	CatalogCategories       Catalog = "categories"
	CatalogSuppliers        Catalog = "suppliers"
	CatalogProjects         Catalog = "projects"
	CatalogRequesters       Catalog = "requesters"
	CatalogPaymentMethods   Catalog = "payment-methods"
	CatalogApprovalStatuses Catalog = "approval-statuses"
)

// Service reads reference catalogs through the staleness-window cache.
// Catalogs change rarely, so a stale read serving the cached copy while a
// background refetch runs is the intended behavior, not a compromise.
type Service struct {
	api    *upstream.Client
	store  *cache.Store[[]Item]
	logger *slog.Logger
}

func NewService(api *upstream.Client, cfg app.CacheConfig, logger *slog.Logger) *Service {
	return &Service{
		api:    api,
		store:  cache.New[[]Item](cfg.StaleAfter, logger),
		logger: logger,
	}
}

func (s *Service) endpoint(catalog Catalog) (string, error) {
	switch catalog {
	case CatalogCompanies:
		return s.api.EP.RefCompanies(), nil
	case CatalogBranches:
		return s.api.EP.RefBranches(), nil
	case CatalogDepartments:
		return s.api.EP.RefDepartments(), nil
	case CatalogCategories:
		return s.api.EP.RefCategories(), nil
	case CatalogSuppliers:
		return s.api.EP.RefSuppliers(), nil
	case CatalogProjects:
		return s.api.EP.RefProjects(), nil
	case CatalogRequesters:
		return s.api.EP.RefRequesters(), nil
	case CatalogPaymentMethods:
		return s.api.EP.RefPaymentMethods(), nil
	case CatalogApprovalStatuses:
		return s.api.EP.RefApprovalStatuses(), nil
	}
	return "", app.NewNotFoundError("unknown reference catalog", app.ErrCodeValidationFailed)
}

// List returns one catalog for the calling session.
func (s *Service) List(ctx context.Context, catalog Catalog) ([]Item, error) {
	endpoint, err := s.endpoint(catalog)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("refdata/%s/%s", app.SessionIDFromContext(ctx), catalog)
	return s.store.Get(ctx, key, func(ctx context.Context) ([]Item, error) {
		var out []Item
		if err := s.api.Get(ctx, endpoint, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// Invalidate drops a session's cached catalogs, used when profile
// assignments change under the session's feet.
func (s *Service) Invalidate(ctx context.Context) {
	s.store.InvalidatePrefix("refdata/" + app.SessionIDFromContext(ctx) + "/")
}
