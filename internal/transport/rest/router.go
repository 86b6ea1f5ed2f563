package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	app "github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/approval"
	"github.com/approvalflow/approval-gateway/internal/audit"
	"github.com/approvalflow/approval-gateway/internal/auth"
	"github.com/approvalflow/approval-gateway/internal/obs"
	"github.com/approvalflow/approval-gateway/internal/profile"
	"github.com/approvalflow/approval-gateway/internal/refdata"
	"github.com/approvalflow/approval-gateway/internal/transport/middleware"
	"github.com/approvalflow/approval-gateway/internal/transport/swagger"
	"github.com/approvalflow/approval-gateway/internal/upstream"
)

// Handlers bundles everything the route table needs.
type Handlers struct {
	Auth     *auth.Handler
	Approval *approval.Handler
	RefData  *refdata.Handler
	Profile  *profile.Handler
	Audit    *audit.Handler
	Pages    *PagesHandler
}

func RegisterAllRoutes(router *chi.Mux, cfg *app.Config, db *sql.DB, api *upstream.Client, h Handlers, loginLimiter *middleware.LoginRateLimiter, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db, api)

	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	if cfg.Observability.Metrics.Enabled {
		router.Use(obs.Instrument)
	}

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())
	if cfg.Observability.Metrics.Enabled {
		router.Handle(cfg.Observability.Metrics.Path, obs.Handler())
	}

	// Browser page routes. Anonymous visitors are redirected to /login;
	// authenticated users without the role land on /unauthorized.
	router.Get("/login", h.Pages.Login)
	router.Get("/unauthorized", h.Pages.Unauthorized)
	router.Group(func(pr chi.Router) {
		pr.Use(h.Auth.PageMiddleware)
		pr.Get("/", h.Pages.Root)
		pr.Get("/dashboard", h.Pages.Dashboard)

		pr.Group(func(mr chi.Router) {
			mr.Use(middleware.RequireRolePage("/unauthorized", auth.RoleManager, auth.RoleAdmin))
			mr.Get("/manager", h.Pages.Manager)
		})

		pr.Group(func(ar chi.Router) {
			ar.Use(middleware.RequireRolePage("/unauthorized", auth.RoleAdmin))
			ar.Get("/admin", h.Pages.Admin)
		})
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Auth routes. Login is throttled per client IP.
		r.Route("/auth", func(sr chi.Router) {
			sr.With(loginLimiter.Middleware).Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.Refresh)
			sr.Post("/logout", h.Auth.Logout)
			sr.Get("/session", h.Auth.SessionStatus)
			sr.Post("/activity", h.Auth.Activity)
		})

		// Protected routes that require an authenticated session.
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.Middleware)

			pr.Get("/users/me", h.Auth.Me)

			pr.Get("/reference/{catalog}", h.RefData.ListCatalog)

			pr.Route("/approvals", func(er chi.Router) {
				er.Get("/", h.Approval.ListRequests)
				er.Post("/", h.Approval.SubmitRequest)
				er.Post("/validate-order", h.Approval.ValidateOrder)
				er.Get("/{id}", h.Approval.GetRequest)
				er.Get("/{id}/history", h.Approval.GetHistory)
				er.Post("/{id}/cancel", h.Approval.CancelRequest)
				er.Post("/{id}/resubmit", h.Approval.ResubmitRequest)

				// Manager routes.
				er.Group(func(mr chi.Router) {
					mr.Use(middleware.RequireRole(auth.RoleManager, auth.RoleAdmin))
					mr.Post("/{id}/decision", h.Approval.DecideRequest)
					mr.Post("/{id}/grant-edit", h.Approval.GrantEdit)
				})

				// Admin routes.
				er.Group(func(ar chi.Router) {
					ar.Use(middleware.RequireRole(auth.RoleAdmin))
					ar.Post("/archive", h.Approval.ArchiveRequests)
					ar.Post("/{id}/restore", h.Approval.RestoreRequest)
				})
			})

			// Admin-only administration surface.
			pr.Group(func(ar chi.Router) {
				ar.Use(middleware.RequireRole(auth.RoleAdmin))
				ar.Get("/users", h.Profile.ListUsers)
			ar.Get("/users/{id}", h.Profile.GetUser)
				ar.Post("/profiles/assign", h.Profile.AssignProfile)
				ar.Post("/profiles/revoke", h.Profile.RevokeProfile)
				ar.Get("/audit", h.Audit.ListEntries)
			})
		})
	})
}
