package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/auth"
	"github.com/straye-as/pfmt-tracker/internal/config"
	"github.com/straye-as/pfmt-tracker/internal/http/handler"
	"github.com/straye-as/pfmt-tracker/internal/http/middleware"
)

// Handlers bundles the HTTP handlers mounted by the router
type Handlers struct {
	Health     *handler.HealthHandler
	Auth       *handler.AuthHandler
	Project    *handler.ProjectHandler
	Assignment *handler.AssignmentHandler
	File       *handler.FileHandler
	Vendor     *handler.VendorHandler
	Admin      *handler.AdminHandler
}

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	gatherer       prometheus.Gatherer
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	handlers       Handlers
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	gatherer prometheus.Gatherer,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	handlers Handlers,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		gatherer:       gatherer,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		handlers:       handlers,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	r.Get("/health", rt.handlers.Health.Live)
	r.Get("/health/ready", rt.handlers.Health.Ready)
	r.Handle("/metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Authenticate)
		r.Use(rt.rateLimiter.LimitByUser)

		r.Get("/auth/me", rt.handlers.Auth.Me)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", rt.handlers.Project.List)
			r.Post("/", rt.handlers.Project.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.handlers.Project.GetByID)
				r.Patch("/", rt.handlers.Project.Update)
				r.Delete("/", rt.handlers.Project.Delete)

				r.Route("/assignments", func(r chi.Router) {
					r.Get("/", rt.handlers.Assignment.List)
					r.Post("/", rt.handlers.Assignment.Grant)
					r.Delete("/{assignmentId}", rt.handlers.Assignment.Revoke)
				})

				r.Route("/files", func(r chi.Router) {
					r.Get("/", rt.handlers.File.List)
					r.Post("/", rt.handlers.File.Register)
					r.Post("/upload", rt.handlers.File.Upload)
				})

				r.Route("/change-orders", func(r chi.Router) {
					r.Post("/", rt.handlers.Project.AddChangeOrder)
					r.Post("/{changeOrderId}/approve", rt.handlers.Project.ApproveChangeOrder)
					r.Post("/{changeOrderId}/reject", rt.handlers.Project.RejectChangeOrder)
					r.Delete("/{changeOrderId}", rt.handlers.Project.RetireChangeOrder)
				})

				r.Delete("/funding-lines/{lineId}", rt.handlers.Project.RetireFundingLine)
			})
		})

		r.Route("/vendors", func(r chi.Router) {
			r.Get("/", rt.handlers.Vendor.List)
			r.Post("/", rt.handlers.Vendor.Create)
			r.Get("/{id}", rt.handlers.Vendor.GetByID)
			r.Patch("/{id}", rt.handlers.Vendor.Update)
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.RequireAdmin)

			r.Get("/users", rt.handlers.Auth.ListUsers)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/migration", rt.handlers.Admin.MigrationStatus)
				r.Post("/migration", rt.handlers.Admin.RunMigration)
				r.Get("/integrity", rt.handlers.Admin.Integrity)
				r.Get("/backups", rt.handlers.Admin.ListBackups)
				r.Post("/backups/restore", rt.handlers.Admin.RestoreBackup)
				r.Post("/vendors/refresh-metadata", rt.handlers.Admin.RefreshVendorMetadata)
			})
		})
	})

	return r
}
