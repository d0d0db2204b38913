package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/auth"
	"github.com/straye-as/pfmt-tracker/internal/config"
	"github.com/straye-as/pfmt-tracker/internal/http/handler"
	"github.com/straye-as/pfmt-tracker/internal/http/middleware"
	"github.com/straye-as/pfmt-tracker/internal/http/router"
	"github.com/straye-as/pfmt-tracker/internal/jobs"
	"github.com/straye-as/pfmt-tracker/internal/logger"
	"github.com/straye-as/pfmt-tracker/internal/metrics"
	"github.com/straye-as/pfmt-tracker/internal/migration"
	"github.com/straye-as/pfmt-tracker/internal/repository"
	"github.com/straye-as/pfmt-tracker/internal/service"
	"github.com/straye-as/pfmt-tracker/internal/storage"
	"github.com/straye-as/pfmt-tracker/internal/store"
)

// @title PFMT Tracker API
// @version 1.0
// @description Capital project tracker backed by a single JSON document
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token

const assignmentExpiryTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	store.UseNumericMoney()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	// In development secrets come from the environment, elsewhere from Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	fs := afero.NewOsFs()
	documentStore := store.New(cfg.Store.Path, fs, log, store.WithMetrics(metrics.NewStoreMetrics(registry)))
	if err := documentStore.Read(true); err != nil {
		return fmt.Errorf("failed to read document %s: %w", cfg.Store.Path, err)
	}
	log.Info("Document store loaded", zap.String("path", documentStore.Path()))

	backups, err := storage.NewStorage(&cfg.Backup, fs, log)
	if err != nil {
		return fmt.Errorf("failed to initialize backup storage: %w", err)
	}
	log.Info("Backup storage initialized", zap.String("mode", cfg.Backup.Mode))

	manager := migration.NewManager(documentStore, log)
	runner := migration.NewRunner(documentStore, manager, backups, log)
	if cfg.Store.AutoMigrate {
		needed, err := manager.CheckMigrationNeeded(ctx)
		if err != nil {
			return fmt.Errorf("failed to inspect document: %w", err)
		}
		if needed {
			result, err := runner.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("startup migration failed: %w", err)
			}
			log.Info("Startup migration finished", zap.String("backup", result.Backup))
		}
	} else if needed, err := manager.CheckMigrationNeeded(ctx); err != nil {
		return fmt.Errorf("failed to inspect document: %w", err)
	} else if needed {
		log.Warn("Document is in the legacy shape; writes answer 503 until it is migrated")
	}

	repos := repository.NewRepositories(documentStore, log)

	accessService := service.NewAccessControlService(repos.Users, repos.Projects, repos.Assignments, log)
	projectService := service.NewProjectService(repos, accessService, log)
	assignmentService := service.NewAssignmentService(repos, accessService, log)
	fileService := service.NewFileService(repos, accessService, log)
	vendorService := service.NewVendorService(repos.Vendors, repos.Users, log)

	tokens, err := auth.NewTokenManager(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to configure tokens: %w", err)
	}
	authMiddleware := auth.NewMiddleware(tokens, repos.Users, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	rt := router.NewRouter(cfg, log, registry, authMiddleware, rateLimiter, router.Handlers{
		Health:     handler.NewHealthHandler(documentStore, manager, log),
		Auth:       handler.NewAuthHandler(repos.Users, accessService, log),
		Project:    handler.NewProjectHandler(projectService, log),
		Assignment: handler.NewAssignmentHandler(assignmentService, log),
		File:       handler.NewFileHandler(fileService, backups, cfg.Server.MaxUploadMB, log),
		Vendor:     handler.NewVendorHandler(vendorService, log),
		Admin:      handler.NewAdminHandler(documentStore, manager, runner, vendorService, log),
	})

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(log, metrics.NewJobMetrics(registry))

		if err := jobs.RegisterAssignmentExpiryJob(
			scheduler,
			assignmentService,
			log,
			cfg.Jobs.AssignmentExpiryCron,
			assignmentExpiryTimeout,
			true,
		); err != nil {
			return fmt.Errorf("failed to register assignment expiry job: %w", err)
		}

		snapshotJob := jobs.NewDocumentSnapshotJob(documentStore, vendorService, backups, log, jobs.DefaultSnapshotRetention)
		if err := jobs.RegisterDocumentSnapshotJob(scheduler, snapshotJob, cfg.Jobs.SnapshotCron); err != nil {
			return fmt.Errorf("failed to register snapshot job: %w", err)
		}

		scheduler.Start()
		log.Info("Scheduler started", zap.Strings("jobs", scheduler.GetJobNames()))
	} else {
		log.Info("Background jobs disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      http.TimeoutHandler(rt.Setup(), cfg.Server.RequestTimeoutDuration(), `{"type":"service_unavailable","title":"Service Unavailable","status":503,"detail":"Request timed out"}`),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
