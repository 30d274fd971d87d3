package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sgp-project/sgp/internal/app"
	"github.com/sgp-project/sgp/internal/audit"
	"github.com/sgp-project/sgp/internal/backlog"
	"github.com/sgp-project/sgp/internal/observability"
	"github.com/sgp-project/sgp/internal/platform/cache"
	"github.com/sgp-project/sgp/internal/platform/db"
	"github.com/sgp-project/sgp/internal/projects"
	"github.com/sgp-project/sgp/internal/rbac"
	"github.com/sgp-project/sgp/internal/shared"
	"github.com/sgp-project/sgp/internal/users"
	"github.com/sgp-project/sgp/jobs"
)

// membershipAdapter narrows the rbac repository to the membership question
// the backlog asks.
type membershipAdapter struct {
	repo *rbac.Repository
}

func (a membershipAdapter) IsMember(ctx context.Context, userID, projectID int64) (bool, error) {
	_, err := a.repo.GetMembership(ctx, userID, projectID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(pool)
	permCache := rbac.NewPermissionCache(redisClient, cfg.PermCacheTTL)
	checker := rbac.NewChecker(rbacRepo, permCache)
	rbacService := rbac.NewService(rbacRepo, auditLogger, permCache)
	rbacMiddleware := rbac.Middleware{Checker: checker, Logger: logger, Metrics: metrics}
	rbacHandler := rbac.NewHandler(logger, rbacService, rbacMiddleware)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, auditLogger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	projectsRepo := projects.NewRepository(pool)
	projectsService := projects.NewService(projectsRepo, rbacService, auditLogger)
	projectsHandler := projects.NewHandler(logger, projectsService, rbacMiddleware)

	backlogRepo := backlog.NewRepository(pool)
	backlogService := backlog.NewService(backlogRepo, membershipAdapter{repo: rbacRepo}, auditLogger)
	backlogHandler := backlog.NewHandler(logger, backlogService, rbacMiddleware)

	auditHandler := audit.NewHandler(logger, audit.NewRepository(pool), rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		UsersHandler:    usersHandler,
		ProjectsHandler: projectsHandler,
		RBACHandler:     rbacHandler,
		BacklogHandler:  backlogHandler,
		AuditHandler:    auditHandler,
		JobsHandler:     jobsHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
