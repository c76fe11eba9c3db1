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

	"github.com/veris-bms/veris/internal/app"
	"github.com/veris-bms/veris/internal/audit"
	"github.com/veris-bms/veris/internal/auth"
	"github.com/veris-bms/veris/internal/commission"
	"github.com/veris-bms/veris/internal/invoices"
	"github.com/veris-bms/veris/internal/masterdata/clients"
	"github.com/veris-bms/veris/internal/masterdata/companies"
	"github.com/veris-bms/veris/internal/masterdata/files"
	"github.com/veris-bms/veris/internal/observability"
	"github.com/veris-bms/veris/internal/platform/cache"
	"github.com/veris-bms/veris/internal/platform/db"
	"github.com/veris-bms/veris/internal/rbac"
	"github.com/veris-bms/veris/internal/shared"
	"github.com/veris-bms/veris/internal/users"
	"github.com/veris-bms/veris/jobs"
)

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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "veris_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	rbacService := rbac.NewService(dbpool)
	if err := rbacService.SyncPermissions(ctx, shared.BillingScopes()); err != nil {
		logger.Warn("sync billing permissions", slog.Any("error", err))
	}
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	usersService := users.NewService(users.NewRepository(dbpool))
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	clientsService := clients.NewService(clients.NewRepository(dbpool))
	clientsHandler := clients.NewHandler(logger, clientsService, rbacMiddleware)

	companiesService := companies.NewService(companies.NewRepository(dbpool))
	companiesHandler := companies.NewHandler(logger, companiesService, rbacMiddleware)

	filesService := files.NewService(files.NewRepository(dbpool))
	filesHandler := files.NewHandler(logger, filesService, rbacMiddleware)

	tierRepo := commission.NewRepository(dbpool)
	tierService := commission.NewService(tierRepo, logger)
	tierHandler := commission.NewHandler(logger, tierService, rbacMiddleware)

	rateResolver := commission.NewCachedResolver(commission.NewResolver(tierRepo), redisClient, 5*time.Minute, logger)
	tierService.SetRateInvalidator(rateResolver)

	invoiceService := invoices.NewService(
		invoices.NewRepository(dbpool),
		rateResolver,
		app.RateSource{
			Clients:   clientsService,
			Users:     usersService,
			Companies: companiesService,
			Files:     filesService,
		},
		auditLogger,
		logger,
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	invoiceService.SetDigestEnqueuer(jobClient)
	invoiceService.SetSettlementObserver(metrics)

	invoicesHandler := invoices.NewHandler(logger, invoiceService, invoices.AuthzScopeBuilder{
		Perms:  rbacService,
		Admins: usersService,
	}, rbacMiddleware)

	auditService := audit.NewService(dbpool)
	auditHandler := audit.NewHandler(logger, auditService, rbacMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		AuthHandler:       authHandler,
		UsersHandler:      usersHandler,
		ClientsHandler:    clientsHandler,
		CompaniesHandler:  companiesHandler,
		FilesHandler:      filesHandler,
		CommissionHandler: tierHandler,
		InvoicesHandler:   invoicesHandler,
		AuditHandler:      auditHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
