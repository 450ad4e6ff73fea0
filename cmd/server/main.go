package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appcommand "github.com/invest/backend/internal/application/command"
	appinvest "github.com/invest/backend/internal/application/invest"
	"github.com/invest/backend/internal/domain/audit"
	"github.com/invest/backend/internal/domain/ledger"
	"github.com/invest/backend/internal/domain/statemachine"
	"github.com/invest/backend/internal/infrastructure/cache"
	"github.com/invest/backend/internal/infrastructure/config"
	"github.com/invest/backend/internal/infrastructure/logger"
	"github.com/invest/backend/internal/infrastructure/persistence"
	"github.com/invest/backend/internal/infrastructure/telemetry"
	"github.com/invest/backend/internal/interfaces/http/handler"
	"github.com/invest/backend/internal/interfaces/http/middleware"
	"github.com/invest/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting invest backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Development convenience; production schemas come from cmd/migrate
	if cfg.App.Env == "development" {
		if err := persistence.AutoMigrate(db.DB); err != nil {
			log.Fatal("Auto-migration failed", zap.Error(err))
		}
	}

	// Initialize repositories
	idempotencyRepo := persistence.NewGormIdempotencyRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	auditEventRepo := persistence.NewGormAuditEventRepository(db.DB)
	anchorRepo := persistence.NewGormAnchorRepository(db.DB)
	applicationRepo := persistence.NewGormApplicationRepository(db.DB)
	offeringRepo := persistence.NewGormOfferingRepository(db.DB)
	subscriptionRepo := persistence.NewGormSubscriptionRepository(db.DB)
	milestoneRepo := persistence.NewGormMilestoneRepository(db.DB)
	trancheRepo := persistence.NewGormTrancheRepository(db.DB)

	// Core collaborators shared by every workflow service
	registry := statemachine.NewRegistry()
	auditLog := audit.NewLog(auditEventRepo)
	anchorService := audit.NewAnchorService(anchorRepo)
	ledgerService := ledger.NewService(ledgerRepo)
	executor := persistence.NewTxExecutor(db.DB)

	// Replay cache and the command orchestrator in front of every mutation
	replayCache := cache.NewReplayCache(cfg.Redis.Enabled, cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	defer func() {
		if err := replayCache.Close(); err != nil {
			log.Error("Error closing replay cache", zap.Error(err))
		}
	}()
	orchestrator := appcommand.NewOrchestrator(idempotencyRepo, executor, replayCache, cfg.Command.ReplayCacheTTL, log)

	// Initialize application services
	applicationService := appinvest.NewApplicationService(applicationRepo, registry, auditLog, log)
	offeringService := appinvest.NewOfferingService(offeringRepo, registry, auditLog, anchorService, log)
	subscriptionService := appinvest.NewSubscriptionService(subscriptionRepo, offeringRepo, registry, ledgerService, auditLog, log)
	milestoneService := appinvest.NewMilestoneService(milestoneRepo, registry, auditLog, log)
	trancheService := appinvest.NewTrancheService(trancheRepo, milestoneRepo, offeringRepo, registry, ledgerService, auditLog, log)

	// Initialize HTTP handlers
	applicationHandler := handler.NewApplicationHandler(orchestrator, applicationService)
	offeringHandler := handler.NewOfferingHandler(orchestrator, offeringService)
	subscriptionHandler := handler.NewSubscriptionHandler(orchestrator, subscriptionService)
	milestoneHandler := handler.NewMilestoneHandler(orchestrator, milestoneService)
	trancheHandler := handler.NewTrancheHandler(orchestrator, trancheService)
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	auditHandler := handler.NewAuditHandler(auditLog, anchorService)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(log))
	engine.Use(middleware.RequestLogger(log))
	engine.Use(middleware.Identity())

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(applicationHandler).
		Register(offeringHandler).
		Register(subscriptionHandler).
		Register(milestoneHandler).
		Register(trancheHandler).
		Register(ledgerHandler).
		Register(auditHandler)
	r.Setup()

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}
