package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/seat-enrollment-api/api/swagger"
	"github.com/noah-isme/seat-enrollment-api/internal/broadcast"
	"github.com/noah-isme/seat-enrollment-api/internal/eligibility"
	"github.com/noah-isme/seat-enrollment-api/internal/enrollment"
	"github.com/noah-isme/seat-enrollment-api/internal/handler"
	"github.com/noah-isme/seat-enrollment-api/internal/middleware"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
	"github.com/noah-isme/seat-enrollment-api/internal/repository"
	"github.com/noah-isme/seat-enrollment-api/internal/service"
	"github.com/noah-isme/seat-enrollment-api/pkg/cache"
	"github.com/noah-isme/seat-enrollment-api/pkg/config"
	"github.com/noah-isme/seat-enrollment-api/pkg/database"
	"github.com/noah-isme/seat-enrollment-api/pkg/export"
	"github.com/noah-isme/seat-enrollment-api/pkg/jobs"
	"github.com/noah-isme/seat-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/seat-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/seat-enrollment-api/pkg/middleware/requestid"
	"github.com/noah-isme/seat-enrollment-api/pkg/storage"
)

// @title Seat Enrollment API
// @version 1.0.0
// @description Elective course enrollment with live seat counts
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, session cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	defaultRules, err := eligibility.LoadRuleSet(cfg.Enrollment.RulesFile)
	if err != nil {
		logr.Fatal("failed to load eligibility rules", zap.String("path", cfg.Enrollment.RulesFile), zap.Error(err))
	}

	metrics := service.NewMetricsService()
	hub := broadcast.NewHub(nil, cfg.Enrollment.SubscriberBuffer, metrics, logr)
	registry := enrollment.NewRegistry(
		repository.NewEnrollmentStore(db),
		hub,
		metrics,
		enrollment.RegistryConfig{PersistTimeout: cfg.Enrollment.PersistTimeout},
		logr,
	)
	hub.SetSnapshotFunc(registry.Snapshot)
	metrics.TrackLiveSessions(registry.LiveSessions)

	if cfg.Enrollment.RecoverOnBoot {
		restored, err := registry.Recover(ctx)
		if err != nil {
			logr.Fatal("failed to restore open sessions", zap.Error(err))
		}
		logr.Info("open sessions restored", zap.Int("sessions", restored))
	}

	sessionRepo := repository.NewSessionRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)

	validate := validator.New()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)
	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Audience: cfg.JWT.Audience})
	sessionSvc := service.NewSessionService(sessionRepo, courseRepo, registry, cacheSvc, defaultRules, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(registry, validate, logr)
	subscriptionSvc := service.NewSubscriptionService(sessionRepo, hub)

	localStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(exportJobRepo, enrollmentRepo, sessionRepo, localStorage, signer, export.DefaultRegistry(), metrics,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL, CleanupInterval: cfg.Exports.CleanupInterval}, logr)
	exportWorker := service.NewExportWorker(exportJobRepo, exportSvc, metrics, logr)
	exportQueue := jobs.NewQueue("exports", exportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
		OnGiveUp:   exportSvc.MarkGivenUp,
	})
	exportQueue.Start(ctx)
	defer exportQueue.Stop()
	exportSvc.SetQueue(exportQueue)
	exportSvc.StartCleanup(ctx)

	limiter := middleware.NewSubmitLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	limiter.StartJanitor(ctx, time.Minute)

	sessionHandler := handler.NewSessionHandler(sessionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionSvc, cfg.CORS.AllowedOrigins, logr)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/exports/download/:token", exportHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	admin := middleware.RequireRoles(models.RoleAdmin)
	secured.GET("/sessions", sessionHandler.List)
	secured.GET("/sessions/:id", sessionHandler.Get)
	secured.GET("/sessions/:id/ws", subscriptionHandler.Stream)
	secured.POST("/sessions", admin, sessionHandler.Create)
	secured.POST("/sessions/:id/start", admin, sessionHandler.Start)
	secured.POST("/sessions/:id/stop", admin, sessionHandler.Stop)
	secured.POST("/sessions/:id/exports", admin, exportHandler.Create)
	secured.GET("/exports/:jobId", admin, exportHandler.Status)
	secured.GET("/metrics/summary", admin, metricsHandler.Summary)

	submit := []gin.HandlerFunc{middleware.RequireRoles(models.RoleStudent)}
	if cfg.RateLimit.Enabled {
		submit = append(submit, limiter.Middleware())
	}
	submit = append(submit, enrollmentHandler.Submit)
	secured.POST("/sessions/:id/enrollments", submit...)
	secured.GET("/sessions/:id/enrollments/:studentId", middleware.RBAC(string(models.RoleAdmin), "SELF"), enrollmentHandler.Check)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
