package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/school-assign-api/api/swagger"
	"github.com/noah-isme/school-assign-api/internal/handler"
	"github.com/noah-isme/school-assign-api/internal/middleware"
	"github.com/noah-isme/school-assign-api/internal/models"
	"github.com/noah-isme/school-assign-api/internal/repository"
	"github.com/noah-isme/school-assign-api/internal/service"
	"github.com/noah-isme/school-assign-api/pkg/cache"
	"github.com/noah-isme/school-assign-api/pkg/config"
	"github.com/noah-isme/school-assign-api/pkg/database"
	"github.com/noah-isme/school-assign-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-assign-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-assign-api/pkg/middleware/requestid"
	"github.com/noah-isme/school-assign-api/pkg/storage"
)

// @title School Assignment API
// @version 1.0.0
// @description Teacher-student assignment and result management with guardian notifications
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export directory", "error", err)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	resultRepo := repository.NewResultRepository(db)
	smsRepo := repository.NewSMSRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, userRepo, userRepo, cacheSvc, metricsSvc, validate, logr)
	resultSvc := service.NewResultService(resultRepo, assignmentSvc, userRepo, userRepo, cacheSvc, metricsSvc, validate, logr)

	var sender service.Sender
	if cfg.SMS.DryRun || !cfg.SMS.Enabled {
		sender = service.NewDryRunSender(logr)
	} else {
		sender = service.NewGatewaySender(cfg.SMS)
	}
	smsSvc := service.NewSMSService(smsRepo, userRepo, sender, cfg.SMS, metricsSvc, validate, logr)

	signer := storage.NewSignedURLSigner(cfg.Export.SigningSecret, cfg.Export.TTL)
	exportSvc := service.NewExportService(resultRepo, userRepo, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Export.TTL,
	}, logr, nil, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	smsSvc.Start(ctx)
	defer smsSvc.Stop()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				exportSvc.Cleanup()
			}
		}
	}()

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	resultHandler := handler.NewResultHandler(resultSvc, exportSvc)
	smsHandler := handler.NewSMSHandler(smsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	// Signed token downloads carry their own credential.
	api.GET("/exports/download", resultHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.POST("/auth/logout", authHandler.Logout)
	protected.POST("/auth/change-password", authHandler.ChangePassword)
	protected.GET("/auth/me", authHandler.Me)

	users := protected.Group("/users", middleware.RequireRoles(models.RoleAdmin))
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)
	users.POST("", userHandler.Create)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete)
	users.POST("/:id/block", userHandler.Block)
	users.POST("/:id/unblock", userHandler.Unblock)

	assignments := protected.Group("/assignments", middleware.RequireRoles(models.RoleAdmin))
	assignments.GET("", assignmentHandler.List)
	assignments.POST("", assignmentHandler.Create)
	assignments.POST("/bulk", assignmentHandler.BulkAssign)
	assignments.DELETE("/:id", assignmentHandler.Remove)

	protected.GET("/teachers/:id/students", assignmentHandler.ListByTeacher)
	protected.GET("/students/:id/teachers", assignmentHandler.ListByStudent)

	protected.POST("/results", resultHandler.Create)
	protected.PUT("/results/:id", resultHandler.Update)
	protected.DELETE("/results/:id", resultHandler.Delete)
	protected.GET("/students/:id/results", resultHandler.ListForStudent)
	protected.GET("/teachers/:id/results", resultHandler.ListForTeacher)
	protected.GET("/students/:id/results/export",
		middleware.RequireRoles(models.RoleAdmin),
		middleware.Audit(userRepo, "RESULT_EXPORT", "result"),
		resultHandler.Export)

	notifications := protected.Group("/notifications")
	notifications.POST("/progress-alert", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), smsHandler.SendProgressAlert)
	notifications.GET("/history", middleware.RequireRoles(models.RoleAdmin), smsHandler.History)

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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("shutdown incomplete", "error", err)
	}
}
