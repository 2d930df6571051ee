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

	_ "github.com/classdesk/classdesk-api/api/swagger"
	"github.com/classdesk/classdesk-api/internal/handler"
	"github.com/classdesk/classdesk-api/internal/middleware"
	"github.com/classdesk/classdesk-api/internal/models"
	"github.com/classdesk/classdesk-api/internal/repository"
	"github.com/classdesk/classdesk-api/internal/service"
	"github.com/classdesk/classdesk-api/pkg/cache"
	"github.com/classdesk/classdesk-api/pkg/config"
	"github.com/classdesk/classdesk-api/pkg/database"
	"github.com/classdesk/classdesk-api/pkg/jobs"
	"github.com/classdesk/classdesk-api/pkg/logger"
	corsmiddleware "github.com/classdesk/classdesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classdesk/classdesk-api/pkg/middleware/requestid"
	"github.com/classdesk/classdesk-api/pkg/storage"
)

// @title ClassDesk API
// @version 1.0.0
// @description Assignment distribution, submission and grading service
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
	sugar := logr.Sugar()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, 5*time.Minute, logr, cfg.Dashboard.CacheEnabled)
	eventSvc := service.NewEventService(assignmentRepo, submissionRepo, cfg.Stream.SubscriberBuffer, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	assignmentSvc := service.NewAssignmentService(assignmentRepo, eventSvc, validate, logr)

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		sugar.Fatalw("failed to init upload storage", "error", err)
	}
	uploadSigner := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)
	submissionSvc := service.NewSubmissionService(submissionRepo, eventSvc, uploadStore, uploadSigner, validate, logr)

	dashboardSvc := service.NewDashboardService(assignmentRepo, submissionRepo, cacheSvc, metricsSvc, logr, service.DashboardServiceConfig{
		CacheTTL: cfg.Dashboard.CacheTTL,
	})

	// Cached dashboards go stale the moment a collection changes, so every
	// snapshot broadcast also drops them.
	if cacheSvc.Enabled() {
		snapshots, cancelSub := eventSvc.Subscribe()
		defer cancelSub()
		go func() {
			for range snapshots {
				dashboardSvc.InvalidateAll(context.Background())
			}
		}()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc, cfg.Uploads.MaxFileSizeBytes)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	streamHandler := handler.NewStreamHandler(eventSvc, metricsSvc, cfg.Stream.HeartbeatInterval)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Signed-token downloads authenticate through the token itself.
	api.GET("/submissions/download/:token", middleware.OptionalJWT(authSvc), submissionHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.GET("/auth/me", authHandler.Me)
	protected.POST("/auth/logout", authHandler.Logout)
	protected.POST("/auth/change-password", authHandler.ChangePassword)

	protected.GET("/assignments", assignmentHandler.List)
	protected.GET("/assignments/:id", assignmentHandler.Get)
	protected.POST("/assignments",
		middleware.RequireRoles(models.RoleTeacher),
		middleware.Audit(userRepo, models.AuditActionAssignmentCreate, "assignments"),
		assignmentHandler.Create)
	protected.POST("/assignments/:id/submissions",
		middleware.RequireRoles(models.RoleStudent),
		middleware.Audit(userRepo, models.AuditActionSubmissionCreate, "submissions"),
		submissionHandler.Submit)

	protected.GET("/submissions", submissionHandler.List)
	protected.PATCH("/submissions/:id/grade",
		middleware.RequireRoles(models.RoleTeacher),
		middleware.Audit(userRepo, models.AuditActionSubmissionGrade, "submissions"),
		submissionHandler.Grade)
	protected.GET("/submissions/:id/download-url", submissionHandler.DownloadURL)

	protected.GET("/dashboards/teacher", middleware.RequireRoles(models.RoleTeacher), dashboardHandler.Teacher)
	protected.GET("/dashboards/student", middleware.RequireRoles(models.RoleStudent), dashboardHandler.Student)
	protected.GET("/stream", streamHandler.Stream)
	protected.GET("/metrics/system", middleware.RequireRoles(models.RoleTeacher), metricsHandler.System)

	if cfg.Exports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			sugar.Fatalw("failed to init export storage", "error", err)
		}
		exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

		var exportSvc *service.ExportService
		exportQueue := jobs.NewQueue("exports", func(ctx context.Context, job jobs.Job) error {
			return exportSvc.Handle(ctx, job)
		}, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportSvc = service.NewExportService(exportRepo, assignmentRepo, submissionRepo, exportQueue, exportStore, exportSigner, service.ExportServiceConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		}, logr)

		exportQueue.Start(ctx)
		defer exportQueue.Stop()
		exportSvc.RecoverPendingJobs(ctx)
		exportSvc.StartCleanup(ctx)

		exportHandler := handler.NewExportHandler(exportSvc)
		api.GET("/exports/download/:token", middleware.OptionalJWT(authSvc), exportHandler.Download)
		exportsGroup := protected.Group("/exports", middleware.RequireRoles(models.RoleTeacher))
		exportsGroup.POST("", exportHandler.Create)
		exportsGroup.GET("/:id", exportHandler.Status)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	sugar.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("forced shutdown", "error", err)
	}
	sugar.Infow("server stopped")
}
