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
	"go.uber.org/zap"

	"github.com/noah-isme/registrar-api/internal/handler"
	"github.com/noah-isme/registrar-api/internal/repository"
	"github.com/noah-isme/registrar-api/internal/service"
	"github.com/noah-isme/registrar-api/pkg/cache"
	"github.com/noah-isme/registrar-api/pkg/config"
	"github.com/noah-isme/registrar-api/pkg/database"
	"github.com/noah-isme/registrar-api/pkg/jobs"
	"github.com/noah-isme/registrar-api/pkg/logger"
	"github.com/noah-isme/registrar-api/pkg/storage"
)

// @title Registrar API
// @version 1.0.0
// @description College registrar back office: enrollment applications, document requests and the enrollment ledger.
// @BasePath /api/v1
// @schemes http https
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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare upload storage", zap.Error(err))
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	users := repository.NewUserRepository(db)
	students := repository.NewStudentRepository(db)
	applications := repository.NewEnrollmentApplicationRepository(db)
	requests := repository.NewDocumentRequestRepository(db)
	enrollments := repository.NewEnrollmentRepository(db, cfg.Enrollment.EnforceCapacity)
	schedules := repository.NewScheduleRepository(db)
	notifications := repository.NewNotificationRepository(db)

	var (
		cacheRepo  service.CacheRepository
		cacheCheck handler.ReadinessCheck
	)
	if redisClient != nil {
		redisRepo := repository.NewCacheRepository(redisClient, "registrar")
		defer redisRepo.Close() //nolint:errcheck
		cacheRepo = redisRepo
		cacheCheck = redisRepo.Ping
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	applicationSvc := service.NewEnrollmentApplicationService(applications, students, users, service.NewExportService(nil, nil), cacheSvc, metrics, cfg.Dashboard.CacheTTL, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollments, students, schedules, validate, metrics, logr)
	notificationSvc := service.NewNotificationService(notifications, cfg.Notifications.ListLimit, logr)
	studentSvc := service.NewStudentService(students, validate, logr)

	var documentSvc *service.DocumentRequestService
	cleanup := jobs.NewQueue("file-cleanup", func(ctx context.Context, job jobs.Job) error {
		return documentSvc.HandleCleanup(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Cleanup.Workers,
		MaxRetries: cfg.Cleanup.Retries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	documentSvc = service.NewDocumentRequestService(
		requests,
		students,
		store,
		storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL),
		cleanup,
		validate,
		metrics,
		service.DocumentRequestConfig{MaxFiles: cfg.Uploads.MaxFiles, MaxSize: cfg.Uploads.MaxFileSizeBytes, APIPrefix: cfg.APIPrefix},
		logr,
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cleanup.Start(rootCtx)

	r := newRouter(routerDeps{
		cfg:           cfg,
		logger:        logr,
		metrics:       metrics,
		auth:          authSvc,
		authHandler:   handler.NewAuthHandler(authSvc),
		applications:  handler.NewEnrollmentApplicationHandler(applicationSvc),
		requests:      handler.NewDocumentRequestHandler(documentSvc, cfg.Uploads.MaxFiles),
		enrollments:   handler.NewEnrollmentHandler(enrollmentSvc),
		notifications: handler.NewNotificationHandler(notificationSvc),
		students:      handler.NewStudentHandler(studentSvc),
		ops:           handler.NewMetricsHandler(metrics, db.PingContext, cacheCheck),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	cleanup.Stop()
}
