package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/registrar-api/api/swagger"
	"github.com/noah-isme/registrar-api/internal/handler"
	"github.com/noah-isme/registrar-api/internal/middleware"
	"github.com/noah-isme/registrar-api/internal/models"
	"github.com/noah-isme/registrar-api/internal/service"
	"github.com/noah-isme/registrar-api/pkg/config"
	"github.com/noah-isme/registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/registrar-api/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *service.MetricsService
	auth    middleware.TokenValidator

	authHandler   *handler.AuthHandler
	applications  *handler.EnrollmentApplicationHandler
	requests      *handler.DocumentRequestHandler
	enrollments   *handler.EnrollmentHandler
	notifications *handler.NotificationHandler
	students      *handler.StudentHandler
	ops           *handler.MetricsHandler
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", d.ops.Health)
	r.GET("/ready", d.ops.Ready)
	r.GET("/metrics", d.ops.Prometheus)
	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(d.cfg.APIPrefix)
	authn := middleware.JWT(d.auth)
	staff := middleware.RequireStaff()
	admin := middleware.RequireRoles(models.RoleAdmin)
	student := middleware.RequireRoles(models.RoleStudent)
	audit := func(action string) gin.HandlerFunc { return middleware.Audit(d.logger, action) }

	api.POST("/auth/login", d.authHandler.Login)
	api.GET("/auth/me", authn, d.authHandler.Me)

	apps := api.Group("/enrollment-applications")
	apps.POST("", middleware.OptionalJWT(d.auth), d.applications.Submit)
	apps.GET("", authn, staff, d.applications.List)
	apps.GET("/stats", authn, staff, d.applications.Stats)
	apps.GET("/export", authn, staff, d.applications.Export)
	apps.GET("/:id", authn, d.applications.Get)
	apps.GET("/:id/certificate", authn, d.applications.Certificate)
	apps.PUT("/:id/approve-payment", authn, staff, audit("approve_payment"), d.applications.ApprovePayment)
	apps.PUT("/:id/review", authn, admin, audit("registrar_review"), d.applications.Review)

	requests := api.Group("/requests")
	requests.GET("/:id/documents/:index/download", d.requests.Download)
	requests.Use(authn)
	requests.POST("", student, d.requests.Create)
	requests.GET("", staff, d.requests.ListAll)
	requests.GET("/mine", student, d.requests.ListMine)
	requests.GET("/:id", d.requests.Get)
	requests.PUT("/:id/status", staff, audit("update_request_status"), d.requests.UpdateStatus)
	requests.GET("/:id/documents/:index", staff, d.requests.Document)
	requests.GET("/:id/documents/:index/link", staff, d.requests.Link)
	requests.DELETE("/:id", admin, audit("delete_request"), d.requests.Delete)

	enrollments := api.Group("/enrollments", authn)
	enrollments.POST("", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), d.enrollments.Create)
	enrollments.GET("", d.enrollments.List)
	enrollments.GET("/:id", d.enrollments.Get)
	enrollments.PUT("/:id/status", admin, audit("update_enrollment_status"), d.enrollments.UpdateStatus)
	enrollments.DELETE("/:id", admin, audit("delete_enrollment"), d.enrollments.Delete)

	notifications := api.Group("/notifications", authn)
	notifications.GET("", d.notifications.List)
	notifications.PUT("/read-all", d.notifications.MarkAllRead)

	students := api.Group("/students", authn)
	students.GET("/me", student, d.students.Me)
	students.POST("", admin, audit("create_student"), d.students.Create)
	students.GET("", admin, d.students.List)
	students.GET("/:id", admin, d.students.Get)
	students.PUT("/:id/status", admin, audit("update_student_status"), d.students.UpdateStatus)
	students.DELETE("/:id", admin, audit("delete_student"), d.students.Delete)

	return r
}
