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

	_ "github.com/campushq/sis-api/api/swagger"
	"github.com/campushq/sis-api/internal/handler"
	"github.com/campushq/sis-api/internal/middleware"
	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/repository"
	"github.com/campushq/sis-api/internal/service"
	"github.com/campushq/sis-api/internal/transition"
	"github.com/campushq/sis-api/pkg/cache"
	"github.com/campushq/sis-api/pkg/config"
	"github.com/campushq/sis-api/pkg/database"
	"github.com/campushq/sis-api/pkg/jobs"
	"github.com/campushq/sis-api/pkg/logger"
	corsmiddleware "github.com/campushq/sis-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushq/sis-api/pkg/middleware/requestid"
	"github.com/campushq/sis-api/pkg/observability"
)

// @title SIS API
// @version 1.0.0
// @description Student information system with a ledgered status engine
// @BasePath /api/v1
// @schemes http

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

	flushSentry, err := observability.InitSentry(cfg.Sentry, "sis-api@1.0.0")
	if err != nil {
		logr.Sugar().Warnw("sentry disabled", "error", err)
	} else {
		defer flushSentry()
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	statusRepo := repository.NewStatusRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	disciplineRepo := repository.NewDisciplineRepository(db)
	examRepo := repository.NewExamRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	termRepo := repository.NewTermRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	engine := transition.NewEngine(statusRepo, models.TransitionRules(), logr,
		transition.WithObserver(metricsSvc),
		transition.WithSweepBatchSize(cfg.Sweep.BatchSize),
	)

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  cfg.JWT.Expiration,
		RefreshExpiry: cfg.JWT.RefreshExpiration,
		Issuer:        cfg.JWT.Issuer,
	})
	studentSvc := service.NewStudentService(studentRepo, statusRepo, cacheRepo, cfg.Summary.CacheTTL, validate, logr)
	disciplineSvc := service.NewDisciplineService(disciplineRepo, studentRepo, engine, studentSvc, auditRepo, validate, logr)
	examSvc := service.NewExamService(examRepo, statusRepo, engine, auditRepo, validate, logr)
	leaveSvc := service.NewLeaveService(leaveRepo, studentRepo, statusRepo, engine, auditRepo, validate, logr)
	promotionSvc := service.NewPromotionService(studentRepo, engine, auditRepo, validate, logr)
	termSvc := service.NewTermService(termRepo, statusRepo, engine, validate, logr)
	sweepSvc := service.NewSweepService(engine, studentSvc, auditRepo, logr)

	authH := handler.NewAuthHandler(authSvc)
	var studentH *handler.StudentHandler
	if cfg.Exports.Enabled {
		studentH = handler.NewStudentHandler(studentSvc, service.NewExportService(statusRepo, studentRepo, logr))
	} else {
		studentH = handler.NewStudentHandler(studentSvc, nil)
	}
	disciplineH := handler.NewDisciplineHandler(disciplineSvc)
	examH := handler.NewExamHandler(examSvc)
	leaveH := handler.NewLeaveHandler(leaveSvc)
	termH := handler.NewTermHandler(termSvc)
	adminH := handler.NewAdminHandler(sweepSvc, promotionSvc, auditRepo)
	metricsH := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsH.Health)
	r.GET("/ready", metricsH.Health)
	r.GET("/metrics", metricsH.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authH.Login)
		auth.POST("/refresh", authH.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authH.Logout)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	students := authed.Group("/students")
	{
		students.GET("", studentH.List)
		students.GET("/:id", studentH.Get)
		students.GET("/:id/status-history", studentH.History)
		students.GET("/:id/status-history/export", studentH.ExportHistory)
		students.GET("/:id/status-summary", studentH.Summary)
		students.POST("", middleware.RequireRoles(models.RoleAdmin), studentH.Create)
		students.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), studentH.Update)
	}

	discipline := authed.Group("/discipline")
	{
		discipline.GET("", disciplineH.List)
		discipline.GET("/:id", disciplineH.Get)
		discipline.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleCounselor), disciplineH.Create)
		discipline.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleCounselor), disciplineH.Delete)
		discipline.POST("/students/:id/restore", middleware.RequireRoles(models.RoleAdmin, models.RoleCounselor), disciplineH.Restore)
	}

	exams := authed.Group("/exams")
	{
		exams.GET("", examH.List)
		exams.GET("/:id", examH.Get)
		exams.POST("", middleware.RequireRoles(models.RoleAdmin), examH.Create)
		exams.GET("/schedules/:id/results", examH.ListResults)
		exams.POST("/schedules/:id/results", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), examH.SaveResults)
		exams.DELETE("/schedules/:id/results", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), examH.ClearResults)
	}

	leave := authed.Group("/leave")
	{
		leave.GET("", leaveH.List)
		leave.GET("/:id", leaveH.Get)
		leave.POST("", leaveH.Submit)
		leave.POST("/:id/decision", middleware.RequireRoles(models.RoleAdmin, models.RoleCounselor), leaveH.Decide)
		leave.POST("/:id/cancel", leaveH.Cancel)
	}

	terms := authed.Group("/terms")
	{
		terms.GET("", termH.List)
		terms.GET("/current", termH.Current)
		terms.GET("/:id", termH.Get)
		terms.POST("", middleware.RequireRoles(models.RoleAdmin), termH.Create)
		terms.POST("/:id/activate", middleware.RequireRoles(models.RoleAdmin), termH.Activate)
		terms.POST("/:id/complete", middleware.RequireRoles(models.RoleAdmin), termH.Complete)
	}

	admin := authed.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/sweeps/expired", adminH.RunSweep)
		admin.POST("/promotions", adminH.PromoteClass)
		admin.GET("/audit-logs", adminH.AuditLogs)
	}

	runner := jobs.NewRunner(ctx, logr)
	if cfg.Sweep.Background {
		runner.Every(cfg.Sweep.Interval, "expiry-sweep", sweepSvc.RunBackground)
	}

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
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
	runner.Stop()
}
