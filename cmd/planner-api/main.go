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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/study-planner-api/api/swagger"
	"github.com/noah-isme/study-planner-api/internal/handler"
	internalmiddleware "github.com/noah-isme/study-planner-api/internal/middleware"
	"github.com/noah-isme/study-planner-api/internal/repository"
	"github.com/noah-isme/study-planner-api/internal/service"
	"github.com/noah-isme/study-planner-api/pkg/cache"
	"github.com/noah-isme/study-planner-api/pkg/config"
	"github.com/noah-isme/study-planner-api/pkg/database"
	"github.com/noah-isme/study-planner-api/pkg/export"
	"github.com/noah-isme/study-planner-api/pkg/jobs"
	"github.com/noah-isme/study-planner-api/pkg/lock"
	"github.com/noah-isme/study-planner-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/study-planner-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/study-planner-api/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

// @title Study Planner API
// @version 1.0
// @description Self-study session planning for courses and deadlines.
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}

	var (
		cacheClient redis.UniversalClient
		locker      lock.Locker = lock.NewLocal()
	)
	if redisClient != nil {
		defer redisClient.Close()
		cacheClient = redisClient
		locker = lock.NewRedis(redisClient, "study-planner:lock:", cfg.Planner.LockTTL)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	eventRepo := repository.NewCalendarEventRepository(db)
	cacheRepo := repository.NewCacheRepository(cacheClient)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Preferences.CacheTTL, logr, redisClient != nil)
	authSvc := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})
	preferenceSvc := service.NewPreferenceService(userRepo, cacheSvc, cfg.Preferences.CacheTTL, validate, logr)
	plannerSvc := service.NewPlannerService(preferenceSvc, courseRepo, eventRepo, db, locker, metricsSvc, validate, logr, service.PlannerConfig{
		Location:    cfg.Planner.Location(),
		TotalPoints: cfg.Planner.TotalPoints,
	})
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	calendarSvc := service.NewCalendarService(courseRepo, eventRepo, db, locker, validate, logr)
	exportSvc := service.NewExportService(plannerSvc, cfg.Planner.Location(), logr, export.NewCSVExporter(), export.NewPDFExporter())

	planWorker := service.NewPlanWorker(plannerSvc, logr)
	planQueue := jobs.NewQueue("plans", planWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Planner.QueueWorkers,
		BufferSize: cfg.Planner.QueueBuffer,
		MaxRetries: cfg.Planner.QueueRetries,
		RetryDelay: cfg.Planner.RetryDelay,
		Logger:     logr,
	})
	planDispatcher := service.NewPlanDispatcher(planQueue, validate)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	planQueue.Start(rootCtx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	preferenceHandler := handler.NewPreferenceHandler(preferenceSvc)
	plannerHandler := handler.NewPlannerHandler(plannerSvc, planDispatcher, exportSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	calendarHandler := handler.NewCalendarHandler(calendarSvc)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(authSvc))
	{
		api.GET("/preferences", preferenceHandler.Get)
		api.PUT("/preferences", preferenceHandler.Update)

		api.GET("/courses", courseHandler.List)
		api.POST("/courses", courseHandler.Create)

		courses := api.Group("/courses/:courseId")
		courses.GET("/deadlines", calendarHandler.ListDeadlines)
		courses.POST("/deadlines", calendarHandler.CreateDeadline)
		courses.POST("/deadlines/:deadlineId/plan", plannerHandler.Plan)
		courses.GET("/deadlines/:deadlineId/plan/preview", plannerHandler.Preview)
		courses.GET("/sessions", plannerHandler.ListSessions)
		courses.POST("/sessions", plannerHandler.CreateSession)
		courses.GET("/sessions/export", plannerHandler.ExportSessions)
		courses.GET("/progress", plannerHandler.Progress)

		api.PUT("/deadlines/:deadlineId", calendarHandler.UpdateDeadline)
		api.DELETE("/deadlines/:deadlineId", calendarHandler.DeleteDeadline)
		api.DELETE("/deadlines/:deadlineId/sessions", plannerHandler.DeleteSessions)

		calendar := api.Group("/calendar")
		calendar.GET("/events", calendarHandler.ListEvents)
		calendar.POST("/events", calendarHandler.CreateEvent)
		calendar.PUT("/events/:eventId", calendarHandler.UpdateEvent)
		calendar.DELETE("/events/:eventId", calendarHandler.DeleteEvent)
		calendar.GET("/upcoming", calendarHandler.Upcoming)
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

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	planQueue.Stop()
}
