package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/course-flow-api/api/swagger"
	"github.com/noah-isme/course-flow-api/internal/handler"
	"github.com/noah-isme/course-flow-api/internal/lifecycle"
	"github.com/noah-isme/course-flow-api/internal/middleware"
	"github.com/noah-isme/course-flow-api/internal/models"
	"github.com/noah-isme/course-flow-api/internal/repository"
	"github.com/noah-isme/course-flow-api/internal/service"
	"github.com/noah-isme/course-flow-api/pkg/cache"
	"github.com/noah-isme/course-flow-api/pkg/config"
	"github.com/noah-isme/course-flow-api/pkg/database"
	"github.com/noah-isme/course-flow-api/pkg/export"
	"github.com/noah-isme/course-flow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-flow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-flow-api/pkg/middleware/requestid"
)

// @title Course Flow API
// @version 1.0.0
// @description Course lifecycle orchestration: drafting, topic voting, scheduling, delivery and enrollment
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	// cacheRepo stays nil when caching is disabled; services never touch it
	// unless the cache config marks it enabled.
	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect redis", "error", err)
		}
		defer redisClient.Close() //nolint:errcheck
		cacheRepo = repository.NewCacheRepository(redisClient, metricsSvc, logr)
	}

	courseRepo := repository.NewCourseRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	voteRepo := repository.NewVoteRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)

	lifecycleValidator := lifecycle.NewValidator(cfg.Voting.MinTopicsForCourse)
	cacheCfg := service.CourseCacheConfig{Enabled: cfg.Cache.Enabled, TTL: cfg.Cache.TTL}

	authSvc := service.NewAuthService(userRepo, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	}, nil, logr)
	courseSvc := service.NewCourseService(courseRepo, moduleRepo, lessonRepo, enrollmentRepo, lifecycleValidator, cacheRepo, cacheCfg, metricsSvc, nil, logr)
	moduleSvc := service.NewModuleService(moduleRepo, courseRepo, service.ModuleLimits{MaxTopicsPerCourse: cfg.Voting.MaxTopicsPerCourse}, nil, logr)
	votingSvc := service.NewVotingService(courseRepo, voteRepo, moduleRepo, enrollmentRepo, db, cacheRepo, cacheCfg, service.VotingConfig{RequiredTopics: cfg.Voting.RequiredTopics}, nil, logr)
	lessonSvc := service.NewLessonService(lessonRepo, courseRepo, moduleRepo, progressRepo, db, service.SchedulingDefaults{
		Frequency:       cfg.Scheduling.Frequency,
		PreferredTime:   cfg.Scheduling.PreferredTime,
		SkipWeekends:    cfg.Scheduling.SkipWeekends,
		NumberOfLessons: cfg.Scheduling.NumberOfLessons,
		DurationMinutes: cfg.Scheduling.DurationMinutes,
	}, metricsSvc, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, studentRepo, lessonRepo, progressRepo, db, export.NewCSVExporter(), export.NewPDFExporter(), metricsSvc, nil, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, enrollmentRepo, db, metricsSvc, nil, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, moduleSvc)
	votingHandler := handler.NewVotingHandler(votingSvc)
	lessonHandler := handler.NewLessonHandler(lessonSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
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
	api.POST("/auth/login", authHandler.Login)

	auth := api.Group("")
	auth.Use(middleware.JWT(authSvc))
	auth.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	teachingStaff := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin, models.RoleTeacher)
	student := middleware.RequireRoles(models.RoleStudent)

	auth.GET("/courses", courseHandler.List)
	auth.GET("/courses/:id", courseHandler.Get)
	auth.POST("/courses", staff, courseHandler.Create)
	auth.PUT("/courses/:id", staff, courseHandler.Update)
	auth.PUT("/courses/:id/status", staff, courseHandler.ChangeStatus)
	auth.DELETE("/courses/:id", staff, courseHandler.Delete)

	auth.GET("/courses/:id/modules", courseHandler.ListModules)
	auth.PUT("/courses/:id/modules", staff, courseHandler.ReplaceModules)

	auth.GET("/courses/:id/votes", student, votingHandler.MyVotes)
	auth.PUT("/courses/:id/votes", student, votingHandler.SubmitVotes)
	auth.GET("/courses/:id/votes/tally", votingHandler.Tally)
	auth.POST("/courses/:id/votes/finalize", staff, votingHandler.Finalize)

	auth.GET("/courses/:id/lessons", lessonHandler.List)
	auth.POST("/courses/:id/lessons/generate", staff, lessonHandler.GenerateSchedule)
	auth.PUT("/lessons/:id/status", teachingStaff, lessonHandler.ChangeStatus)

	auth.GET("/enrollments", teachingStaff, enrollmentHandler.List)
	auth.POST("/enrollments", staff, enrollmentHandler.Create)
	auth.POST("/enrollments/bulk", staff, enrollmentHandler.CreateBulk)
	auth.GET("/enrollments/:id", enrollmentHandler.Get)
	auth.PUT("/enrollments/:id/status", staff, enrollmentHandler.ChangeStatus)
	auth.GET("/enrollments/:id/progress", enrollmentHandler.Progress)
	auth.GET("/courses/:id/roster/export", teachingStaff, enrollmentHandler.ExportRoster)

	auth.GET("/enrollments/:id/payments", staff, paymentHandler.List)
	auth.POST("/enrollments/:id/payments", staff, paymentHandler.Record)
	auth.PUT("/enrollments/:id/payments/overdue", staff, paymentHandler.MarkOverdue)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
