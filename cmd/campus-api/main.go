package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campushq/campus-admin-api/api/swagger"
	"github.com/campushq/campus-admin-api/internal/handler"
	"github.com/campushq/campus-admin-api/internal/middleware"
	"github.com/campushq/campus-admin-api/internal/models"
	"github.com/campushq/campus-admin-api/internal/repository"
	"github.com/campushq/campus-admin-api/internal/service"
	"github.com/campushq/campus-admin-api/pkg/cache"
	"github.com/campushq/campus-admin-api/pkg/config"
	"github.com/campushq/campus-admin-api/pkg/database"
	"github.com/campushq/campus-admin-api/pkg/jobs"
	"github.com/campushq/campus-admin-api/pkg/logger"
	corsmiddleware "github.com/campushq/campus-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushq/campus-admin-api/pkg/middleware/requestid"
	"github.com/campushq/campus-admin-api/pkg/storage"
)

// @title Campus Admin API
// @version 1.0.0
// @description Academic administration API: reservations, chats, roster, events
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, cfg.Database.MigrationsDir); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	fileStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir, cfg.Uploads.MaxFileSizeBytes)
	if err != nil {
		logr.Sugar().Fatalw("failed to init file storage", "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	chatRepo := repository.NewChatRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	eventRepo := repository.NewEventRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	notifier := service.NewNotificationService(chatRepo, eventRepo, jobs.QueueConfig{
		Workers:    cfg.Notify.Workers,
		BufferSize: cfg.Notify.BufferSize,
		MaxRetries: cfg.Notify.MaxRetries,
		RetryDelay: cfg.Notify.RetryDelay,
	}, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	authService := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campus-admin-api",
	})
	dashboardService := service.NewDashboardService(service.DashboardServiceParams{
		Users:        userRepo,
		Reservations: reservationRepo,
		Chats:        chatRepo,
		Roster:       rosterRepo,
		Events:       eventRepo,
		Cache:        cacheRepo,
		CacheTTL:     cfg.Dashboard.CacheTTL,
		Logger:       logr,
	})
	userService := service.NewUserService(userRepo, nil, logr)
	resourceService := service.NewResourceService(resourceRepo, userRepo, nil, logr)
	reservationService := service.NewReservationService(reservationRepo, resourceRepo, userRepo, dashboardService, nil, logr)
	chatService := service.NewChatService(chatRepo, rosterRepo, userRepo, fileStore, notifier, dashboardService, nil, logr)
	rosterService := service.NewRosterService(rosterRepo, userRepo, nil, logr)
	eventService := service.NewEventService(eventRepo, userRepo, fileStore, notifier, nil, logr)
	metricsService := service.NewMetricsService()

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	resourceHandler := handler.NewResourceHandler(resourceService)
	reservationHandler := handler.NewReservationHandler(reservationService)
	chatHandler := handler.NewChatHandler(chatService)
	rosterHandler := handler.NewRosterHandler(rosterService)
	eventHandler := handler.NewEventHandler(eventService)
	dashboardHandler := handler.NewDashboardHandler(dashboardService, metricsService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.PUT("/password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))

	users := protected.Group("/users")
	users.Use(middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", userHandler.Create)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", userHandler.Delete)
	}

	resources := protected.Group("/resources")
	{
		resources.GET("", resourceHandler.List)
		resources.GET("/:id", resourceHandler.Get)
		resources.POST("", middleware.RequireStaff(), resourceHandler.Create)
		resources.PUT("/:id", middleware.RequireStaff(), resourceHandler.Update)
		resources.DELETE("/:id", middleware.RequireStaff(), resourceHandler.Delete)
	}

	reservations := protected.Group("/reservations")
	{
		reservations.GET("", reservationHandler.List)
		reservations.GET("/export", reservationHandler.Export)
		reservations.GET("/:id", reservationHandler.Get)
		reservations.POST("", reservationHandler.Submit)
		reservations.PUT("/:id/decision",
			middleware.Audit(userRepo, models.AuditActionReservationDecide, "reservations"),
			reservationHandler.Decide)
		reservations.PUT("/:id/cancel",
			middleware.Audit(userRepo, models.AuditActionReservationCancel, "reservations"),
			reservationHandler.Cancel)
		reservations.DELETE("/:id",
			middleware.Audit(userRepo, models.AuditActionReservationDelete, "reservations"),
			reservationHandler.Delete)
	}

	chats := protected.Group("/chats")
	{
		chats.GET("", chatHandler.List)
		chats.POST("", chatHandler.Create)
		chats.GET("/:id", chatHandler.Get)
		chats.DELETE("/:id",
			middleware.Audit(userRepo, models.AuditActionChatDelete, "chats"),
			chatHandler.Delete)
		chats.GET("/:id/members", chatHandler.ListMembers)
		chats.POST("/:id/members",
			middleware.Audit(userRepo, models.AuditActionChatMemberAdd, "chats"),
			chatHandler.AddMember)
		chats.DELETE("/:id/members/:userId",
			middleware.Audit(userRepo, models.AuditActionChatMemberRemove, "chats"),
			chatHandler.RemoveMember)
		chats.POST("/:id/messages", chatHandler.PostMessage)
		chats.DELETE("/:id/messages/:messageId", chatHandler.DeleteMessage)
		chats.POST("/:id/files", chatHandler.UploadFile)
		chats.DELETE("/:id/files/:fileId", chatHandler.DeleteFile)
	}

	courses := protected.Group("/courses")
	{
		courses.GET("", rosterHandler.ListCourses)
		courses.POST("", middleware.RequireStaff(), rosterHandler.CreateCourse)
		courses.DELETE("/:id", middleware.RequireStaff(), rosterHandler.DeleteCourse)
		courses.GET("/:id/batches", rosterHandler.ListBatches)
		courses.GET("/:id/modules", rosterHandler.ListModules)
	}

	batches := protected.Group("/batches")
	batches.Use(middleware.RequireStaff())
	{
		batches.POST("", rosterHandler.CreateBatch)
		batches.DELETE("/:id", rosterHandler.DeleteBatch)
	}

	modules := protected.Group("/modules")
	modules.Use(middleware.RequireStaff())
	{
		modules.POST("", rosterHandler.CreateModule)
		modules.DELETE("/:id", rosterHandler.DeleteModule)
	}

	assignments := protected.Group("/assignments")
	assignments.Use(middleware.RequireStaff())
	{
		assignments.POST("/lecturers", rosterHandler.AssignLecturer)
		assignments.DELETE("/lecturers", rosterHandler.UnassignLecturer)
	}

	enrollments := protected.Group("/enrollments")
	enrollments.Use(middleware.RequireStaff())
	{
		enrollments.POST("", rosterHandler.EnrollStudent)
		enrollments.POST("/modules", rosterHandler.AssignStudentModule)
		enrollments.DELETE("/modules", rosterHandler.UnassignStudentModule)
	}

	events := protected.Group("/events")
	{
		events.GET("", eventHandler.List)
		events.GET("/categories", eventHandler.ListCategories)
		events.POST("/categories", middleware.RequireStaff(), eventHandler.CreateCategory)
		events.DELETE("/categories/:id", middleware.RequireStaff(), eventHandler.DeleteCategory)
		events.GET("/:id", eventHandler.Get)
		events.POST("", middleware.RequireStaff(), eventHandler.Create)
		events.PUT("/:id", middleware.RequireStaff(), eventHandler.Update)
		events.DELETE("/:id", middleware.RequireStaff(), eventHandler.Delete)
	}

	protected.GET("/dashboard", dashboardHandler.Summary)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
