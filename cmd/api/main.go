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

	"github.com/plancheck/compliance-api/internal/handler"
	"github.com/plancheck/compliance-api/internal/middleware"
	"github.com/plancheck/compliance-api/internal/models"
	"github.com/plancheck/compliance-api/internal/repository"
	"github.com/plancheck/compliance-api/internal/service"
	"github.com/plancheck/compliance-api/migrations"
	"github.com/plancheck/compliance-api/pkg/cache"
	"github.com/plancheck/compliance-api/pkg/config"
	"github.com/plancheck/compliance-api/pkg/database"
	"github.com/plancheck/compliance-api/pkg/jobs"
	"github.com/plancheck/compliance-api/pkg/logger"
	corsmiddleware "github.com/plancheck/compliance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/plancheck/compliance-api/pkg/middleware/requestid"
	"github.com/plancheck/compliance-api/pkg/storage"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(ctx, db, migrations.Files); err != nil {
		logr.Sugar().Fatalw("failed to apply migrations", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, ordinance list cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	localStorage, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare attachment storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	ordinanceRepo := repository.NewOrdinanceRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	emailRepo := repository.NewEmailRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	promptRepo := repository.NewPromptRepository(db)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "compliance-api",
	})

	emailSvc := service.NewEmailService(emailRepo, nil, logr, cfg.Email)
	teamsSvc := service.NewTeamsService(nil, validate, logr, cfg.Teams)

	// Dispatch queue: nudges the email dispatcher right after an email
	// is enqueued instead of waiting for the next reconciliation tick.
	dispatchQueue := jobs.NewQueue("email-dispatch", func(ctx context.Context, _ jobs.Job) error {
		_, err := emailSvc.ProcessQueue(ctx)
		return err
	}, jobs.QueueConfig{Workers: 1, Logger: logr})
	dispatchQueue.Start(ctx)
	defer dispatchQueue.Stop()

	invitationSvc := service.NewInvitationService(invitationRepo, userRepo, emailSvc, dispatchQueue, validate, logr, cfg.Invitations)
	ordinanceSvc := service.NewOrdinanceService(ordinanceRepo, userRepo, redisClient, validate, logr, cfg.Ordinances)
	ingestSvc := service.NewIngestService(ordinanceRepo, userRepo, logr, service.IngestConfig{
		BatchSize: cfg.Ingest.BatchSize,
		MaxErrors: cfg.Ingest.MaxErrors,
	})
	attachmentSvc := service.NewAttachmentService(attachmentRepo, userRepo, localStorage, signer, logr, cfg.Attachments)
	promptSvc := service.NewPromptService(promptRepo, userRepo, validate, logr)
	reviewSvc := service.NewReviewService(promptRepo, ordinanceRepo, userRepo, validate, logr, cfg.Review)
	userSvc := service.NewUserService(userRepo, validate, logr)

	emailSvc.StartReconciler(ctx)

	authHandler := handler.NewAuthHandler(authSvc)
	ingestHandler := handler.NewIngestHandler(authSvc, ingestSvc, ordinanceSvc, metricsSvc, cfg.Ingest)
	ordinanceHandler := handler.NewOrdinanceHandler(authSvc, ordinanceSvc)
	invitationHandler := handler.NewInvitationHandler(authSvc, invitationSvc)
	attachmentHandler := handler.NewAttachmentHandler(authSvc, attachmentSvc)
	promptHandler := handler.NewPromptHandler(authSvc, promptSvc)
	reviewHandler := handler.NewReviewHandler(authSvc, reviewSvc, metricsSvc)
	userHandler := handler.NewUserHandler(authSvc, userSvc)
	notifyHandler := handler.NewNotifyHandler(authSvc, emailSvc, teamsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	// Public endpoints: the invitation token / signed URL is the credential.
	api.POST("/invitations/accept", invitationHandler.Accept)
	api.GET("/attachments/download", attachmentHandler.Download)

	authed := api.Group("", middleware.JWT(authSvc))
	{
		ordinances := authed.Group("/ordinances")
		{
			ordinances.GET("", ordinanceHandler.List)
			ordinances.GET("/export", middleware.Audit(userRepo, "ORDINANCE_EXPORT", "ordinances"), ordinanceHandler.Export)
			ordinances.GET("/:id", ordinanceHandler.Get)
			ordinances.PUT("/:id", ordinanceHandler.Update)
			ordinances.DELETE("/:id", ordinanceHandler.Delete)
			ordinances.POST("/import", ingestHandler.Import)
			ordinances.POST("/import/file", ingestHandler.ImportFile)
		}

		invitations := authed.Group("/invitations")
		{
			invitations.POST("", invitationHandler.Create)
			invitations.GET("", invitationHandler.List)
			invitations.POST("/:id/resend", invitationHandler.Resend)
			invitations.DELETE("/:id", invitationHandler.Revoke)
		}

		users := authed.Group("/users")
		{
			users.GET("", userHandler.List)
			users.GET("/:id", userHandler.Get)
			users.PUT("/:id", userHandler.Update)
			users.DELETE("/:id", userHandler.Delete)
		}

		prompts := authed.Group("/prompts")
		{
			prompts.GET("", promptHandler.List)
			prompts.GET("/:key", promptHandler.Get)
			prompts.PUT("", promptHandler.Upsert)
			prompts.DELETE("/:key", promptHandler.Delete)
		}

		authed.POST("/reviews", middleware.RequireRoles(models.ReviewerRoles...), reviewHandler.Run)

		projects := authed.Group("/projects/:projectId/attachments")
		{
			projects.POST("", attachmentHandler.Upload)
			projects.GET("", attachmentHandler.List)
		}
		authed.GET("/attachments/:id/link", attachmentHandler.Link)
		authed.DELETE("/attachments/:id", attachmentHandler.Delete)

		notifications := authed.Group("/notifications")
		{
			notifications.POST("/email/process", notifyHandler.ProcessEmailQueue)
			notifications.POST("/teams", notifyHandler.SendTeams)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
