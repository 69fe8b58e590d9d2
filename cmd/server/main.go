package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mediaforge-backend/internal/config"
	"mediaforge-backend/internal/database"
	"mediaforge-backend/internal/handlers"
	"mediaforge-backend/internal/jobs"
	"mediaforge-backend/internal/logging"
	"mediaforge-backend/internal/middleware"
	"mediaforge-backend/internal/provider"
	"mediaforge-backend/internal/supabase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Environment, cfg.LogLevel)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var clients []provider.Client
	if cfg.FluxAPIKey != "" {
		clients = append(clients, provider.NewFluxClient(cfg.FluxAPIBaseURL, cfg.FluxAPIKey))
	}
	if cfg.KlingAPIKey != "" {
		clients = append(clients, provider.NewKlingClient(cfg.KlingBaseURL, cfg.KlingAPIKey))
	}
	if cfg.VeoAPIKey != "" {
		clients = append(clients, provider.NewVeoClient(cfg.VeoBaseURL, cfg.VeoAPIKey))
	}
	registry := provider.NewRegistry(clients...)

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabasePublishableKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize supabase client")
	}

	storageClient, err := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, cfg.SupabaseStorageBucket)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage client")
	}

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required, set it to the Supabase PostgreSQL connection string")
	}

	migrator, err := database.NewMigrator(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize migrator")
	}
	if err := migrator.Run(); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	migrator.Close()

	dbClient, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database client")
	}
	defer dbClient.Close()

	realtimeClient := supabase.NewRealtimeClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, logger)
	defer realtimeClient.Close()

	jobsCfg := jobs.Config{
		StuckAfter:   cfg.StuckAfter,
		OrphanAfter:  cfg.OrphanAfter,
		PollInterval: cfg.PollInterval,
		CallbackURL:  cfg.WebhookCallbackURL,
	}

	notifier := jobs.NewNotifier(time.Hour)
	reconciler := jobs.NewReconciler(jobsCfg, dbClient.PendingJobs, dbClient.Media, storageClient, realtimeClient, registry, notifier, logger)

	ctx := context.Background()
	if err := reconciler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start reconciler")
	}
	defer reconciler.Stop()

	task := jobs.NewSubmissionTask(jobsCfg, registry, dbClient.PendingJobs, dbClient.Media, storageClient, logger)
	coordinator := jobs.NewCoordinator(ctx, task, reconciler, notifier, logger)

	generateHandler := handlers.NewGenerateHandler(coordinator, logger)
	notificationsHandler := handlers.NewNotificationsHandler(notifier, coordinator)
	jobsHandler := handlers.NewJobsHandler(dbClient.PendingJobs)
	libraryHandler := handlers.NewLibraryHandler(supabaseClient)
	webhookHandler := handlers.NewWebhookHandler(dbClient.PendingJobs, reconciler, cfg.WebhookSecret, logger)

	router := gin.Default()

	router.GET("/health", handlers.HealthHandler)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))

	api.POST("/generate/image", generateHandler.GenerateImage)
	api.POST("/generate/video", generateHandler.GenerateVideo)
	api.POST("/tasks/:task_id/cancel", notificationsHandler.Cancel)

	api.GET("/notifications", notificationsHandler.List)
	api.DELETE("/notifications/:notification_id", notificationsHandler.Dismiss)
	api.POST("/notifications/:notification_id/retry", notificationsHandler.Retry)

	api.GET("/jobs", jobsHandler.List)
	api.GET("/library", libraryHandler.List)

	// Webhook (no auth, shared secret)
	router.POST("/api/v1/webhooks/provider", webhookHandler.HandleProviderWebhook)

	logger.Info().Str("port", cfg.Port).Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
