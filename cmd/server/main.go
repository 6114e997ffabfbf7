package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/robfig/cron"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file loaded", "error", err)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	policy, err := service.ParseMixedOutcomePolicy(cfg.MixedPolicy)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.Environment}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDB(log, db)

	if err := db.Ping(); err != nil {
		return fmt.Errorf("database is unreachable: %w", err)
	}

	postRepo := repository.NewPostRepository(db)
	targetRepo := repository.NewPublishTargetRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	httpClient := &http.Client{Timeout: cfg.TargetTimeout}
	r2Service := service.NewR2Service(*cfg)

	processors := service.NewProcessorRegistry(cfg.PlatformRateLimit)
	processors.Register(models.PlatformInstagram, service.NewInstagramProcessor(cfg.SecretKey, httpClient))
	processors.Register(models.PlatformTiktok, service.NewTiktokProcessor(cfg.SecretKey, httpClient))
	processors.Register(models.PlatformYoutube, service.NewYoutubeProcessor(cfg.SecretKey, r2Service))

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()
	inspector := asynq.NewInspector(redisConn)
	defer inspector.Close()

	publishQueue := queue.NewClient(client, inspector, cfg, log)

	notificationService := service.NewNotificationService(notificationRepo, cfg.FrontendURL)
	publisherService := service.NewPublisherService(postRepo, targetRepo, socialAccountRepo, postMediaRepo,
		processors, notificationService, service.NewSentryReporter(),
		service.PublisherOptions{
			Policy:        policy,
			TargetTimeout: cfg.TargetTimeout,
			Concurrency:   cfg.TargetConcurrency,
		}, log)
	schedulerService := service.NewSchedulerService(postRepo, publishQueue, service.SchedulerOptions{
		BatchLimit:      cfg.BatchLimit,
		StaleClaimAfter: cfg.StaleClaimAfter,
	}, log)
	statusService := service.NewStatusService(postRepo, targetRepo)
	tokenRefreshService := service.NewTokenRefreshService(socialAccountRepo, map[string]service.TokenRefresher{
		models.PlatformInstagram: service.NewInstagramTokenRefresher(httpClient),
		models.PlatformTiktok:    service.NewTiktokTokenRefresher(cfg.TiktokClientKey, cfg.TiktokClientSecret, httpClient),
		models.PlatformYoutube:   service.NewYoutubeTokenRefresher(cfg.GoogleClientID, cfg.GoogleClientSecret, httpClient),
	}, cfg.SecretKey, service.TokenRefreshOptions{
		Ahead:      cfg.TokenRefreshAhead,
		BatchLimit: cfg.BatchLimit,
	}, log)

	// cron jobs
	triggers := job.NewPublishTriggerJob(publishQueue, log)
	c := cron.New()
	if err := triggers.Schedule(c, job.Intervals{
		Scan:         cfg.SchedulerInterval,
		Sweep:        cfg.SweepInterval,
		TokenRefresh: cfg.TokenRefreshInterval,
	}); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	// queue
	worker := queue.NewWorker(publisherService, schedulerService, tokenRefreshService, cfg, log)
	server := queue.NewServer(redisConn, cfg, worker)
	if err := server.Start(worker.Mux()); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	defer server.Shutdown()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(logger.New())

	health := handlers.NewHealthHandler(db)
	app.Get("/healthz", health.Health)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(statusService)
	api.Get("/posts/:id/publish-status", post.PublishStatus)

	scheduler := handlers.NewSchedulerHandler(publishQueue)
	api.Post("/scheduler/tick", scheduler.Tick)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server is running", "addr", cfg.HTTPAddr)
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	return gracefulShutdown(log, app, errCh)
}

func closeDB(log *slog.Logger, db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Error("failed to close database", "error", err)
		return
	}
	log.Info("database connection closed")
}

func gracefulShutdown(log *slog.Logger, app *fiber.App, errCh <-chan error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("shut down http server: %w", err)
	}
	log.Info("server shutdown complete")
	return nil
}
