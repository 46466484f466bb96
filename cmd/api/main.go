package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/classforge/classforge-api/internal/config"
	"github.com/classforge/classforge-api/internal/database"
	"github.com/classforge/classforge-api/internal/handler"
	"github.com/classforge/classforge-api/internal/middleware"
	"github.com/classforge/classforge-api/internal/models"
	"github.com/classforge/classforge-api/internal/repository"
	"github.com/classforge/classforge-api/internal/router"
	"github.com/classforge/classforge-api/internal/service"
	"github.com/classforge/classforge-api/pkg/runner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Classroom{}, &models.Membership{}, &models.Assignment{}, &models.TestCase{}, &models.Submission{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	runnerClient, err := runner.New(runner.Config{
		BaseURL: cfg.RunnerBaseURL,
		Timeout: cfg.RunnerTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create runner client: %v", err)
	}

	submissionRepo := repository.NewSubmissionRepository(db)
	testCaseRepo := repository.NewTestCaseRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)

	serviceCtx, cancelServices := context.WithCancel(context.Background())
	defer cancelServices()

	realtimeService := service.NewRealtimeService(redisClient, cfg.RealtimeChannelBase, natsConn, logger)
	realtimeService.Start(serviceCtx)

	pool := service.NewWorkerPool(cfg.EvaluationWorkers, cfg.EvaluationQueueSize, logger)

	evaluationService := service.NewEvaluationService(
		submissionRepo,
		testCaseRepo,
		membershipRepo,
		runnerClient,
		realtimeService,
		pool,
		logger,
		service.EvaluationConfig{
			Languages:     cfg.SupportedLanguages,
			VersionHints:  cfg.LanguageVersions,
			RunnerTimeout: cfg.RunnerTimeout,
		},
	)

	validate := validator.New(validator.WithRequiredStructEnabled())

	evaluationHandler := handler.NewEvaluationHandler(evaluationService, validate, logger)
	realtimeHandler := handler.NewRealtimeHandler(realtimeService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: evaluationHandler,
		RealtimeHandler:   realtimeHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, pool)
}

func waitForShutdown(app *fiber.App, pool *service.WorkerPool) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	// Let in-flight evaluation runs reach their terminal summary.
	pool.Close()

	log.Println("server stopped")
}
