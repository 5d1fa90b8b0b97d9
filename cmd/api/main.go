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
	"github.com/rs/zerolog"

	"github.com/mizuki-lab/shukudai-api/internal/config"
	"github.com/mizuki-lab/shukudai-api/internal/database"
	"github.com/mizuki-lab/shukudai-api/internal/handler"
	"github.com/mizuki-lab/shukudai-api/internal/middleware"
	"github.com/mizuki-lab/shukudai-api/internal/models"
	"github.com/mizuki-lab/shukudai-api/internal/repository"
	"github.com/mizuki-lab/shukudai-api/internal/router"
	"github.com/mizuki-lab/shukudai-api/internal/service"
	cloud "github.com/mizuki-lab/shukudai-api/pkg/cloudinary"
	"github.com/mizuki-lab/shukudai-api/pkg/runner"
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

	if err := db.AutoMigrate(
		&models.User{},
		&models.Class{},
		&models.Material{},
		&models.Lesson{},
		&models.Assignment{},
		&models.ChoiceOption{},
		&models.TestCase{},
		&models.Target{},
		&models.Submission{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, progress caching disabled")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, grading events disabled")
		natsConn = nil
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	var uploader service.FileUploader
	if cfg.CloudinaryCloudName != "" {
		cloudService, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploader = cloudService
	}

	var executor runner.Executor
	dockerExecutor, err := runner.NewDockerExecutor(runner.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("docker unavailable, code grading disabled")
	} else {
		executor = dockerExecutor
		defer dockerExecutor.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	targetRepo := repository.NewTargetRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	events := service.NewGradingEvents(natsConn, "shukudai.grading", logger)

	catalogService := service.NewCatalogService(catalogRepo, validate, logger)
	classService := service.NewClassService(classRepo, userRepo, validate, logger)
	userService := service.NewUserService(userRepo, classRepo, validate, logger)
	targetService := service.NewTargetService(targetRepo, assignmentRepo, userRepo, classRepo, validate, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, catalogRepo, targetService, validate, uploader, logger)
	gradingService := service.NewGradingService(submissionRepo, assignmentRepo, targetService, executor, events, validate, logger)
	progressService := service.NewProgressService(targetRepo, submissionRepo, userRepo, classRepo, catalogRepo, redisClient, cfg.ProgressCacheTTL, logger)

	catalogHandler := handler.NewCatalogHandler(catalogService, logger)
	classHandler := handler.NewClassHandler(classService, progressService, logger)
	assignmentHandler := handler.NewAssignmentHandler(assignmentService, targetService, logger)
	submissionHandler := handler.NewSubmissionHandler(gradingService, logger)
	progressHandler := handler.NewProgressHandler(progressService, logger)
	userHandler := handler.NewUserHandler(userService, targetService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		CatalogHandler:    catalogHandler,
		ClassHandler:      classHandler,
		AssignmentHandler: assignmentHandler,
		SubmissionHandler: submissionHandler,
		ProgressHandler:   progressHandler,
		UserHandler:       userHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
