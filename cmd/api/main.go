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
	"github.com/rs/zerolog"

	"github.com/talentforge/talentforge-api/internal/config"
	"github.com/talentforge/talentforge-api/internal/database"
	"github.com/talentforge/talentforge-api/internal/handler"
	"github.com/talentforge/talentforge-api/internal/middleware"
	"github.com/talentforge/talentforge-api/internal/models"
	"github.com/talentforge/talentforge-api/internal/repository"
	"github.com/talentforge/talentforge-api/internal/router"
	"github.com/talentforge/talentforge-api/internal/security"
	"github.com/talentforge/talentforge-api/internal/service"
	"github.com/talentforge/talentforge-api/internal/store"
	"github.com/talentforge/talentforge-api/pkg/github"
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
		&models.Candidate{},
		&models.Assessment{},
		&models.CandidateAttempt{},
		&models.Evaluation{},
		&models.Installation{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	cipher, err := security.NewTokenCipher(cfg.TokenCipherKey)
	if err != nil {
		log.Fatalf("failed to initialize token cipher: %v", err)
	}

	privateKey, err := os.ReadFile(cfg.GithubPrivateKeyPath)
	if err != nil {
		log.Fatalf("failed to read app private key: %v", err)
	}

	signer, err := github.NewAppSigner(cfg.GithubAppID, privateKey)
	if err != nil {
		log.Fatalf("failed to initialize app signer: %v", err)
	}

	githubClient, err := github.New(github.Config{
		BaseURL:      cfg.GithubAPIBaseURL,
		OAuthBaseURL: cfg.GithubOAuthBaseURL,
		ClientID:     cfg.GithubClientID,
		ClientSecret: cfg.GithubClientSecret,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create github client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assessmentRepo := repository.NewAssessmentRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	candidateRepo := repository.NewCandidateRepository(db)
	userRepo := repository.NewUserRepository(db)
	installationRepo := repository.NewInstallationRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)

	credentials := store.NewCredentialStore(redisClient, cfg.CredentialTTL, logger)
	events := service.NewEventService(redisClient, cfg.EventChannelBase, natsConn, logger)
	provisioner := service.NewProvisioningService(githubClient, cfg.PlatformOrg, cfg.ServiceAccountLogin, logger)
	installTokens := service.NewInstallationTokenService(installationRepo, signer, githubClient, cipher, logger)

	assessmentService := service.NewAssessmentService(assessmentRepo, userRepo, provisioner, cipher, cfg.ServiceAccountToken, validate, events, logger)
	attemptService := service.NewAttemptService(attemptRepo, candidateRepo, assessmentRepo, evaluationRepo, credentials, provisioner, installTokens, cfg.PlatformInstallID, validate, events, logger)
	candidateAuthService := service.NewCandidateAuthService(credentials, githubClient, logger)

	assessmentHandler := handler.NewAssessmentHandler(assessmentService, logger)
	attemptHandler := handler.NewAttemptHandler(attemptService, logger)
	candidateAuthHandler := handler.NewCandidateAuthHandler(candidateAuthService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssessmentHandler:    assessmentHandler,
		AttemptHandler:       attemptHandler,
		CandidateAuthHandler: candidateAuthHandler,
		JWTMiddleware:        middleware.JWTProtected(cfg.JWTSecret),
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
