package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/venturely/venturely-backend/internal/clients/assistant"
	"github.com/venturely/venturely-backend/internal/clients/redis"
	"github.com/venturely/venturely-backend/internal/db"
	"github.com/venturely/venturely-backend/internal/handlers"
	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/middleware"
	"github.com/venturely/venturely-backend/internal/observability"
	"github.com/venturely/venturely-backend/internal/repos"
	"github.com/venturely/venturely-backend/internal/server"
	"github.com/venturely/venturely-backend/internal/services"
	"github.com/venturely/venturely-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	port := utils.GetEnv("PORT", "8080", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	planRepo := repos.NewBusinessPlanRepo(thePG, log)
	callLogRepo := repos.NewAssistantCallLogRepo(thePG, log)

	// Clients
	log.Info("Setting up Clients from main...")
	gateway, err := assistant.NewClient(log)
	if err != nil {
		log.Error("Could not init assistant client", "error", err)
		os.Exit(1)
	}
	pacer, err := redis.NewPacer(log)
	if err != nil {
		log.Error("Could not init pacer", "error", err)
		os.Exit(1)
	}
	defer pacer.Close()

	// Topic registry
	registry, err := services.NewTopicRegistry(log)
	if err != nil {
		log.Error("Could not init topic registry", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	authService, err := services.NewAuthService(
		thePG, log, userRepo, userTokenRepo, jwtSecretKey,
		time.Duration(accessTokenTTL)*time.Second,
		time.Duration(refreshTokenTTL)*time.Second,
	)
	if err != nil {
		log.Error("Could not init AuthService", "error", err)
		os.Exit(1)
	}
	userService, err := services.NewUserService(thePG, log, userRepo)
	if err != nil {
		log.Error("Could not init UserService", "error", err)
		os.Exit(1)
	}
	planContent, err := services.NewPlanContentService(thePG, log, planRepo)
	if err != nil {
		log.Error("Could not init PlanContentService", "error", err)
		os.Exit(1)
	}
	convo, err := services.NewConversationService(log, gateway, pacer, planContent, callLogRepo)
	if err != nil {
		log.Error("Could not init ConversationService", "error", err)
		os.Exit(1)
	}
	extraction, err := services.NewExtractionService(log, gateway, pacer, convo)
	if err != nil {
		log.Error("Could not init ExtractionService", "error", err)
		os.Exit(1)
	}
	planService, err := services.NewBusinessPlanService(thePG, log, planRepo, planContent, convo, extraction, registry)
	if err != nil {
		log.Error("Could not init BusinessPlanService", "error", err)
		os.Exit(1)
	}

	// Handlers
	log.Info("Setting up Handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	planHandler := handlers.NewBusinessPlanHandler(planService)
	topicHandler := handlers.NewTopicHandler(log, planService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Observability
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "venturely",
		Environment: os.Getenv("DEPLOY_ENV"),
		Version:     os.Getenv("SERVICE_VERSION"),
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	// Router
	var allowedOrigins []string
	if raw := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins = append(allowedOrigins, origin)
			}
		}
	}
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
		UserHandler:    userHandler,
		PlanHandler:    planHandler,
		TopicHandler:   topicHandler,
		TopicRegistry:  registry,
		AllowedOrigins: allowedOrigins,
	})

	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
