package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/venturely/venturely-backend/internal/handlers"
	"github.com/venturely/venturely-backend/internal/middleware"
	"github.com/venturely/venturely-backend/internal/services"
)

type RouterConfig struct {
	AuthHandler    *handlers.AuthHandler
	AuthMiddleware *middleware.AuthMiddleware
	UserHandler    *handlers.UserHandler
	PlanHandler    *handlers.BusinessPlanHandler
	TopicHandler   *handlers.TopicHandler
	TopicRegistry  *services.TopicRegistry
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("venturely"))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	api := router.Group("/api")
	api.POST("/register", cfg.AuthHandler.Register)
	api.POST("/login", cfg.AuthHandler.Login)

	// ===============
	// || Protected ||
	// ===============
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Auth
	protected.POST("/refresh", cfg.AuthHandler.Refresh)
	protected.POST("/logout", cfg.AuthHandler.Logout)
	// User
	protected.GET("/user", cfg.UserHandler.GetMe)
	// Plans
	plans := protected.Group("/business-plans")
	plans.POST("", cfg.PlanHandler.Create)
	plans.GET("", cfg.PlanHandler.List)
	plans.GET("/:id", cfg.PlanHandler.Get)
	plans.GET("/:id/summary", cfg.PlanHandler.Summary)
	plans.POST("/:id/refresh-summaries", cfg.PlanHandler.RefreshSummaries)

	// One parameterized handler serves every topic route; operations topics
	// nest under /operations/.
	for _, topic := range cfg.TopicRegistry.Topics() {
		path := "/:id/" + topic.Slug
		if topic.Operations {
			path = "/:id/operations/" + topic.Slug
		}
		plans.GET(path, cfg.TopicHandler.Get(topic))
		plans.POST(path, cfg.TopicHandler.Turn(topic))
		plans.PUT(path, cfg.TopicHandler.Turn(topic))
	}

	return router
}
