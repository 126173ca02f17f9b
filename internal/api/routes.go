package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/api/handlers"
	"github.com/faultline/faultline/internal/api/middleware"
	"github.com/faultline/faultline/internal/config"
	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/repository/postgres"
)

// Handlers groups every HTTP handler wired into the router
type Handlers struct {
	Ingest      *handlers.IngestHandler
	Alert       *handlers.AlertHandler
	Issue       *handlers.IssueHandler
	Deployment  *handlers.DeploymentHandler
	Unsubscribe *handlers.UnsubscribeHandler
	Health      *handlers.HealthHandler
}

// SetupRouter builds the gin engine with middleware and all routes
func SetupRouter(cfg *config.Config, h Handlers, projects *postgres.ProjectRepository, logger *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestid.New())
	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.Server.DashboardURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		AllowCredentials: true,
	}))

	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)

	resolve := func(c *gin.Context, keyHash string) (*domain.Project, error) {
		return projects.GetByAPIKeyHash(c.Request.Context(), keyHash)
	}
	auth := middleware.ProjectAuth(cfg.Auth.APIKeySalt, resolve)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/unsubscribe", h.Unsubscribe.Unsubscribe)

		authed := apiGroup.Group("", auth)
		{
			authed.POST("/errors", h.Ingest.Ingest)

			authed.POST("/alerts/:alertId/acknowledge", h.Alert.Acknowledge)
			authed.POST("/alerts/:alertId/resolve", h.Alert.Resolve)

			project := authed.Group("/projects/:projectId")
			{
				project.POST("/alert-rules", h.Alert.CreateRule)
				project.GET("/alert-rules", h.Alert.ListRules)
				project.GET("/alert-rules/:ruleId", h.Alert.GetRule)
				project.PUT("/alert-rules/:ruleId", h.Alert.UpdateRule)
				project.DELETE("/alert-rules/:ruleId", h.Alert.DeleteRule)

				project.GET("/issues", h.Issue.List)
				project.GET("/issues/:issueId", h.Issue.Get)
				project.PATCH("/issues/:issueId/status", h.Issue.UpdateStatus)
				project.PATCH("/issues/:issueId/assign", h.Issue.Assign)

				project.POST("/deployments", h.Deployment.Create)
				project.GET("/deployments", h.Deployment.List)
			}
		}
	}

	return router
}
