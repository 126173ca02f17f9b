package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/repository/postgres"
	"github.com/faultline/faultline/internal/service"
)

// DeploymentHandler records and lists release markers
type DeploymentHandler struct {
	deployments *service.DeploymentService
	logger      *zap.Logger
}

// NewDeploymentHandler creates a new deployment handler
func NewDeploymentHandler(deployments *service.DeploymentService, logger *zap.Logger) *DeploymentHandler {
	return &DeploymentHandler{deployments: deployments, logger: logger}
}

// CreateDeploymentRequest is the inbound deployment body
type CreateDeploymentRequest struct {
	Version     string  `json:"version" binding:"required,min=1,max=255"`
	Environment string  `json:"environment" binding:"omitempty,max=100"`
	DeployedBy  string  `json:"deployedBy" binding:"omitempty,max=255"`
	Timestamp   *string `json:"timestamp,omitempty"`
}

// Create handles POST /api/projects/:projectId/deployments
func (h *DeploymentHandler) Create(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}

	var req CreateDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "message": err.Error()})
		return
	}

	var at *time.Time
	if req.Timestamp != nil {
		ts, err := time.Parse(time.RFC3339, *req.Timestamp)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "message": "timestamp must be ISO-8601"})
			return
		}
		at = &ts
	}

	deployment, err := h.deployments.Create(c.Request.Context(), project.ID, req.Version, req.Environment, req.DeployedBy, at)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": deployment})
}

// List handles GET /api/projects/:projectId/deployments
func (h *DeploymentHandler) List(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	deployments, err := h.deployments.List(c.Request.Context(), project.ID, &postgres.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": deployments})
}
