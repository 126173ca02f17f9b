package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/repository/postgres"
	"github.com/faultline/faultline/internal/service"
)

// IssueHandler serves grouped issue reads and status transitions
type IssueHandler struct {
	issues *service.IssueService
	logger *zap.Logger
}

// NewIssueHandler creates a new issue handler
func NewIssueHandler(issues *service.IssueService, logger *zap.Logger) *IssueHandler {
	return &IssueHandler{issues: issues, logger: logger}
}

// List handles GET /api/projects/:projectId/issues
func (h *IssueHandler) List(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	filter := postgres.IssueListFilter{
		Status:      c.Query("status"),
		Environment: c.Query("environment"),
	}

	issues, err := h.issues.List(c.Request.Context(), project.ID, filter, &postgres.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": issues})
}

// Get handles GET /api/projects/:projectId/issues/:issueId
func (h *IssueHandler) Get(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}
	issueID, err := uuid.Parse(c.Param("issueId"))
	if err != nil {
		c.Error(domain.ErrNotFound)
		return
	}

	issue, err := h.issues.Get(c.Request.Context(), project.ID, issueID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": issue})
}

// UpdateStatusRequest is the inbound status transition body
type UpdateStatusRequest struct {
	Status    string `json:"status" binding:"required,issuestatus"`
	ChangedBy string `json:"changedBy,omitempty" binding:"max=255"`
}

// UpdateStatus handles PATCH /api/projects/:projectId/issues/:issueId/status
func (h *IssueHandler) UpdateStatus(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}
	issueID, err := uuid.Parse(c.Param("issueId"))
	if err != nil {
		c.Error(domain.ErrNotFound)
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "message": err.Error()})
		return
	}

	issue, err := h.issues.UpdateStatus(c.Request.Context(), project.ID, issueID, req.Status, req.ChangedBy)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": issue})
}

// AssignRequest is the inbound assignment body. An empty assignedTo clears
// the assignment.
type AssignRequest struct {
	AssignedTo string `json:"assignedTo" binding:"max=255"`
	ChangedBy  string `json:"changedBy,omitempty" binding:"max=255"`
}

// Assign handles PATCH /api/projects/:projectId/issues/:issueId/assign
func (h *IssueHandler) Assign(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}
	issueID, err := uuid.Parse(c.Param("issueId"))
	if err != nil {
		c.Error(domain.ErrNotFound)
		return
	}

	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "message": err.Error()})
		return
	}

	issue, err := h.issues.Assign(c.Request.Context(), project.ID, issueID, req.AssignedTo, req.ChangedBy)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": issue})
}
