package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/api/middleware"
	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/service"
)

// IngestHandler handles the error intake endpoint
type IngestHandler struct {
	ingest *service.IngestService
	logger *zap.Logger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingest *service.IngestService, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{ingest: ingest, logger: logger}
}

// StackFrameRequest is one inbound stack frame
type StackFrameRequest struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Function string `json:"function"`
	InApp    bool   `json:"inApp"`
}

// IngestRequest is the inbound error event
type IngestRequest struct {
	Message     string              `json:"message" binding:"required,min=1"`
	StackTrace  []StackFrameRequest `json:"stackTrace" binding:"omitempty,max=200"`
	Environment string              `json:"environment" binding:"omitempty,max=100"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
	UserContext map[string]any      `json:"userContext,omitempty"`
	Context     map[string]any      `json:"context,omitempty"`
	Request     map[string]any      `json:"request,omitempty"`
	Timestamp   *string             `json:"timestamp,omitempty"`
}

// Ingest handles POST /api/errors
func (h *IngestHandler) Ingest(c *gin.Context) {
	project, ok := middleware.ProjectFromContext(c)
	if !ok {
		c.Error(domain.ErrUnauthorized)
		return
	}

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "validation_failed",
			"message": err.Error(),
		})
		return
	}

	event := &domain.ErrorEvent{
		Message:     req.Message,
		Environment: req.Environment,
		Metadata:    req.Metadata,
		UserContext: req.UserContext,
		Context:     req.Context,
		Request:     req.Request,
	}
	for _, frame := range req.StackTrace {
		event.StackTrace = append(event.StackTrace, domain.StackFrame{
			File:     frame.File,
			Line:     frame.Line,
			Column:   frame.Column,
			Function: frame.Function,
			InApp:    frame.InApp,
		})
	}
	if req.Timestamp != nil {
		ts, err := time.Parse(time.RFC3339, *req.Timestamp)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation_failed",
				"message": "timestamp must be ISO-8601",
			})
			return
		}
		event.Timestamp = &ts
	}

	result, err := h.ingest.Ingest(c.Request.Context(), project, event)
	if err != nil {
		h.logger.Warn("ingest failed",
			zap.String("project_id", project.ID.String()),
			zap.Error(err),
		)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data": gin.H{
			"id":          result.Occurrence.ID,
			"errorId":     result.Issue.ID,
			"fingerprint": result.Fingerprint,
			"count":       result.Issue.Count,
			"status":      result.Issue.Status,
			"isNew":       result.IsNew,
			"lastSeen":    result.Issue.LastSeen.Format(time.RFC3339Nano),
		},
	})
}
