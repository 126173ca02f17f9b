package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/api/middleware"
	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/service"
)

// AlertHandler handles alert rule administration and alert lifecycle
type AlertHandler struct {
	rules  *service.RuleService
	engine *service.NotificationEngine
	logger *zap.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(rules *service.RuleService, engine *service.NotificationEngine, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{rules: rules, engine: engine, logger: logger}
}

// AlertRuleRequest is the inbound rule create/update body
type AlertRuleRequest struct {
	Name            string                   `json:"name" binding:"required,min=1,max=255"`
	Type            string                   `json:"type" binding:"required,ruletype"`
	Conditions      domain.RuleConditions    `json:"conditions"`
	Channels        []domain.ChannelRef      `json:"channels" binding:"required,min=1"`
	CooldownMinutes float64                  `json:"cooldownMinutes" binding:"gte=0"`
	Enabled         *bool                    `json:"enabled"`
	Escalation      *domain.EscalationPolicy `json:"escalation,omitempty"`
}

func (r *AlertRuleRequest) toDomain() *domain.AlertRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &domain.AlertRule{
		Name:            r.Name,
		Type:            r.Type,
		Conditions:      r.Conditions,
		Channels:        r.Channels,
		CooldownMinutes: r.CooldownMinutes,
		Enabled:         enabled,
		Escalation:      r.Escalation,
	}
}

// scopedProject validates that the path project matches the credential
func scopedProject(c *gin.Context) (*domain.Project, bool) {
	project, ok := middleware.ProjectFromContext(c)
	if !ok {
		c.Error(domain.ErrUnauthorized)
		return nil, false
	}
	param := c.Param("projectId")
	if param != "" && param != project.ID.String() {
		c.Error(domain.ErrNotFound)
		return nil, false
	}
	return project, true
}

// CreateRule handles POST /api/projects/:projectId/alert-rules
func (h *AlertHandler) CreateRule(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}

	var req AlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "message": err.Error()})
		return
	}

	rule, err := h.rules.Create(c.Request.Context(), project.ID, req.toDomain())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": rule})
}

// ListRules handles GET /api/projects/:projectId/alert-rules
func (h *AlertHandler) ListRules(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}

	rules, err := h.rules.List(c.Request.Context(), project.ID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rules})
}

// GetRule handles GET /api/projects/:projectId/alert-rules/:ruleId
func (h *AlertHandler) GetRule(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}
	ruleID, err := uuid.Parse(c.Param("ruleId"))
	if err != nil {
		c.Error(domain.ErrNotFound)
		return
	}

	rule, err := h.rules.Get(c.Request.Context(), project.ID, ruleID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rule})
}

// UpdateRule handles PUT /api/projects/:projectId/alert-rules/:ruleId
func (h *AlertHandler) UpdateRule(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}
	ruleID, err := uuid.Parse(c.Param("ruleId"))
	if err != nil {
		c.Error(domain.ErrNotFound)
		return
	}

	var req AlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "message": err.Error()})
		return
	}

	rule, err := h.rules.Update(c.Request.Context(), project.ID, ruleID, req.toDomain())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rule})
}

// DeleteRule handles DELETE /api/projects/:projectId/alert-rules/:ruleId
func (h *AlertHandler) DeleteRule(c *gin.Context) {
	project, ok := scopedProject(c)
	if !ok {
		return
	}
	ruleID, err := uuid.Parse(c.Param("ruleId"))
	if err != nil {
		c.Error(domain.ErrNotFound)
		return
	}

	if err := h.rules.Delete(c.Request.Context(), project.ID, ruleID); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Acknowledge handles POST /api/alerts/:alertId/acknowledge
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	alertID := c.Param("alertId")
	found := h.engine.Acknowledge(c.Request.Context(), alertID)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"alertId": alertID, "acknowledged": true, "found": found}})
}

// Resolve handles POST /api/alerts/:alertId/resolve
func (h *AlertHandler) Resolve(c *gin.Context) {
	alertID := c.Param("alertId")
	found := h.engine.Resolve(c.Request.Context(), alertID)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"alertId": alertID, "resolved": true, "found": found}})
}
