package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/faultline/faultline/internal/domain"
	"github.com/faultline/faultline/internal/service"
)

// UnsubscribeHandler serves the one-click unsubscribe links embedded in
// alert and digest emails.
type UnsubscribeHandler struct {
	members *service.MemberService
	logger  *zap.Logger
}

// NewUnsubscribeHandler creates a new unsubscribe handler
func NewUnsubscribeHandler(members *service.MemberService, logger *zap.Logger) *UnsubscribeHandler {
	return &UnsubscribeHandler{members: members, logger: logger}
}

// Unsubscribe handles GET /api/unsubscribe?token=...
func (h *UnsubscribeHandler) Unsubscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.Error(domain.ValidationErrors{{Field: "token", Message: "token is required"}})
		return
	}

	member, err := h.members.Unsubscribe(c.Request.Context(), token)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"email":        member.Email,
			"unsubscribed": true,
		},
	})
}
