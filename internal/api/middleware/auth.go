package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/faultline/faultline/internal/domain"
)

// ContextKey type for context keys
type ContextKey string

// ContextProject is the gin context key holding the authenticated project
const ContextProject ContextKey = "project"

// ProjectResolver maps a hashed bearer credential to a project
type ProjectResolver func(c *gin.Context, keyHash string) (*domain.Project, error)

// ProjectAuth authenticates the project bearer credential. The key is
// accepted from the Authorization header ("Bearer <key>") or X-API-Key.
func ProjectAuth(salt string, resolve ProjectResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing project API key",
			})
			return
		}

		project, err := resolve(c, HashAPIKey(apiKey, salt))
		if err != nil || project == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid project API key",
			})
			return
		}

		c.Set(string(ContextProject), project)
		c.Next()
	}
}

// ProjectFromContext returns the authenticated project set by ProjectAuth
func ProjectFromContext(c *gin.Context) (*domain.Project, bool) {
	value, exists := c.Get(string(ContextProject))
	if !exists {
		return nil, false
	}
	project, ok := value.(*domain.Project)
	return project, ok
}

// HashAPIKey creates a SHA-256 hash of an API key with salt
func HashAPIKey(key, salt string) string {
	hash := sha256.Sum256([]byte(salt + key))
	return hex.EncodeToString(hash[:])
}
