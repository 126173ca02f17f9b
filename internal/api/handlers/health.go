package handlers

import (
	"net/http"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	pg        *pgxpool.Pool
	ch        driver.Conn
	startedAt time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(pg *pgxpool.Pool, ch driver.Conn) *HealthHandler {
	return &HealthHandler{pg: pg, ch: ch, startedAt: time.Now()}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// Ready handles GET /ready; it fails when a backing store is unreachable
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if err := h.pg.Ping(c.Request.Context()); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := h.ch.Ping(c.Request.Context()); err != nil {
		checks["clickhouse"] = err.Error()
		healthy = false
	} else {
		checks["clickhouse"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": checks})
}
