package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notely/internal/monitoring"
	"github.com/charlesng35/notely/pkg/response"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	health *monitoring.HealthManager
}

func NewHealthHandler(health *monitoring.HealthManager) *HealthHandler {
	if health == nil {
		health = monitoring.NewHealthManager()
	}
	return &HealthHandler{health: health}
}

// GET /api/health
func (h *HealthHandler) Status(c *gin.Context) {
	report := monitoring.MergeReports(
		h.health.EvaluateLiveness(requestContext(c)),
		h.health.EvaluateReadiness(requestContext(c)),
	)
	response.Success(c, reportStatus(report), gin.H{
		"message": "Server is running!",
		"status":  report.Status,
		"checks":  report.Checks,
	})
}

// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	h.write(c, h.health.EvaluateLiveness(requestContext(c)))
}

// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	h.write(c, h.health.EvaluateReadiness(requestContext(c)))
}

func (h *HealthHandler) write(c *gin.Context, report monitoring.HealthReport) {
	c.JSON(reportStatus(report), report)
}

// degraded dependencies still serve traffic
func reportStatus(report monitoring.HealthReport) int {
	if report.Status == monitoring.StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
