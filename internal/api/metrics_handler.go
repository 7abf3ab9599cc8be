package api

import (
	"net/http"

	"cyberguard-server/internal/services"

	"github.com/gin-gonic/gin"
)

type MetricsHandler struct {
	metricsService *services.MetricsService
}

func NewMetricsHandler(metricsService *services.MetricsService) *MetricsHandler {
	return &MetricsHandler{
		metricsService: metricsService,
	}
}

// Realtime returns the current published snapshot
func (h *MetricsHandler) Realtime(c *gin.Context) {
	c.JSON(http.StatusOK, h.metricsService.Realtime())
}

// Refresh forces a recompute and returns the new snapshot
func (h *MetricsHandler) Refresh(c *gin.Context) {
	c.JSON(http.StatusOK, h.metricsService.Refresh())
}
