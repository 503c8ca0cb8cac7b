package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	metrics http.Handler
}

// NewHealthHandler serves /healthcheck and, when metrics is non-nil,
// /metrics.
func NewHealthHandler(metrics http.Handler) *HealthHandler { return &HealthHandler{metrics: metrics} }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *HealthHandler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusNotFound)
		return
	}
	h.metrics.ServeHTTP(c.Writer, c.Request)
}
