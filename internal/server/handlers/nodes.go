package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bootarou/xympay-sub000/internal/infrastructure/nodes"
)

// NodesHandler exposes the node registry's view of the configured Symbol
// nodes for operators.
type NodesHandler struct {
	registry *nodes.Registry
}

func NewNodesHandler(registry *nodes.Registry) *NodesHandler {
	return &NodesHandler{registry: registry}
}

func (h *NodesHandler) NodesHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"nodes":     h.registry.HealthSnapshot(),
		"timestamp": time.Now(),
	})
}

func (h *NodesHandler) NodesStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Statistics())
}
