package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health reports liveness plus a facilitator advisory. A facilitator outage
// degrades the advisory only; this endpoint and the 402 path stay up.
func (s *Server) Health(c *gin.Context) {
	facilitatorStatus := gin.H{"online": false}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if status, err := s.facilitator.CheckHealth(ctx); err == nil {
		facilitatorStatus = gin.H{
			"online":  status.Healthy,
			"network": status.Network,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"facilitator": facilitatorStatus,
	})
}
