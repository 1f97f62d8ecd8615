package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/wlanlogin/models"
	"github.com/use-agent/wlanlogin/supervisor"
)

// Health returns a handler for GET /api/v1/health.
//
// The service is "healthy" while the last probe found the network online
// and "degraded" otherwise; the endpoint itself always answers 200.
func Health(sup *supervisor.Supervisor, startTime time.Time, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		if !sup.Status().Online {
			status = "degraded"
		}
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		})
	}
}
