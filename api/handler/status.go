package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/wlanlogin/models"
	"github.com/use-agent/wlanlogin/supervisor"
)

const (
	defaultAttemptLimit = 20
	maxAttemptLimit     = 200
)

// Status returns a handler for GET /api/v1/status.
func Status(sup *supervisor.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, sup.Status())
	}
}

// Attempts returns a handler for GET /api/v1/attempts?limit=N.
func Attempts(sup *supervisor.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultAttemptLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, models.AttemptsResponse{
					Success: false,
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeInvalidInput,
						Message: "limit must be a positive integer",
					},
				})
				return
			}
			limit = min(n, maxAttemptLimit)
		}

		hist := sup.History()
		c.JSON(http.StatusOK, models.AttemptsResponse{
			Success:  true,
			Total:    hist.Total(),
			Attempts: hist.List(limit),
		})
	}
}
