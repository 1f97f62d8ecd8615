package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/wlanlogin/models"
	"github.com/use-agent/wlanlogin/supervisor"
)

// Login returns a handler for POST /api/v1/login.
//
// Flow:
//  1. Parse the optional body; an empty body means "use the config".
//  2. Unless forced, probe first and skip when already online.
//  3. Run one attempt; a negative outcome is still a 200.
func Login(sup *supervisor.Supervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.LoginRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, models.NewLoginError(models.ErrCodeInvalidInput, err.Error(), err))
				return
			}
		}
		if req.LoginURL != "" {
			u, err := url.Parse(req.LoginURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				respondError(c, models.NewLoginError(models.ErrCodeInvalidInput,
					"login_url must be an absolute http(s) URL", err))
				return
			}
		}

		// ── 2. Probe and attempt ──────────────────────────────────
		out, skipped, err := sup.Trigger(c.Request.Context(), supervisor.TriggerAPI, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.LoginResponse{
			Success: out == nil || out.Authenticated,
			Skipped: skipped,
			Outcome: out,
		})
	}
}

// respondError maps err to an HTTP status and a LoginResponse body.
func respondError(c *gin.Context, err error) {
	var le *models.LoginError
	if !errors.As(err, &le) {
		le = models.NewLoginError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(mapErrorToStatus(le), models.LoginResponse{
		Success: false,
		Error:   le.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.LoginError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeDiscovery:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeConfiguration:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
