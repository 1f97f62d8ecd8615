package models

import "time"

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// StatusResponse is the response for GET /api/v1/status.
type StatusResponse struct {
	Success     bool          `json:"success"`
	Online      bool          `json:"online"`
	LastChecked time.Time     `json:"last_checked,omitempty"`
	LoginURL    string        `json:"login_url,omitempty"`
	Attempts    int           `json:"attempts"`
	Failures    int           `json:"consecutive_failures"`
	LastOutcome *LoginOutcome `json:"last_outcome,omitempty"`
	LastError   *ErrorDetail  `json:"last_error,omitempty"`
}

// LoginResponse is the response for POST /api/v1/login.
type LoginResponse struct {
	Success bool `json:"success"`

	// Skipped is set when the probe found the network online and the
	// request did not force a login.
	Skipped bool          `json:"skipped,omitempty"`
	Outcome *LoginOutcome `json:"outcome,omitempty"`
	Error   *ErrorDetail  `json:"error,omitempty"`
}

// AttemptsResponse is the response for GET /api/v1/attempts.
type AttemptsResponse struct {
	Success  bool         `json:"success"`
	Total    int          `json:"total"`
	Attempts []Attempt    `json:"attempts"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// Attempt is one recorded login attempt.
type Attempt struct {
	ID        string        `json:"id"`
	Trigger   string        `json:"trigger"` // "cli", "watch", "api"
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Outcome   *LoginOutcome `json:"outcome,omitempty"`
	Error     *ErrorDetail  `json:"error,omitempty"`
}

// ErrorResponse is the body of middleware rejections.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
