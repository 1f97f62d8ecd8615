package models

// LoginRequest is the optional body of POST /api/v1/login.
// Empty fields fall back to the configured values.
type LoginRequest struct {
	LoginURL string `json:"login_url,omitempty"`

	// Force runs a login even if the connectivity probe reports online.
	Force bool `json:"force,omitempty"`
}
