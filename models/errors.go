package models

import "fmt"

// Error codes used in API responses, CLI exit handling and logs.
const (
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeScriptLoad    = "SCRIPT_LOAD_FAILED"
	ErrCodeDiscovery     = "DISCOVERY_FAILED"
	ErrCodeBrowserCrash  = "BROWSER_CRASH"
	ErrCodeTimeout       = "LOGIN_TIMEOUT"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// Navigation failure reasons carried in LoginError.Reason.
const (
	ReasonUnreachable  = "unreachable"
	ReasonRedirectLoop = "redirect-loop"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// LoginError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type LoginError struct {
	Code    string
	Reason  string // sub-classification, e.g. "redirect-loop"
	Message string
	Err     error // wrapped original error
}

func (e *LoginError) Error() string {
	code := e.Code
	if e.Reason != "" {
		code += "(" + e.Reason + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", code, e.Message)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// NewLoginError creates a new LoginError.
func NewLoginError(code, message string, err error) *LoginError {
	return &LoginError{Code: code, Message: message, Err: err}
}

// NewNavigationFailure creates a NAVIGATION_FAILED error with a reason.
func NewNavigationFailure(reason, message string, err error) *LoginError {
	return &LoginError{Code: ErrCodeNavigation, Reason: reason, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *LoginError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Reason: e.Reason, Message: e.Message}
}
