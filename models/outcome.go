package models

import "time"

// LoginState is a state of the login state machine.
type LoginState string

const (
	StateUnchecked            LoginState = "unchecked"
	StateAutoDetectedSuccess  LoginState = "auto-detected-success"
	StateNeedsManualLogin     LoginState = "needs-manual-login"
	StateManualLoginSubmitted LoginState = "manual-login-submitted"
	StateAuthenticated        LoginState = "authenticated"
	StateNotAuthenticated     LoginState = "not-authenticated"
)

// DetectionMethod names the signal that confirmed a login.
type DetectionMethod string

const (
	DetectionNone      DetectionMethod = ""
	DetectionPathMatch DetectionMethod = "path-match"
	DetectionFlagMatch DetectionMethod = "flag-match"
)

// SettleStats summarises one navigation settle cycle.
type SettleStats struct {
	Redirects      []string `json:"redirects,omitempty"`
	ScriptsRun     int      `json:"scripts_run"`
	ScriptsSkipped int      `json:"scripts_skipped"`
	ScriptFailures []string `json:"script_failures,omitempty"`
	NativeScripts  bool     `json:"native_scripts,omitempty"`
}

// LoginOutcome is the result of one login run.
type LoginOutcome struct {
	RunID           string          `json:"run_id"`
	Authenticated   bool            `json:"authenticated"`
	DetectionMethod DetectionMethod `json:"detection_method,omitempty"`

	// RawMessage is the flag message read from the page, if any.
	RawMessage string `json:"raw_message,omitempty"`

	State    LoginState `json:"state"`
	Injected int        `json:"injected"`
	FinalURL string     `json:"final_url"`

	// PortalMessage is the text of the portal's own error element after a
	// failed attempt.
	PortalMessage string `json:"portal_message,omitempty"`

	// Summary is a short readable rendering of the final page.
	Summary string `json:"summary,omitempty"`

	// PageChanged reports whether the document structure differed after
	// the login script ran.
	PageChanged bool `json:"page_changed"`

	Settle    SettleStats   `json:"settle"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
