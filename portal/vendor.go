// Package portal holds the login adapters for the captive-portal vendors
// wlanlogin knows how to drive.
//
// An adapter turns credentials into a script that is run against the
// settled portal page, and decides from the page state whether the
// client is authenticated. Credentials reach the script as one JSON
// argument to a fixed function body; nothing is spliced into script text.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/use-agent/wlanlogin/browser"
	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/models"
)

// PendingMessage is the flag message a login script starts from.
const PendingMessage = "not yet"

// Vendor is a portal login adapter.
type Vendor interface {
	Name() string

	// BuildLoginScript returns the script that submits creds.
	BuildLoginScript(creds models.Credentials) (string, error)

	// DetectSuccess inspects the settled page for a login signal.
	DetectSuccess(ctx context.Context, loc models.PageLocation, exec browser.ExecutionContext) (Detection, error)

	// ResetFlag puts the success flag into its pending state.
	ResetFlag(ctx context.Context, exec browser.ExecutionContext) error
}

// Detection is the result of a success check.
type Detection struct {
	Authenticated bool
	Method        models.DetectionMethod

	// RawMessage is the flag message, empty when the flag is absent.
	RawMessage string
}

// Settings are the per-deployment success signals.
type Settings struct {
	SuccessPath    string
	SuccessFlag    string
	SuccessMessage string
	PortalObject   string
}

// SettingsFrom reads the portal section of cfg.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		SuccessPath:    cfg.Portal.SuccessPath,
		SuccessFlag:    cfg.Portal.SuccessFlag,
		SuccessMessage: cfg.Portal.SuccessMessage,
		PortalObject:   cfg.Portal.PortalObject,
	}
}

func (s *Settings) defaults() {
	if s.SuccessPath == "" {
		s.SuccessPath = "/srun_portal_success"
	}
	if s.SuccessFlag == "" {
		s.SuccessFlag = "xdwlan_login"
	}
	if s.SuccessMessage == "" {
		s.SuccessMessage = "ok"
	}
	if s.PortalObject == "" {
		s.PortalObject = "Portal"
	}
}

// New returns the adapter registered under name.
func New(name string, s Settings) (Vendor, error) {
	s.defaults()
	d := detector{settings: s}
	switch name {
	case "", config.VendorForm:
		return &Form{detector: d}, nil
	case config.VendorPortalAPI:
		return &PortalAPI{detector: d}, nil
	default:
		return nil, models.NewLoginError(models.ErrCodeConfiguration,
			fmt.Sprintf("unknown portal vendor %q (want %s or %s)", name, config.VendorForm, config.VendorPortalAPI), nil)
	}
}

// Names lists the registered vendors.
func Names() []string {
	return []string{config.VendorForm, config.VendorPortalAPI}
}

// params is the single argument handed to every login script body.
type params struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Domain   string `json:"domain"`
	Flag     string `json:"flag"`
	OK       string `json:"ok"`
	Pending  string `json:"pending"`
	Object   string `json:"object,omitempty"`
}

// invoke wraps body as a function expression and calls it with p
// encoded as JSON. HTML escaping is off so credentials stay literal.
func invoke(body string, p params) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("encode login parameters: %w", err)
	}
	arg := strings.TrimSuffix(buf.String(), "\n")
	return "(function (p) {\n" + body + "\n})(" + arg + ");", nil
}

// detector implements the success check shared by all vendors: the
// landing path first, then the flag message.
type detector struct {
	settings Settings
}

func (d detector) params(creds models.Credentials) params {
	return params{
		Username: creds.Username,
		Password: creds.Password,
		Domain:   creds.Domain,
		Flag:     d.settings.SuccessFlag,
		OK:       d.settings.SuccessMessage,
		Pending:  PendingMessage,
	}
}

func (d detector) DetectSuccess(ctx context.Context, loc models.PageLocation, exec browser.ExecutionContext) (Detection, error) {
	if loc.Pathname == d.settings.SuccessPath {
		return Detection{Authenticated: true, Method: models.DetectionPathMatch}, nil
	}
	v, err := exec.Get(ctx, d.settings.SuccessFlag+".message")
	if err != nil {
		return Detection{}, err
	}
	msg := ""
	if v != nil {
		msg = fmt.Sprint(v)
	}
	if msg == d.settings.SuccessMessage {
		return Detection{Authenticated: true, Method: models.DetectionFlagMatch, RawMessage: msg}, nil
	}
	return Detection{RawMessage: msg}, nil
}

func (d detector) ResetFlag(ctx context.Context, exec browser.ExecutionContext) error {
	return exec.Set(ctx, d.settings.SuccessFlag, map[string]string{"message": PendingMessage})
}
