package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/use-agent/wlanlogin/models"
)

// Sentinel validation errors, wrapped into a CONFIGURATION_ERROR.
var (
	ErrMissingLoginURL = errors.New("login URL is required (XDWLAN_LOGIN_URL)")
	ErrInvalidLoginURL = errors.New("login URL must be an absolute http(s) URL")
	ErrMissingUsername = errors.New("username is required (XDWLAN_USERNAME)")
	ErrMissingPassword = errors.New("password is required (XDWLAN_PASSWORD)")
	ErrInvalidDomain   = errors.New("domain is not in the allowed list")
	ErrInvalidVendor   = errors.New("vendor must be \"form\" or \"portal-api\"")
	ErrInvalidBackend  = errors.New("backend must be \"emulated\" or \"rod\"")
	ErrInvalidEngine   = errors.New("engine limits must be positive")
)

// Validate checks the fields a login run depends on. It returns nil or a
// *models.LoginError with code CONFIGURATION_ERROR whose Err joins every
// problem found.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Portal.LoginURL == "" && !c.Probe.Discover:
		errs = append(errs, ErrMissingLoginURL)
	case c.Portal.LoginURL != "":
		u, err := url.Parse(c.Portal.LoginURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLoginURL, c.Portal.LoginURL))
		}
	}
	if c.Portal.Username == "" {
		errs = append(errs, ErrMissingUsername)
	}
	if c.Portal.Password == "" {
		errs = append(errs, ErrMissingPassword)
	}
	if len(c.Portal.AllowedDomains) > 0 && !slices.Contains(c.Portal.AllowedDomains, c.Portal.Domain) {
		errs = append(errs, fmt.Errorf("%w: %q (allowed: %q)", ErrInvalidDomain, c.Portal.Domain, c.Portal.AllowedDomains))
	}
	if c.Portal.Vendor != VendorForm && c.Portal.Vendor != VendorPortalAPI {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidVendor, c.Portal.Vendor))
	}
	if c.Browser.Backend != BackendEmulated && c.Browser.Backend != BackendRod {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidBackend, c.Browser.Backend))
	}
	if c.Engine.MaxRedirects < 0 || c.Engine.SettleTimeout <= 0 || c.Engine.ScriptTimeout <= 0 {
		errs = append(errs, ErrInvalidEngine)
	}

	if len(errs) == 0 {
		return nil
	}
	return models.NewLoginError(models.ErrCodeConfiguration, "invalid configuration", errors.Join(errs...))
}
