package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/use-agent/wlanlogin/models"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Portal.LoginURL = "https://w.xidian.edu.cn/index_8.html"
	cfg.Portal.Username = "2202"
	cfg.Portal.Password = "secret"
	return cfg
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing url", func(c *Config) { c.Portal.LoginURL = "" }, ErrMissingLoginURL},
		{"relative url", func(c *Config) { c.Portal.LoginURL = "/index.html" }, ErrInvalidLoginURL},
		{"ftp url", func(c *Config) { c.Portal.LoginURL = "ftp://w.xidian.edu.cn/" }, ErrInvalidLoginURL},
		{"missing username", func(c *Config) { c.Portal.Username = "" }, ErrMissingUsername},
		{"missing password", func(c *Config) { c.Portal.Password = "" }, ErrMissingPassword},
		{"bad domain", func(c *Config) { c.Portal.Domain = "@xx" }, ErrInvalidDomain},
		{"bad vendor", func(c *Config) { c.Portal.Vendor = "srun" }, ErrInvalidVendor},
		{"bad backend", func(c *Config) { c.Browser.Backend = "webkit" }, ErrInvalidBackend},
		{"bad engine", func(c *Config) { c.Engine.SettleTimeout = 0 }, ErrInvalidEngine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			var le *models.LoginError
			if !errors.As(err, &le) || le.Code != models.ErrCodeConfiguration {
				t.Fatalf("error %v is not a CONFIGURATION_ERROR", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.want)
			}
		})
	}
}

func TestValidate_DiscoveryAllowsMissingURL(t *testing.T) {
	cfg := validConfig()
	cfg.Portal.LoginURL = ""
	cfg.Probe.Discover = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_AllowedDomains(t *testing.T) {
	for _, d := range []string{"", "@dx", "@lt", "@yd"} {
		cfg := validConfig()
		cfg.Portal.Domain = d
		if err := cfg.Validate(); err != nil {
			t.Errorf("domain %q rejected: %v", d, err)
		}
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
portal:
  login_url: https://file.example/index.html
  username: from-file
  vendor: portal-api
engine:
  max_redirects: 4
  settle_timeout: 2s
  skip_scripts: ["/js/analytics.js"]
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDWLAN_CONFIG", path)
	t.Setenv("XDWLAN_USERNAME", "from-env")
	t.Setenv("XDWLAN_DOMAIN", "@dx")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
	if cfg.Portal.LoginURL != "https://file.example/index.html" {
		t.Errorf("LoginURL = %q", cfg.Portal.LoginURL)
	}
	if cfg.Portal.Username != "from-env" {
		t.Errorf("Username = %q, want env value", cfg.Portal.Username)
	}
	if cfg.Portal.Domain != "@dx" {
		t.Errorf("Domain = %q", cfg.Portal.Domain)
	}
	if cfg.Portal.Vendor != VendorPortalAPI {
		t.Errorf("Vendor = %q", cfg.Portal.Vendor)
	}
	if cfg.Engine.MaxRedirects != 4 || cfg.Engine.SettleTimeout != 2*time.Second {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if len(cfg.Engine.SkipScripts) != 1 || cfg.Engine.SkipScripts[0] != "/js/analytics.js" {
		t.Errorf("SkipScripts = %v", cfg.Engine.SkipScripts)
	}
	// Untouched keys keep their defaults.
	if cfg.Portal.SuccessPath != "/srun_portal_success" {
		t.Errorf("SuccessPath = %q", cfg.Portal.SuccessPath)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("XDWLAN_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil error for a missing XDWLAN_CONFIG file")
	}
}

func TestEnvSliceOr(t *testing.T) {
	t.Setenv("XDWLAN_TEST_SLICE", " a, ,b ,c")
	got := envSliceOr("XDWLAN_TEST_SLICE", nil)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("envSliceOr = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("envSliceOr[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
