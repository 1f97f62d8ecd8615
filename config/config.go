package config

import (
	"time"

	"github.com/use-agent/wlanlogin/models"
)

// Config holds all application configuration.
//
// Values are layered: built-in defaults, then the optional YAML file, then
// XDWLAN_* environment variables, then command-line flags.
type Config struct {
	Portal    PortalConfig    `yaml:"portal"`
	Browser   BrowserConfig   `yaml:"browser"`
	Engine    EngineConfig    `yaml:"engine"`
	Probe     ProbeConfig     `yaml:"probe"`
	Watch     WatchConfig     `yaml:"watch"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	History   HistoryConfig   `yaml:"history"`
	Log       LogConfig       `yaml:"log"`

	// File is the config file that was loaded, empty if none.
	File string `yaml:"-"`
}

// Vendor names accepted in PortalConfig.Vendor.
const (
	VendorForm      = "form"
	VendorPortalAPI = "portal-api"
)

// Backend names accepted in BrowserConfig.Backend.
const (
	BackendEmulated = "emulated"
	BackendRod      = "rod"
)

// PortalConfig describes the captive portal and the account used on it.
type PortalConfig struct {
	// LoginURL is the portal landing page, e.g. https://w.xidian.edu.cn/index_8.html.
	LoginURL string `yaml:"login_url"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Domain is the ISP suffix appended by the portal ("", "@dx", "@lt", "@yd").
	Domain string `yaml:"domain"`

	// AllowedDomains restricts Domain. Empty disables the check.
	AllowedDomains []string `yaml:"allowed_domains"`

	// Vendor selects the login script adapter: "form" or "portal-api".
	Vendor string `yaml:"vendor"` // default: "form"

	// SuccessPath is the pathname the portal lands on once authenticated.
	SuccessPath string `yaml:"success_path"` // default: "/srun_portal_success"

	// SuccessFlag is the global the login script reports through.
	SuccessFlag string `yaml:"success_flag"` // default: "xdwlan_login"

	// SuccessMessage is the flag message meaning "logged in".
	SuccessMessage string `yaml:"success_message"` // default: "ok"

	// PortalObject is the client object used by the portal-api vendor.
	PortalObject string `yaml:"portal_object"` // default: "Portal"

	// ErrorSelector locates the portal's own error message element.
	ErrorSelector string `yaml:"error_selector"`
}

// BrowserConfig controls the page backend and its network identity.
type BrowserConfig struct {
	// Backend is "emulated" (in-process DOM + JS) or "rod" (headless Chrome).
	Backend string `yaml:"backend"` // default: "emulated"

	UserAgent      string `yaml:"user_agent"`
	AcceptLanguage string `yaml:"accept_language"`

	// Proxy is an http(s):// or socks5:// proxy URL.
	Proxy string `yaml:"proxy"`

	// InsecureTLS skips certificate verification (self-signed portals).
	InsecureTLS bool `yaml:"insecure_tls"`

	// RequestTimeout bounds every single HTTP exchange.
	RequestTimeout time.Duration `yaml:"request_timeout"` // default: 30s

	// DynamicScripts lets scripts inserted by page code (JSONP) load.
	DynamicScripts bool `yaml:"dynamic_scripts"` // default: true

	// Rod backend only.
	Headless             bool     `yaml:"headless"`   // default: true
	NoSandbox            bool     `yaml:"no_sandbox"` // default: false
	BrowserBin           string   `yaml:"browser_bin"`
	Stealth              bool     `yaml:"stealth"` // default: true
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`
}

// EngineConfig controls the navigation engine.
type EngineConfig struct {
	// MaxRedirects is the maximum number of meta-refresh hops per settle.
	MaxRedirects int `yaml:"max_redirects"` // default: 10

	// SkipScripts lists path suffixes of remote scripts that are never fetched.
	SkipScripts []string `yaml:"skip_scripts"`

	// SettleTimeout is the completion-wait window for queued page work.
	SettleTimeout time.Duration `yaml:"settle_timeout"` // default: 5s

	// ScriptTimeout bounds a single script execution.
	ScriptTimeout time.Duration `yaml:"script_timeout"` // default: 10s

	// MaxPageNavigations bounds script-initiated navigations per wait.
	MaxPageNavigations int `yaml:"max_page_navigations"` // default: 10
}

// ProbeConfig controls the connectivity probe and login URL discovery.
type ProbeConfig struct {
	ProbeURL      string        `yaml:"probe_url"`      // default: http://wifi.vivo.com.cn/generate_204
	DiscoveryURL  string        `yaml:"discovery_url"`  // default: http://www.baidu.com
	DiscoveryHost string        `yaml:"discovery_host"` // default: w.xidian.edu.cn
	Discover      bool          `yaml:"discover"`       // default: false
	Attempts      int           `yaml:"attempts"`       // default: 5
	Timeout       time.Duration `yaml:"timeout"`        // default: 10s
	MemoryTTL     time.Duration `yaml:"memory_ttl"`     // default: 24h
}

// WatchConfig controls the supervisor loop.
type WatchConfig struct {
	// Check is the recheck interval while online.
	Check time.Duration `yaml:"check"` // default: 60s

	// Retry is the interval between failed attempts.
	Retry time.Duration `yaml:"retry"` // default: 5s

	// NetworkSettle is the pause between a login and the confirming probe.
	NetworkSettle time.Duration `yaml:"network_settle"` // default: 1s

	// AttemptsPerMinute caps login attempts regardless of Retry.
	AttemptsPerMinute float64 `yaml:"attempts_per_minute"` // default: 6
	AttemptBurst      int     `yaml:"attempt_burst"`       // default: 3
}

// ServerConfig controls the optional status API.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Host    string `yaml:"host"`    // default: "127.0.0.1"
	Port    int    `yaml:"port"`    // default: 8787
	Mode    string `yaml:"mode"`    // "debug", "release", "test"; default: "release"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"` // default: true
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 2
	Burst             int     `yaml:"burst"`               // default: 5
}

// WebhookConfig controls outcome notifications.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// HistoryConfig controls the in-memory attempt history.
type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries"` // default: 200
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "text"

	// File enables a rotating log file in addition to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"` // default: 10
	MaxBackups int    `yaml:"max_backups"` // default: 3
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultUserAgent is the desktop Firefox identity presented to portals.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:137.0) Gecko/20100101 Firefox/137.0"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Portal: PortalConfig{
			AllowedDomains: []string{"", "@dx", "@lt", "@yd"},
			Vendor:         VendorForm,
			SuccessPath:    "/srun_portal_success",
			SuccessFlag:    "xdwlan_login",
			SuccessMessage: "ok",
			PortalObject:   "Portal",
			ErrorSelector:  "#login-error, .error-message, div.error",
		},
		Browser: BrowserConfig{
			Backend:        BackendEmulated,
			UserAgent:      DefaultUserAgent,
			AcceptLanguage: "zh-CN,en-US;q=0.7,en;q=0.3",
			RequestTimeout: 30 * time.Second,
			DynamicScripts: true,
			Headless:       true,
			Stealth:        true,
			BlockedResourceTypes: []string{
				"Image", "Stylesheet", "Font", "Media",
			},
		},
		Engine: EngineConfig{
			MaxRedirects:       10,
			SettleTimeout:      5 * time.Second,
			ScriptTimeout:      10 * time.Second,
			MaxPageNavigations: 10,
		},
		Probe: ProbeConfig{
			ProbeURL:      "http://wifi.vivo.com.cn/generate_204",
			DiscoveryURL:  "http://www.baidu.com",
			DiscoveryHost: "w.xidian.edu.cn",
			Attempts:      5,
			Timeout:       10 * time.Second,
			MemoryTTL:     24 * time.Hour,
		},
		Watch: WatchConfig{
			Check:             60 * time.Second,
			Retry:             5 * time.Second,
			NetworkSettle:     1 * time.Second,
			AttemptsPerMinute: 6,
			AttemptBurst:      3,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
			Mode: "release",
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             5,
		},
		History: HistoryConfig{
			MaxEntries: 200,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load builds the configuration from defaults, the config file (if any) and
// the environment. It does not validate; call Validate once flags are applied.
func Load() (*Config, error) {
	cfg := Default()

	path, err := findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
		cfg.File = path
	}

	applyEnv(cfg)
	return cfg, nil
}

// Credentials returns the portal account as opaque credentials.
func (c *Config) Credentials() models.Credentials {
	return models.Credentials{
		Username: c.Portal.Username,
		Password: c.Portal.Password,
		Domain:   c.Portal.Domain,
	}
}
