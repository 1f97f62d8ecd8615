package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays XDWLAN_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	p := &cfg.Portal
	p.LoginURL = envOr("XDWLAN_LOGIN_URL", p.LoginURL)
	p.Username = envOr("XDWLAN_USERNAME", p.Username)
	p.Password = envOr("XDWLAN_PASSWORD", p.Password)
	if v, ok := os.LookupEnv("XDWLAN_DOMAIN"); ok {
		// An explicitly empty domain is meaningful.
		p.Domain = v
	}
	p.Vendor = envOr("XDWLAN_VENDOR", p.Vendor)
	p.SuccessPath = envOr("XDWLAN_SUCCESS_PATH", p.SuccessPath)
	p.SuccessFlag = envOr("XDWLAN_SUCCESS_FLAG", p.SuccessFlag)
	p.SuccessMessage = envOr("XDWLAN_SUCCESS_MESSAGE", p.SuccessMessage)
	p.PortalObject = envOr("XDWLAN_PORTAL_OBJECT", p.PortalObject)
	p.ErrorSelector = envOr("XDWLAN_ERROR_SELECTOR", p.ErrorSelector)

	b := &cfg.Browser
	b.Backend = envOr("XDWLAN_BACKEND", b.Backend)
	b.UserAgent = envOr("XDWLAN_USER_AGENT", b.UserAgent)
	b.AcceptLanguage = envOr("XDWLAN_ACCEPT_LANGUAGE", b.AcceptLanguage)
	b.Proxy = envOr("XDWLAN_PROXY", b.Proxy)
	b.InsecureTLS = envBoolOr("XDWLAN_INSECURE_TLS", b.InsecureTLS)
	b.RequestTimeout = envDurationOr("XDWLAN_REQUEST_TIMEOUT", b.RequestTimeout)
	b.DynamicScripts = envBoolOr("XDWLAN_DYNAMIC_SCRIPTS", b.DynamicScripts)
	b.Headless = envBoolOr("XDWLAN_HEADLESS", b.Headless)
	b.NoSandbox = envBoolOr("XDWLAN_NO_SANDBOX", b.NoSandbox)
	b.BrowserBin = envOr("XDWLAN_BROWSER_BIN", b.BrowserBin)
	b.Stealth = envBoolOr("XDWLAN_STEALTH", b.Stealth)
	b.BlockedResourceTypes = envSliceOr("XDWLAN_BLOCKED_RESOURCES", b.BlockedResourceTypes)

	e := &cfg.Engine
	e.MaxRedirects = envIntOr("XDWLAN_MAX_REDIRECTS", e.MaxRedirects)
	e.SkipScripts = envSliceOr("XDWLAN_SKIP_SCRIPTS", e.SkipScripts)
	e.SettleTimeout = envDurationOr("XDWLAN_SETTLE_TIMEOUT", e.SettleTimeout)
	e.ScriptTimeout = envDurationOr("XDWLAN_SCRIPT_TIMEOUT", e.ScriptTimeout)
	e.MaxPageNavigations = envIntOr("XDWLAN_MAX_PAGE_NAVIGATIONS", e.MaxPageNavigations)

	pr := &cfg.Probe
	pr.ProbeURL = envOr("XDWLAN_PROBE_URL", pr.ProbeURL)
	pr.DiscoveryURL = envOr("XDWLAN_DISCOVERY_URL", pr.DiscoveryURL)
	pr.DiscoveryHost = envOr("XDWLAN_DISCOVERY_HOST", pr.DiscoveryHost)
	pr.Discover = envBoolOr("XDWLAN_DISCOVER", pr.Discover)
	pr.Attempts = envIntOr("XDWLAN_DISCOVERY_ATTEMPTS", pr.Attempts)
	pr.Timeout = envDurationOr("XDWLAN_PROBE_TIMEOUT", pr.Timeout)
	pr.MemoryTTL = envDurationOr("XDWLAN_DISCOVERY_TTL", pr.MemoryTTL)

	w := &cfg.Watch
	w.Check = envDurationOr("XDWLAN_CHECK_INTERVAL", w.Check)
	w.Retry = envDurationOr("XDWLAN_RETRY_INTERVAL", w.Retry)
	w.NetworkSettle = envDurationOr("XDWLAN_NETWORK_SETTLE", w.NetworkSettle)
	w.AttemptsPerMinute = envFloatOr("XDWLAN_ATTEMPTS_PER_MINUTE", w.AttemptsPerMinute)
	w.AttemptBurst = envIntOr("XDWLAN_ATTEMPT_BURST", w.AttemptBurst)

	s := &cfg.Server
	s.Enabled = envBoolOr("XDWLAN_SERVER_ENABLED", s.Enabled)
	s.Host = envOr("XDWLAN_HOST", s.Host)
	s.Port = envIntOr("XDWLAN_PORT", s.Port)
	s.Mode = envOr("XDWLAN_MODE", s.Mode)

	cfg.Auth.Enabled = envBoolOr("XDWLAN_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.APIKeys = envSliceOr("XDWLAN_API_KEYS", cfg.Auth.APIKeys)

	cfg.RateLimit.RequestsPerSecond = envFloatOr("XDWLAN_RATE_RPS", cfg.RateLimit.RequestsPerSecond)
	cfg.RateLimit.Burst = envIntOr("XDWLAN_RATE_BURST", cfg.RateLimit.Burst)

	cfg.Webhook.URL = envOr("XDWLAN_WEBHOOK_URL", cfg.Webhook.URL)
	cfg.Webhook.Secret = envOr("XDWLAN_WEBHOOK_SECRET", cfg.Webhook.Secret)

	cfg.History.MaxEntries = envIntOr("XDWLAN_HISTORY_MAX", cfg.History.MaxEntries)

	l := &cfg.Log
	l.Level = envOr("XDWLAN_LOG_LEVEL", l.Level)
	l.Format = envOr("XDWLAN_LOG_FORMAT", l.Format)
	l.File = envOr("XDWLAN_LOG_FILE", l.File)
	l.MaxSizeMB = envIntOr("XDWLAN_LOG_MAX_SIZE", l.MaxSizeMB)
	l.MaxBackups = envIntOr("XDWLAN_LOG_MAX_BACKUPS", l.MaxBackups)
	l.MaxAgeDays = envIntOr("XDWLAN_LOG_MAX_AGE", l.MaxAgeDays)
	l.Compress = envBoolOr("XDWLAN_LOG_COMPRESS", l.Compress)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
