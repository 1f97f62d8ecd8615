// Package browser provides the page the navigation engine drives: an
// in-process emulated page (x/net/html document + goja runtime) and a
// headless Chrome page driven through rod.
package browser

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/models"
	"golang.org/x/net/html"
)

// Page is one loaded document plus the execution context its scripts run
// in. Implementations are not safe for concurrent use; a run owns exactly
// one Page.
type Page interface {
	// Navigate loads rawURL (absolute, or relative to the current page)
	// as a new document.
	Navigate(ctx context.Context, rawURL string) error

	// Wait drains queued asynchronous page work (timers, pending
	// requests, script-initiated navigations) within the settle window.
	Wait(ctx context.Context) error

	// Location reports the current document address.
	Location() models.PageLocation

	// Document returns the current document tree.
	Document(ctx context.Context) (*html.Node, error)

	// Fetch performs an HTTP exchange sharing the page's cookies and
	// network identity.
	Fetch(ctx context.Context, req *Request) (*Response, error)

	// Scripting returns the execution context of the current document.
	Scripting() ExecutionContext

	// NativeScripts reports whether the backend runs document scripts by
	// itself, in which case the engine must not run them again.
	NativeScripts() bool

	Close() error
}

// ExecutionContext is the narrow interface to a page's global scope.
type ExecutionContext interface {
	// Get reads a global by dotted path ("xdwlan_login.message"). Missing
	// values yield (nil, nil).
	Get(ctx context.Context, path string) (any, error)

	// Set assigns a JSON-compatible value to a global.
	Set(ctx context.Context, name string, value any) error

	// Run evaluates script text in the global scope.
	Run(ctx context.Context, text string) error
}

// Request is an HTTP request issued through a page.
type Request struct {
	Method string // default GET
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string // final URL after HTTP redirects
}

// Options configures a page backend.
type Options struct {
	UserAgent      string
	AcceptLanguage string
	Proxy          string
	InsecureTLS    bool
	RequestTimeout time.Duration

	// SettleTimeout is the completion-wait window.
	SettleTimeout time.Duration

	// ScriptTimeout bounds a single script evaluation.
	ScriptTimeout time.Duration

	// MaxNavigations bounds script-initiated navigations per Wait.
	MaxNavigations int

	// DynamicScripts lets page code load scripts it inserts itself.
	DynamicScripts bool

	// SkipScript reports whether a script URL must never be fetched.
	SkipScript func(*url.URL) bool

	// Rod backend only.
	Headless             bool
	NoSandbox            bool
	BrowserBin           string
	Stealth              bool
	BlockedResourceTypes []string

	Logger *slog.Logger
}

// OptionsFrom maps the application config onto page options.
func OptionsFrom(cfg *config.Config, skip func(*url.URL) bool) Options {
	return Options{
		UserAgent:            cfg.Browser.UserAgent,
		AcceptLanguage:       cfg.Browser.AcceptLanguage,
		Proxy:                cfg.Browser.Proxy,
		InsecureTLS:          cfg.Browser.InsecureTLS,
		RequestTimeout:       cfg.Browser.RequestTimeout,
		SettleTimeout:        cfg.Engine.SettleTimeout,
		ScriptTimeout:        cfg.Engine.ScriptTimeout,
		MaxNavigations:       cfg.Engine.MaxPageNavigations,
		DynamicScripts:       cfg.Browser.DynamicScripts,
		SkipScript:           skip,
		Headless:             cfg.Browser.Headless,
		NoSandbox:            cfg.Browser.NoSandbox,
		BrowserBin:           cfg.Browser.BrowserBin,
		Stealth:              cfg.Browser.Stealth,
		BlockedResourceTypes: cfg.Browser.BlockedResourceTypes,
	}
}

func (o *Options) defaults() {
	if o.UserAgent == "" {
		o.UserAgent = config.DefaultUserAgent
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = 5 * time.Second
	}
	if o.ScriptTimeout <= 0 {
		o.ScriptTimeout = 10 * time.Second
	}
	if o.MaxNavigations <= 0 {
		o.MaxNavigations = 10
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Open creates a page for the named backend.
func Open(ctx context.Context, backend string, opts Options) (Page, error) {
	switch backend {
	case "", config.BackendEmulated:
		return NewEmulatedPage(opts)
	case config.BackendRod:
		return NewRodPage(ctx, opts)
	default:
		return nil, models.NewLoginError(models.ErrCodeConfiguration, "unknown page backend "+backend, nil)
	}
}
