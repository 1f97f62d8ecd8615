package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/wlanlogin/models"
	"github.com/ysmood/gson"
	"golang.org/x/net/html"
)

// RodPage drives a headless Chromium tab. The browser runs document
// scripts itself, so the engine only resolves redirects and injects.
type RodPage struct {
	opts    Options
	log     *slog.Logger
	browser *rod.Browser
	page    *rod.Page
	router  *rod.HijackRouter
	client  *http.Client
}

// NewRodPage launches a browser and opens one tab.
//
// Lifecycle:
//
//  1. Launch          – stealth flags, optional proxy and binary
//  2. Connect         – CDP session
//  3. Open tab
//  4. Identity        – user agent, languages, Sec-GPC (before any navigation)
//  5. Stealth         – mask navigator.webdriver etc. (before any navigation)
//  6. Hijack          – block resource types and skipped scripts
func NewRodPage(ctx context.Context, opts Options) (*RodPage, error) {
	opts.defaults()

	// ── 1. Launch ─────────────────────────────────────────────────────
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)
	if opts.BrowserBin != "" {
		l = l.Bin(opts.BrowserBin)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	if opts.InsecureTLS {
		l.Set(flags.Flag("ignore-certificate-errors"))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewLoginError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	opts.Logger.Info("browser launched", "controlURL", controlURL)

	// ── 2. Connect ────────────────────────────────────────────────────
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewLoginError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	// ── 3. Open tab ───────────────────────────────────────────────────
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		return nil, models.NewLoginError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	// ── 4. Identity ───────────────────────────────────────────────────
	if err := (proto.NetworkSetUserAgentOverride{
		UserAgent:      opts.UserAgent,
		AcceptLanguage: opts.AcceptLanguage,
		Platform:       "MacIntel",
	}).Call(page); err != nil {
		opts.Logger.Warn("user agent override failed", "error", err)
	}
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Sec-GPC": "1"}),
	}.Call(page)

	// ── 5. Stealth injection ──────────────────────────────────────────
	if opts.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			opts.Logger.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	client, err := newHTTPClient(opts)
	if err != nil {
		_ = browser.Close()
		return nil, err
	}

	p := &RodPage{
		opts:    opts,
		log:     opts.Logger.With("component", "page", "backend", "rod"),
		browser: browser,
		page:    page,
		client:  client,
	}

	// ── 6. Hijack ─────────────────────────────────────────────────────
	p.router = setupHijack(page, opts.BlockedResourceTypes, opts.SkipScript, p.log)
	return p, nil
}

// Navigate loads rawURL and waits for the load event.
func (p *RodPage) Navigate(ctx context.Context, rawURL string) error {
	target, err := p.resolve(rawURL)
	if err != nil {
		return models.NewNavigationFailure(models.ReasonUnreachable, "invalid URL "+rawURL, err)
	}
	pg := p.page.Context(ctx)
	if err := pg.Navigate(target.String()); err != nil {
		return models.NewNavigationFailure(models.ReasonUnreachable, "navigation to "+target.String()+" failed", err)
	}
	if err := pg.WaitLoad(); err != nil {
		return models.NewNavigationFailure(models.ReasonUnreachable, "page load did not complete", err)
	}
	return nil
}

// Wait lets the page settle until the DOM is stable or the settle window ends.
func (p *RodPage) Wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.opts.SettleTimeout)
	defer cancel()
	if err := p.page.Context(waitCtx).WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}
	return nil
}

// Location reports the tab's current URL.
func (p *RodPage) Location() models.PageLocation {
	info, err := p.page.Info()
	if err != nil {
		return models.LocationOf(nil)
	}
	u, err := url.Parse(info.URL)
	if err != nil {
		return models.LocationOf(nil)
	}
	return models.LocationOf(u)
}

// Document parses the serialized live DOM.
func (p *RodPage) Document(ctx context.Context) (*html.Node, error) {
	raw, err := p.page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: read page HTML: %w", err)
	}
	return html.Parse(strings.NewReader(raw))
}

// Fetch performs the exchange in Go, carrying the tab's cookies.
func (p *RodPage) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}
	if res, err := (proto.NetworkGetCookies{Urls: []string{req.URL}}).Call(p.page.Context(ctx)); err == nil {
		parts := make([]string, 0, len(res.Cookies))
		for _, c := range res.Cookies {
			parts = append(parts, c.Name+"="+c.Value)
		}
		if len(parts) > 0 {
			req.Header.Set("Cookie", strings.Join(parts, "; "))
		}
	}
	return do(ctx, p.client, req)
}

// Scripting evaluates through the DevTools runtime.
func (p *RodPage) Scripting() ExecutionContext {
	return rodContext{page: p.page}
}

// NativeScripts is true: Chromium runs document scripts itself.
func (p *RodPage) NativeScripts() bool { return true }

// Close stops interception and kills the browser.
func (p *RodPage) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
	}
	_ = p.page.Close()
	p.client.CloseIdleConnections()
	return p.browser.Close()
}

func (p *RodPage) resolve(rawURL string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return ref, nil
	}
	loc := p.Location()
	base, err := url.Parse(loc.Href)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("relative URL %q without a base document", rawURL)
	}
	return base.ResolveReference(ref), nil
}

// rodContext is the ExecutionContext of a RodPage.
type rodContext struct {
	page *rod.Page
}

const getPathJS = `(path) => {
	let v = window;
	for (const k of path.split('.')) {
		if (v === null || v === undefined) return null;
		v = v[k];
	}
	return v === undefined ? null : v;
}`

func (c rodContext) Get(ctx context.Context, path string) (any, error) {
	res, err := c.page.Context(ctx).Eval(getPathJS, path)
	if err != nil {
		return nil, fmt.Errorf("browser: read %s: %w", path, err)
	}
	if res.Value.Nil() {
		return nil, nil
	}
	return res.Value.Val(), nil
}

func (c rodContext) Set(ctx context.Context, name string, value any) error {
	if name == "" || strings.Contains(name, ".") {
		return errors.New("browser: Set needs a plain global name")
	}
	if _, err := c.page.Context(ctx).Eval(`(name, value) => { window[name] = value; }`, name, value); err != nil {
		return fmt.Errorf("browser: set %s: %w", name, err)
	}
	return nil
}

func (c rodContext) Run(ctx context.Context, text string) error {
	res, err := proto.RuntimeEvaluate{Expression: text, ReturnByValue: true}.Call(c.page.Context(ctx))
	if err != nil {
		return fmt.Errorf("browser: evaluate: %w", err)
	}
	if ex := res.ExceptionDetails; ex != nil {
		msg := ex.Text
		if ex.Exception != nil && ex.Exception.Description != "" {
			msg = ex.Exception.Description
		}
		return fmt.Errorf("javascript exception: %s", msg)
	}
	return nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
