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

	"github.com/use-agent/wlanlogin/models"
	"golang.org/x/net/html"
)

const documentAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// EmulatedPage is an in-process page: documents are parsed with
// x/net/html and scripts run in a goja runtime bound to a DOM bridge.
//
// The page never runs document scripts on its own. Timers, XHR/fetch
// completions, dynamically inserted scripts and script-initiated
// navigations are queued and only make progress inside Wait, so the
// caller decides exactly when page work happens.
type EmulatedPage struct {
	opts   Options
	log    *slog.Logger
	client *http.Client

	url      *url.URL
	referrer string
	status   int
	realm    *realm
	pending  *navigation

	// localStorage survives navigations within a run, keyed by origin.
	storage map[string]map[string]string

	// ctx is the context of the call currently driving the page; native
	// functions invoked from scripts use it for network access.
	ctx context.Context
}

// navigation is a queued document load.
type navigation struct {
	method      string
	url         *url.URL
	body        []byte
	contentType string
	referrer    string
}

// NewEmulatedPage creates a page showing about:blank.
func NewEmulatedPage(opts Options) (*EmulatedPage, error) {
	opts.defaults()
	client, err := newHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	p := &EmulatedPage{
		opts:    opts,
		log:     opts.Logger.With("component", "page"),
		client:  client,
		storage: make(map[string]map[string]string),
		ctx:     context.Background(),
	}
	blank, _ := url.Parse("about:blank")
	p.install(blank, 0, emptyDocument())
	return p, nil
}

// Navigate loads rawURL as a new document. Any navigation queued by page
// scripts is dropped.
func (p *EmulatedPage) Navigate(ctx context.Context, rawURL string) error {
	target, err := p.resolve(rawURL)
	if err != nil {
		return models.NewNavigationFailure(models.ReasonUnreachable, "invalid URL "+rawURL, err)
	}
	p.pending = nil
	return p.load(ctx, &navigation{method: http.MethodGet, url: target})
}

// Wait drains queued page work. It returns once no one-shot task is left,
// when the next task is due after the settle window, or when ctx ends.
// Navigations requested by scripts are performed here, bounded by
// MaxNavigations; each new document gets a fresh settle window.
func (p *EmulatedPage) Wait(ctx context.Context) error {
	p.ctx = ctx
	deadline := time.Now().Add(p.opts.SettleTimeout)
	navigations := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if nav := p.pending; nav != nil {
			p.pending = nil
			if navigations >= p.opts.MaxNavigations {
				p.log.Warn("navigation limit reached, ignoring navigation",
					"url", nav.url.String(), "limit", p.opts.MaxNavigations)
				return nil
			}
			navigations++
			if err := p.load(ctx, nav); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// A failed page-initiated navigation leaves the current
				// document in place, like a browser showing an error.
				p.log.Warn("script-initiated navigation failed",
					"url", nav.url.String(), "error", err)
				continue
			}
			deadline = time.Now().Add(p.opts.SettleTimeout)
			continue
		}

		sched := p.realm.sched
		next := sched.peek()
		if next == nil || !sched.busy() || next.due.After(deadline) {
			return nil
		}
		if d := time.Until(next.due); d > 0 {
			if err := sleepCtx(ctx, d); err != nil {
				return err
			}
		}
		sched.runNext()
	}
}

// Location reports the current document address.
func (p *EmulatedPage) Location() models.PageLocation {
	return models.LocationOf(p.url)
}

// StatusCode is the HTTP status of the current document (0 for about:blank).
func (p *EmulatedPage) StatusCode() int {
	return p.status
}

// Document returns the live document tree.
func (p *EmulatedPage) Document(context.Context) (*html.Node, error) {
	return p.realm.doc, nil
}

// Fetch performs an HTTP exchange with the page's cookie jar and identity.
func (p *EmulatedPage) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}
	return do(ctx, p.client, req)
}

// Scripting returns the execution context of the current document.
func (p *EmulatedPage) Scripting() ExecutionContext {
	return scriptContext{page: p}
}

// NativeScripts is false: document scripts only run when the engine runs them.
func (p *EmulatedPage) NativeScripts() bool { return false }

// Close drops queued work and idle connections.
func (p *EmulatedPage) Close() error {
	p.realm.sched.clear()
	p.pending = nil
	p.client.CloseIdleConnections()
	return nil
}

// resolve parses rawURL relative to the current document.
func (p *EmulatedPage) resolve(rawURL string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	if p.url != nil && (p.url.Scheme == "http" || p.url.Scheme == "https") {
		return p.url.ResolveReference(ref), nil
	}
	if !ref.IsAbs() {
		return nil, fmt.Errorf("relative URL %q without a base document", rawURL)
	}
	return ref, nil
}

// load fetches and installs a document.
func (p *EmulatedPage) load(ctx context.Context, nav *navigation) error {
	p.ctx = ctx
	if nav.url.String() == "about:blank" {
		p.install(nav.url, 0, emptyDocument())
		return nil
	}
	if nav.url.Scheme != "http" && nav.url.Scheme != "https" {
		return models.NewNavigationFailure(models.ReasonUnreachable,
			"unsupported scheme "+nav.url.Scheme, nil)
	}

	header := http.Header{}
	header.Set("User-Agent", p.opts.UserAgent)
	header.Set("Accept", documentAccept)
	if p.opts.AcceptLanguage != "" {
		header.Set("Accept-Language", p.opts.AcceptLanguage)
	}
	header.Set("Upgrade-Insecure-Requests", "1")
	header.Set("Sec-GPC", "1")
	header.Set("Sec-Fetch-Dest", "document")
	header.Set("Sec-Fetch-Mode", "navigate")
	if nav.referrer != "" {
		header.Set("Referer", nav.referrer)
		header.Set("Sec-Fetch-Site", "same-origin")
	} else {
		header.Set("Sec-Fetch-Site", "none")
	}
	if nav.contentType != "" {
		header.Set("Content-Type", nav.contentType)
	}

	resp, err := do(ctx, p.client, &Request{
		Method: nav.method,
		URL:    nav.url.String(),
		Header: header,
		Body:   nav.body,
	})
	if err != nil {
		return models.NewNavigationFailure(models.ReasonUnreachable,
			"navigation to "+nav.url.String()+" failed", err)
	}

	final, err := url.Parse(resp.URL)
	if err != nil {
		final = nav.url
	}
	text := DecodeText(resp.Body, resp.Header.Get("Content-Type"), true)
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return models.NewNavigationFailure(models.ReasonUnreachable,
			"unparsable document at "+final.String(), err)
	}

	p.install(final, resp.StatusCode, doc)
	p.referrer = nav.referrer
	p.log.Debug("document loaded", "url", final.String(), "status", resp.StatusCode)
	return nil
}

// install replaces the current document and its global scope.
func (p *EmulatedPage) install(u *url.URL, status int, doc *html.Node) {
	if p.realm != nil {
		p.realm.sched.clear()
	}
	p.url = u
	p.status = status
	p.realm = newRealm(p, doc)
}

// requestNavigation queues a navigation; the last request wins.
func (p *EmulatedPage) requestNavigation(nav *navigation) {
	if nav.referrer == "" && p.url != nil {
		nav.referrer = p.url.String()
	}
	p.log.Debug("navigation requested", "method", nav.method, "url", nav.url.String())
	p.pending = nav
}

// cookieString renders the jar's cookies for the current document the
// way document.cookie does.
func (p *EmulatedPage) cookieString() string {
	if p.url == nil || p.client.Jar == nil {
		return ""
	}
	cookies := p.client.Jar.Cookies(p.url)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// setCookie stores a document.cookie assignment in the jar.
func (p *EmulatedPage) setCookie(line string) {
	if p.url == nil || p.client.Jar == nil {
		return
	}
	resp := http.Response{Header: http.Header{"Set-Cookie": {line}}}
	if cookies := resp.Cookies(); len(cookies) > 0 {
		p.client.Jar.SetCookies(p.url, cookies)
	}
}

func emptyDocument() *html.Node {
	doc, _ := html.Parse(strings.NewReader(""))
	return doc
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// scriptContext is the ExecutionContext of an EmulatedPage. It always
// targets the page's current document.
type scriptContext struct {
	page *EmulatedPage
}

func (c scriptContext) Run(ctx context.Context, text string) error {
	c.page.ctx = ctx
	return c.page.realm.run(ctx, "injected.js", text)
}

func (c scriptContext) Get(ctx context.Context, path string) (any, error) {
	c.page.ctx = ctx
	return c.page.realm.get(path)
}

func (c scriptContext) Set(ctx context.Context, name string, value any) error {
	c.page.ctx = ctx
	if name == "" || strings.Contains(name, ".") {
		return errors.New("browser: Set needs a plain global name")
	}
	return c.page.realm.set(name, value)
}

// RunScript runs text under a script name used in stack traces. The
// engine prefers it to Run when available.
func (p *EmulatedPage) RunScript(ctx context.Context, name, text string) error {
	p.ctx = ctx
	return p.realm.run(ctx, name, text)
}
