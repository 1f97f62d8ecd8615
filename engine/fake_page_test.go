package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/use-agent/wlanlogin/browser"
	"github.com/use-agent/wlanlogin/models"
	"golang.org/x/net/html"
)

// fakePage serves canned documents and scripts and records what the
// engine does with them. Executed script text is appended to ran.
type fakePage struct {
	pages   map[string]string // path -> document
	scripts map[string]string // path -> script text
	failing map[string]bool   // script paths that fail to execute

	current   *url.URL
	navigated []string
	fetched   []string
	headers   []http.Header
	ran       []string
	waits     int
	native    bool
	globals   map[string]any
}

func newFakePage() *fakePage {
	return &fakePage{
		pages:   map[string]string{},
		scripts: map[string]string{},
		failing: map[string]bool{},
		globals: map[string]any{},
	}
}

func (p *fakePage) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if p.current != nil {
		u = p.current.ResolveReference(u)
	}
	if _, ok := p.pages[u.Path]; !ok {
		return errors.New("dial tcp: lookup " + u.Host + ": no such host")
	}
	p.current = u
	p.navigated = append(p.navigated, u.Path)
	return nil
}

func (p *fakePage) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

func (p *fakePage) Location() models.PageLocation { return models.LocationOf(p.current) }

func (p *fakePage) Document(context.Context) (*html.Node, error) {
	return html.Parse(strings.NewReader(p.pages[p.current.Path]))
}

func (p *fakePage) Fetch(_ context.Context, req *browser.Request) (*browser.Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	p.fetched = append(p.fetched, u.Path)
	p.headers = append(p.headers, req.Header)
	text, ok := p.scripts[u.Path]
	if !ok {
		return &browser.Response{StatusCode: http.StatusNotFound, Header: http.Header{}, URL: req.URL}, nil
	}
	return &browser.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/javascript"}},
		Body:       []byte(text),
		URL:        req.URL,
	}, nil
}

func (p *fakePage) Scripting() browser.ExecutionContext { return fakeContext{p} }

func (p *fakePage) NativeScripts() bool { return p.native }

func (p *fakePage) Close() error { return nil }

type fakeContext struct{ p *fakePage }

func (c fakeContext) Get(_ context.Context, path string) (any, error) { return c.p.globals[path], nil }

func (c fakeContext) Set(_ context.Context, name string, value any) error {
	c.p.globals[name] = value
	return nil
}

func (c fakeContext) Run(_ context.Context, text string) error {
	c.p.ran = append(c.p.ran, strings.TrimSpace(text))
	if c.p.failing[strings.TrimSpace(text)] {
		return errors.New("javascript exception: boom")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
