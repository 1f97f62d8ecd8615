package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/use-agent/wlanlogin/browser"
)

// ScriptFetcher downloads external scripts with the header set a desktop
// browser sends for a classic <script src>.
type ScriptFetcher struct {
	page           browser.Page
	userAgent      string
	acceptLanguage string
}

func NewScriptFetcher(page browser.Page, userAgent, acceptLanguage string) *ScriptFetcher {
	return &ScriptFetcher{page: page, userAgent: userAgent, acceptLanguage: acceptLanguage}
}

// Header returns the request headers for a script referenced by referrer.
// The no-cors mode is sent as a browser would; the body is read anyway.
func (f *ScriptFetcher) Header(referrer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", f.userAgent)
	h.Set("Accept", "*/*")
	if f.acceptLanguage != "" {
		h.Set("Accept-Language", f.acceptLanguage)
	}
	h.Set("Sec-GPC", "1")
	h.Set("Sec-Fetch-Dest", "script")
	h.Set("Sec-Fetch-Mode", "no-cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	if referrer != "" {
		h.Set("Referer", referrer)
	}
	return h
}

// Fetch returns the decoded script text. HTTP statuses of 400 and above
// are failures.
func (f *ScriptFetcher) Fetch(ctx context.Context, scriptURL *url.URL, referrer string) (string, error) {
	resp, err := f.page.Fetch(ctx, &browser.Request{
		Method: http.MethodGet,
		URL:    scriptURL.String(),
		Header: f.Header(referrer),
	})
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", scriptURL, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch %s: HTTP %d", scriptURL, resp.StatusCode)
	}
	return browser.DecodeText(resp.Body, resp.Header.Get("Content-Type"), false), nil
}
