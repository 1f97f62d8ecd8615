package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/wlanlogin/models"
)

// Discover returns the portal login URL. A URL found earlier is reused
// until it expires; otherwise the discovery URL is fetched up to Attempts
// times and the intercepted answer is scanned for a link to the portal
// host.
func (p *Prober) Discover(ctx context.Context) (string, error) {
	host := p.cfg.DiscoveryHost
	if u := p.memory.Get(host); u != "" {
		p.log.Debug("using remembered login URL", "url", u)
		return u, nil
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", models.NewLoginError(models.ErrCodeTimeout, "discovery canceled", ctx.Err())
			case <-time.After(p.interval):
			}
		}
		found, err := p.discoverOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", models.NewLoginError(models.ErrCodeTimeout, "discovery canceled", ctx.Err())
			}
			lastErr = err
			p.log.Debug("discovery attempt failed", "attempt", attempt, "error", err)
			continue
		}
		if found != "" {
			p.log.Info("discovered login URL", "url", found, "attempt", attempt)
			p.memory.Set(host, found)
			return found, nil
		}
	}
	return "", models.NewLoginError(models.ErrCodeDiscovery,
		fmt.Sprintf("no login URL for %s after %d attempts", host, p.cfg.Attempts), lastErr)
}

// Forget drops the remembered login URL.
func (p *Prober) Forget() {
	p.memory.Delete(p.cfg.DiscoveryHost)
}

func (p *Prober) discoverOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.DiscoveryURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	base := resp.Request.URL
	if loc, err := resp.Location(); err == nil && p.matchesHost(loc) {
		return loc.String(), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPage))
	if err != nil {
		return "", err
	}
	return p.FindLoginURL(string(body), base), nil
}

// FindLoginURL scans an intercepted page for a URL on the portal host: a
// form action, a link, a meta refresh, and finally any absolute URL in
// the raw text.
func (p *Prober) FindLoginURL(page string, base *url.URL) string {
	if !strings.Contains(page, p.cfg.DiscoveryHost) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err == nil {
		candidates := []struct{ sel, attr string }{
			{"form[action]", "action"},
			{"a[href]", "href"},
			{"iframe[src]", "src"},
		}
		for _, c := range candidates {
			var found string
			doc.Find(c.sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				v, _ := s.Attr(c.attr)
				found = p.resolveOnHost(v, base)
				return found == ""
			})
			if found != "" {
				return found
			}
		}
		var found string
		doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if equiv, _ := s.Attr("http-equiv"); !strings.EqualFold(equiv, "refresh") {
				return true
			}
			content, _ := s.Attr("content")
			if i := strings.Index(strings.ToLower(content), "url="); i >= 0 {
				found = p.resolveOnHost(strings.Trim(content[i+4:], `'" `), base)
			}
			return found == ""
		})
		if found != "" {
			return found
		}
	}

	// Portals that redirect from script carry the URL in text only.
	re := regexp.MustCompile(`https?://` + regexp.QuoteMeta(p.cfg.DiscoveryHost) + `[a-zA-Z0-9./_?=&%:-]*`)
	return re.FindString(page)
}

func (p *Prober) resolveOnHost(raw string, base *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if !p.matchesHost(u) {
		return ""
	}
	return u.String()
}

func (p *Prober) matchesHost(u *url.URL) bool {
	return u != nil && (u.Scheme == "http" || u.Scheme == "https") && strings.EqualFold(u.Hostname(), p.cfg.DiscoveryHost)
}
