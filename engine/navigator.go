package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/use-agent/wlanlogin/browser"
	"github.com/use-agent/wlanlogin/config"
	"github.com/use-agent/wlanlogin/models"
	"golang.org/x/net/html"
)

// Options configures a Navigator.
type Options struct {
	MaxRedirects   int
	SkipList       SkipList
	UserAgent      string
	AcceptLanguage string
	Logger         *slog.Logger
}

// OptionsFrom maps the application config onto navigator options.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		MaxRedirects:   cfg.Engine.MaxRedirects,
		SkipList:       NewSkipList(cfg.Engine.SkipScripts...),
		UserAgent:      cfg.Browser.UserAgent,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
	}
}

// Navigator loads a URL into a page the way a browser would: follow
// meta refreshes, run the final document's scripts in order, and wait for
// the page to settle.
type Navigator struct {
	page         browser.Page
	resolver     RedirectResolver
	scripts      *ScriptExecutor
	maxRedirects int
	log          *slog.Logger
}

// SettleResult is the page state after Settle.
type SettleResult struct {
	Location  models.PageLocation
	Document  *html.Node
	Redirects []string
	Scripts   ScriptReport

	// NativeScripts is set when the backend ran document scripts itself
	// and the script pass was skipped.
	NativeScripts bool
}

// Stats summarises the result for outcomes and logs.
func (r *SettleResult) Stats() models.SettleStats {
	st := models.SettleStats{
		Redirects:      r.Redirects,
		ScriptsRun:     r.Scripts.Ran,
		ScriptsSkipped: len(r.Scripts.Skipped),
		NativeScripts:  r.NativeScripts,
	}
	for _, f := range r.Scripts.Failures {
		st.ScriptFailures = append(st.ScriptFailures, f.Script)
	}
	return st
}

func NewNavigator(page browser.Page, opts Options) *Navigator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	if opts.UserAgent == "" {
		opts.UserAgent = config.DefaultUserAgent
	}
	log := opts.Logger.With("component", "navigator")
	fetcher := NewScriptFetcher(page, opts.UserAgent, opts.AcceptLanguage)
	return &Navigator{
		page:         page,
		scripts:      NewScriptExecutor(page, fetcher, opts.SkipList, log),
		maxRedirects: opts.MaxRedirects,
		log:          log,
	}
}

// Page returns the page the navigator drives.
func (n *Navigator) Page() browser.Page { return n.page }

// Settle navigates to rawURL and returns once the final document has run
// its scripts and settled.
//
// Steps:
//
//  1. Navigate + wait       – load the document, drain queued page work
//  2. Meta refresh          – follow it and loop; scripts of the
//     intermediate page never run
//  3. Scripts               – head then body, in source order
//  4. Wait                  – let work started by the scripts finish
func (n *Navigator) Settle(ctx context.Context, rawURL string) (*SettleResult, error) {
	result := &SettleResult{}
	target := rawURL

	for hops := 0; ; {
		// ── 1. Navigate + wait ────────────────────────────────────────
		if err := n.page.Navigate(ctx, target); err != nil {
			return nil, categorizeError(err, "navigation to "+target+" failed")
		}
		if err := n.page.Wait(ctx); err != nil {
			return nil, categorizeError(err, "page did not settle")
		}
		doc, err := n.page.Document(ctx)
		if err != nil {
			return nil, categorizeError(err, "failed to read document")
		}
		loc := n.page.Location()

		// ── 2. Meta refresh ───────────────────────────────────────────
		directive := n.resolver.Extract(doc)
		if directive == nil {
			result.Location = loc
			result.Document = doc
			break
		}
		hops++
		if hops > n.maxRedirects {
			return nil, models.NewNavigationFailure(models.ReasonRedirectLoop,
				fmt.Sprintf("meta refresh chain exceeds %d redirects at %s", n.maxRedirects, loc.Href), nil)
		}
		next, err := n.resolver.Resolve(loc, directive)
		if err != nil {
			return nil, models.NewNavigationFailure(models.ReasonUnreachable,
				"invalid meta refresh target "+directive.Target, err)
		}
		n.log.Info("following meta refresh",
			"from", loc.Href,
			"to", next.String(),
			"delay", directive.DelaySeconds,
			"hop", hops,
		)
		result.Redirects = append(result.Redirects, next.String())
		target = next.String()
	}

	// ── 3. Scripts ────────────────────────────────────────────────────
	if n.page.NativeScripts() {
		result.NativeScripts = true
		n.log.Debug("backend runs document scripts natively, skipping script pass")
	} else {
		result.Scripts = n.scripts.RunAll(ctx, result.Document, result.Location)
		if err := ctx.Err(); err != nil {
			return nil, categorizeError(err, "script execution interrupted")
		}
	}

	// ── 4. Wait ───────────────────────────────────────────────────────
	if err := n.page.Wait(ctx); err != nil {
		return nil, categorizeError(err, "page did not settle")
	}
	doc, err := n.page.Document(ctx)
	if err != nil {
		return nil, categorizeError(err, "failed to read document")
	}
	result.Document = doc
	result.Location = n.page.Location()

	n.log.Info("page settled",
		"url", result.Location.Href,
		"redirects", len(result.Redirects),
		"scripts_run", result.Scripts.Ran,
		"scripts_skipped", len(result.Scripts.Skipped),
		"script_failures", len(result.Scripts.Failures),
	)
	return result, nil
}

// categorizeError wraps raw errors into typed LoginErrors so callers can
// map them to exit codes and HTTP statuses.
func categorizeError(err error, msg string) error {
	var le *models.LoginError
	switch {
	case errors.As(err, &le):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewLoginError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewLoginError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewNavigationFailure(models.ReasonUnreachable, msg, err)
	}
}
